package exact

import (
	"context"

	"golang.org/x/oauth2"
)

// VerifyFunc is supplied by the application. It receives the tokens and the
// normalized profile and returns the application's user. Returning a nil user
// with a nil error means the credentials are not acceptable.
type VerifyFunc func(ctx context.Context, accessToken, refreshToken string, profile *Profile) (any, error)

// Result is the outcome of a successful Authenticate.
type Result struct {
	User    any
	Profile *Profile
	Token   *oauth2.Token
}

// Authenticate completes the callback leg: code exchange, profile fetch and
// verification.
func (s *Strategy) Authenticate(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*Result, error) {
	tok, err := s.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, &InternalOAuthError{Message: MsgTokenFailed, Err: err}
	}

	profile, err := s.UserProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	if s.verify == nil {
		return &Result{User: profile, Profile: profile, Token: tok}, nil
	}

	user, err := s.verify(ctx, tok.AccessToken, tok.RefreshToken, profile)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserRejected
	}
	return &Result{User: user, Profile: profile, Token: tok}, nil
}
