// Package providers is the social login layer between the HTTP flow and the
// individual OAuth strategies.
//
// Each provider is built by a factory from a ProviderConfig and normalizes its
// user document into a UserProfile, so the login services never see
// provider-specific types.
package providers

import (
	"context"
	"errors"
	"time"
)

// ProviderType indicates the authentication protocol.
type ProviderType string

const (
	ProviderTypeOIDC   ProviderType = "oidc"
	ProviderTypeOAuth2 ProviderType = "oauth2"
)

// Provider is implemented by every social login provider.
type Provider interface {
	Name() string
	Type() ProviderType

	AuthorizeURL(state string, scopes []string) string
	// Authenticate completes the callback leg: code exchange, profile fetch
	// and verify. A nil verify accepts every profile.
	Authenticate(ctx context.Context, code string, verify VerifyFunc) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	Validate() error
}

// VerifyFunc maps a provider profile to the application's user. Returning a
// nil user with a nil error rejects the login.
type VerifyFunc func(ctx context.Context, tokens *TokenSet, profile *UserProfile) (any, error)

// AuthResult is the outcome of a successful Authenticate.
type AuthResult struct {
	User    any
	Profile *UserProfile
	Tokens  *TokenSet
}

var (
	// ErrExchangeFailed wraps failures of the code exchange.
	ErrExchangeFailed = errors.New("providers: code exchange failed")
	// ErrUserRejected is returned when verify accepted neither a user nor an error.
	ErrUserRejected = errors.New("providers: user rejected")
)

// ProviderConfig configures one provider instance.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// Provider-specific settings, e.g. "base_url" and "format" for exact.
	Extra map[string]string
}

// TokenSet contains the tokens returned by the provider.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// UserProfile is the provider-neutral user.
type UserProfile struct {
	ProviderID string `json:"provider_id"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
	Locale     string `json:"locale,omitempty"`

	Raw map[string]any `json:"raw,omitempty"`
}
