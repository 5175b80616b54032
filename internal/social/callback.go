package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/exactauth/internal/audit"
	"github.com/dropDatabas3/exactauth/internal/cache"
	"github.com/dropDatabas3/exactauth/internal/metrics"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
	"github.com/dropDatabas3/exactauth/internal/store"
)

// CallbackService completes a social login.
type CallbackService interface {
	Callback(ctx context.Context, req CallbackRequest) (*CallbackResult, error)
}

type CallbackRequest struct {
	Provider string
	State    string
	Code     string
}

type CallbackResult struct {
	SessionID   string
	CSRFToken   string
	UserID      string
	Profile     *providers.UserProfile
	RedirectURL string
	ExpiresAt   time.Time
}

var (
	ErrCallbackMissingState     = errors.New("missing state")
	ErrCallbackMissingCode      = errors.New("missing code")
	ErrCallbackInvalidState     = errors.New("invalid state")
	ErrCallbackStateReused      = errors.New("state already used")
	ErrCallbackProviderMismatch = errors.New("provider mismatch")
	ErrCallbackProviderUnknown  = errors.New("unknown provider")
	ErrCallbackExchangeFailed   = errors.New("code exchange failed")
	ErrCallbackProfileFailed    = errors.New("profile fetch failed")
	ErrCallbackVerifyFailed     = errors.New("identity resolution failed")
	ErrCallbackUserRejected     = errors.New("user rejected")
	ErrCallbackSessionFailed    = errors.New("session creation failed")
)

type CallbackDeps struct {
	Providers   *providers.Registry
	StateSigner StateSigner
	// StateTTL bounds how long a used nonce is remembered.
	StateTTL        time.Duration
	Cache           cache.Client
	Identities      store.IdentityStore
	Sessions        SessionService
	Metrics         *metrics.Metrics
	DefaultRedirect string
}

type callbackService struct {
	d CallbackDeps
}

func NewCallbackService(d CallbackDeps) CallbackService {
	if d.StateTTL <= 0 {
		d.StateTTL = 10 * time.Minute
	}
	if d.DefaultRedirect == "" {
		d.DefaultRedirect = "/"
	}
	return &callbackService{d: d}
}

func (s *callbackService) Callback(ctx context.Context, req CallbackRequest) (res *CallbackResult, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("social.callback"),
		logger.Provider(req.Provider),
	)
	defer func() {
		s.d.Metrics.RecordLogin(req.Provider, err)
		if err != nil {
			log.Info("social login failed", logger.Err(err))
			audit.Log(ctx, audit.LoginFailed, logger.Provider(req.Provider), logger.Err(err))
		}
	}()

	state := strings.TrimSpace(req.State)
	code := strings.TrimSpace(req.Code)
	if state == "" {
		return nil, ErrCallbackMissingState
	}
	if code == "" {
		return nil, ErrCallbackMissingCode
	}

	claims, err := s.d.StateSigner.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCallbackInvalidState, err)
	}
	if claims.Provider != req.Provider {
		return nil, ErrCallbackProviderMismatch
	}
	if err := s.consumeNonce(ctx, claims.Nonce); err != nil {
		return nil, err
	}

	p, err := s.d.Providers.Get(ctx, req.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCallbackProviderUnknown, err)
	}

	ar, err := p.Authenticate(ctx, code, s.verify(p.Name()))
	switch {
	case err == nil:
	case errors.Is(err, ErrCallbackVerifyFailed):
		return nil, err
	case errors.Is(err, providers.ErrUserRejected):
		return nil, fmt.Errorf("%w: %w", ErrCallbackUserRejected, err)
	case errors.Is(err, providers.ErrExchangeFailed):
		return nil, fmt.Errorf("%w: %w", ErrCallbackExchangeFailed, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrCallbackProfileFailed, err)
	}
	ident, ok := ar.User.(*store.Identity)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected user %T", ErrCallbackVerifyFailed, ar.User)
	}
	tok, profile := ar.Tokens, ar.Profile

	sess, err := s.d.Sessions.Create(ctx, &Session{
		UserID:         ident.UserID,
		Provider:       p.Name(),
		ProviderUserID: profile.ProviderID,
		Profile:        profile,
	}, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCallbackSessionFailed, err)
	}

	redirect := claims.RedirectURI
	if redirect == "" {
		redirect = s.d.DefaultRedirect
	}

	log.Info("social login completed", logger.UserID(ident.UserID), logger.SessionID(sess.ID))
	audit.Log(ctx, audit.LoginSucceeded,
		logger.Provider(p.Name()),
		logger.UserID(ident.UserID),
		logger.SessionID(sess.ID),
		logger.Email(profile.Email),
	)
	return &CallbackResult{
		SessionID:   sess.ID,
		CSRFToken:   sess.CSRFToken,
		UserID:      ident.UserID,
		Profile:     profile,
		RedirectURL: redirect,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// verify links the provider account to a local user. A profile the store
// refuses as invalid rejects the login.
func (s *callbackService) verify(provider string) providers.VerifyFunc {
	return func(ctx context.Context, _ *providers.TokenSet, profile *providers.UserProfile) (any, error) {
		ident, err := s.d.Identities.Resolve(ctx, profile, provider)
		switch {
		case errors.Is(err, store.ErrInvalid):
			return nil, nil
		case err != nil:
			return nil, fmt.Errorf("%w: %w", ErrCallbackVerifyFailed, err)
		case ident == nil:
			return nil, nil
		}
		return ident, nil
	}
}

// consumeNonce makes a state token single use.
func (s *callbackService) consumeNonce(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrCallbackInvalidState
	}
	added, err := s.d.Cache.SetNX(ctx, "social:state:"+nonce, "1", s.d.StateTTL+time.Minute)
	if err != nil {
		return fmt.Errorf("state nonce: %w", err)
	}
	if !added {
		return ErrCallbackStateReused
	}
	return nil
}
