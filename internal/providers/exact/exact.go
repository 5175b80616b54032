// Package exact adapts the Exact Online strategy to the providers registry.
package exact

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/exactauth/internal/metrics"
	exactoauth "github.com/dropDatabas3/exactauth/internal/oauth/exact"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
)

const ProviderName = exactoauth.Name

// Extra keys understood by the factory.
const (
	ExtraBaseURL        = "base_url"
	ExtraFormat         = "format"
	ExtraForceLogin     = "force_login"
	ExtraProfileRetries = "profile_retries"
)

// Provider wraps an exact.Strategy.
type Provider struct {
	strategy   *exactoauth.Strategy
	forceLogin bool
	metrics    *metrics.Metrics
}

// Factory builds a Provider without metrics.
var Factory = NewFactory(nil)

// NewFactory returns a factory whose providers record profile fetches on m.
func NewFactory(m *metrics.Metrics) providers.ProviderFactory {
	return func(cfg providers.ProviderConfig) (providers.Provider, error) {
		return New(cfg, m)
	}
}

// New builds a Provider from cfg.
func New(cfg providers.ProviderConfig, m *metrics.Metrics) (*Provider, error) {
	format, err := exactoauth.ParseFormat(cfg.Extra[ExtraFormat])
	if err != nil {
		return nil, err
	}
	var retries int
	if v := strings.TrimSpace(cfg.Extra[ExtraProfileRetries]); v != "" {
		if retries, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("exact: %s: %w", ExtraProfileRetries, err)
		}
	}
	s, err := exactoauth.New(exactoauth.Options{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		BaseURL:      cfg.Extra[ExtraBaseURL],
		CallbackURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Format:       format,

		ProfileRetries: retries,
		OnProfile: func(f exactoauth.Format, err error, d time.Duration) {
			m.ObserveProfileFetch(string(f), err, d)
		},
	}, nil)
	if err != nil {
		return nil, err
	}
	force, _ := strconv.ParseBool(strings.TrimSpace(cfg.Extra[ExtraForceLogin]))
	return &Provider{strategy: s, forceLogin: force, metrics: m}, nil
}

// Strategy exposes the underlying strategy.
func (p *Provider) Strategy() *exactoauth.Strategy { return p.strategy }

func (p *Provider) Name() string                 { return ProviderName }
func (p *Provider) Type() providers.ProviderType { return providers.ProviderTypeOAuth2 }

func (p *Provider) Validate() error {
	if p.strategy == nil {
		return errors.New("exact: strategy not configured")
	}
	return nil
}

// AuthorizeURL ignores scopes; Exact grants access per app registration.
func (p *Provider) AuthorizeURL(state string, _ []string) string {
	if p.forceLogin {
		return p.strategy.AuthCodeURL(state, oauth2.SetAuthURLParam("force_login", "1"))
	}
	return p.strategy.AuthCodeURL(state)
}

// Authenticate runs the strategy's callback leg with verify as its
// verification callback.
func (p *Provider) Authenticate(ctx context.Context, code string, verify providers.VerifyFunc) (*providers.AuthResult, error) {
	s := p.strategy
	if verify != nil {
		s = s.WithVerify(func(ctx context.Context, accessToken, refreshToken string, prof *exactoauth.Profile) (any, error) {
			tokens := &providers.TokenSet{AccessToken: accessToken, RefreshToken: refreshToken}
			return verify(ctx, tokens, ToUserProfile(prof))
		})
	}

	log := logger.From(ctx).With(logger.Provider(ProviderName), logger.Format(string(s.Format())))
	res, err := s.Authenticate(ctx, code)
	if err != nil {
		var oerr *exactoauth.InternalOAuthError
		switch {
		case errors.Is(err, exactoauth.ErrUserRejected):
			err = fmt.Errorf("%w: %w", providers.ErrUserRejected, err)
		case errors.As(err, &oerr) && oerr.Message == exactoauth.MsgTokenFailed:
			err = fmt.Errorf("%w: %w", providers.ErrExchangeFailed, err)
		}
		log.Warn("exact authentication failed", logger.Err(err))
		return nil, err
	}
	log.Debug("exact profile fetched", logger.UserID(res.Profile.ID), logger.Division(res.Profile.CurrentDivision))
	return &providers.AuthResult{
		User:    res.User,
		Profile: ToUserProfile(res.Profile),
		Tokens:  toTokenSet(res.Token),
	}, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*providers.TokenSet, error) {
	tok, err := p.strategy.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return toTokenSet(tok), nil
}

// ToUserProfile maps an Exact profile to the provider-neutral shape. Raw keeps
// every normalized field plus the Atom properties when present.
func ToUserProfile(p *exactoauth.Profile) *providers.UserProfile {
	raw := map[string]any{
		"provider":        p.Provider,
		"id":              p.ID,
		"displayName":     p.DisplayName,
		"firstName":       p.FirstName,
		"middleName":      p.MiddleName,
		"lastName":        p.LastName,
		"currentDivision": p.CurrentDivision,
		"picture":         p.Picture,
		"userName":        p.UserName,
		"languageCode":    p.LanguageCode,
		"email":           p.Email,
		"title":           p.Title,
		"gender":          p.Gender,
		"language":        p.Language,
	}
	if p.Raw != nil {
		raw["_json"] = p.Raw
	}

	email := p.Email
	if email == "" {
		if s, ok := p.Raw["Email"].(string); ok {
			email = s
		}
	}

	return &providers.UserProfile{
		ProviderID: p.ID,
		Email:      email,
		Name:       strings.TrimSpace(p.DisplayName),
		GivenName:  p.FirstName,
		FamilyName: p.LastName,
		Picture:    p.Picture,
		Locale:     p.LanguageCode,
		Raw:        raw,
	}
}

func toTokenSet(tok *oauth2.Token) *providers.TokenSet {
	return &providers.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
}
