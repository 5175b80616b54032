package social

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
)

// StartService begins a social login.
type StartService interface {
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
}

type StartRequest struct {
	Provider string
	// RedirectURI is where the browser lands after the callback. Optional.
	RedirectURI string
}

type StartResult struct {
	RedirectURL string
	State       string
}

var (
	ErrStartProviderUnknown    = errors.New("unknown provider")
	ErrStartRedirectNotAllowed = errors.New("redirect_uri not allowed")
	ErrStartStateFailed        = errors.New("failed to sign state")
)

type StartDeps struct {
	Providers        *providers.Registry
	StateSigner      StateSigner
	AllowedRedirects []string
}

type startService struct {
	providers *providers.Registry
	signer    StateSigner
	allowed   []string
}

func NewStartService(d StartDeps) StartService {
	return &startService{providers: d.Providers, signer: d.StateSigner, allowed: d.AllowedRedirects}
}

func (s *startService) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("social.start"),
		logger.Provider(req.Provider),
	)

	p, err := s.providers.Get(ctx, req.Provider)
	if err != nil {
		log.Debug("provider lookup failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %s", ErrStartProviderUnknown, req.Provider)
	}

	redir := strings.TrimSpace(req.RedirectURI)
	if redir != "" && !redirectAllowed(redir, s.allowed) {
		return nil, ErrStartRedirectNotAllowed
	}

	state, err := s.signer.SignState(StateClaims{Provider: p.Name(), RedirectURI: redir})
	if err != nil {
		log.Error("state signing failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrStartStateFailed, err)
	}

	log.Debug("social login started")
	return &StartResult{RedirectURL: p.AuthorizeURL(state, nil), State: state}, nil
}

// redirectAllowed accepts same-origin paths and absolute URLs that start
// with one of the allowed prefixes. Browsers read a backslash as a slash, so
// any backslash or control character is refused.
func redirectAllowed(redir string, allowed []string) bool {
	if strings.ContainsAny(redir, "\\\x00\t\r\n") {
		return false
	}
	u, err := url.Parse(redir)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return u.Scheme == "" && u.Host == "" && u.User == nil &&
			strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(u.Path, "//") &&
			strings.HasPrefix(redir, "/") && !strings.HasPrefix(redir, "//")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	for _, a := range allowed {
		if a != "" && strings.HasPrefix(redir, a) {
			return true
		}
	}
	return false
}
