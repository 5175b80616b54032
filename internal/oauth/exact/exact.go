// Package exact implements OAuth 2.0 authentication with Exact Online.
//
// The handshake itself (authorization redirect, code exchange, refresh) is
// delegated to golang.org/x/oauth2. This package only knows where Exact keeps
// its endpoints and how to turn the current-user document returned by
// /api/v1/current/Me into a normalized Profile.
package exact

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Name is the strategy identifier.
const Name = "exact"

// DefaultBaseURL is used when Options.BaseURL is empty.
const DefaultBaseURL = "https://start.exactonline.nl"

const (
	authPath    = "/api/oauth2/auth"
	tokenPath   = "/api/oauth2/token"
	profilePath = "/api/v1/current/Me"
)

// Format selects the representation requested from the profile endpoint.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// ParseFormat maps a config value to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "xml", "atom":
		return FormatXML, nil
	default:
		return "", errors.New("exact: unknown profile format " + s)
	}
}

func (f Format) accept() string {
	if f == FormatXML {
		return "application/atom+xml"
	}
	return "application/json"
}

// Options configures a Strategy.
type Options struct {
	ClientID     string
	ClientSecret string
	// BaseURL is the Exact Online data center, e.g. https://start.exactonline.be.
	BaseURL     string
	CallbackURL string
	Scopes      []string
	Format      Format

	// HTTPClient is used for the token and profile requests. Defaults to a
	// client with a 10s timeout.
	HTTPClient *http.Client

	// ProfileRetries is how many times a profile fetch that failed in
	// transit or with a 429/5xx is retried. Zero disables retries.
	ProfileRetries int
	// RetryInterval is the first backoff delay. Default 200ms.
	RetryInterval time.Duration

	// OnProfile, when set, is called after every UserProfile.
	OnProfile func(format Format, err error, d time.Duration)
}

// Strategy authenticates users against Exact Online.
type Strategy struct {
	config     oauth2.Config
	baseURL    string
	profileURL string
	format     Format
	httpClient *http.Client
	verify     VerifyFunc
	onProfile  func(Format, error, time.Duration)

	retries       int
	retryInterval time.Duration
}

// New builds a Strategy. verify may be nil, in which case Authenticate hands
// back the profile itself as the user.
func New(opts Options, verify VerifyFunc) (*Strategy, error) {
	if strings.TrimSpace(opts.ClientID) == "" {
		return nil, errors.New("exact: client_id required")
	}
	if strings.TrimSpace(opts.CallbackURL) == "" {
		return nil, errors.New("exact: callback_url required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	format := opts.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatXML {
		return nil, errors.New("exact: unknown profile format " + string(format))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	if opts.ProfileRetries < 0 {
		return nil, errors.New("exact: profile retries must not be negative")
	}
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}

	return &Strategy{
		config: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.CallbackURL,
			Scopes:       opts.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + authPath,
				TokenURL:  baseURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    baseURL,
		profileURL: baseURL + profilePath,
		format:     format,
		httpClient: httpClient,
		verify:     verify,
		onProfile:  opts.OnProfile,

		retries:       opts.ProfileRetries,
		retryInterval: retryInterval,
	}, nil
}

// WithVerify returns a copy of s that hands profiles to verify.
func (s *Strategy) WithVerify(verify VerifyFunc) *Strategy {
	c := *s
	c.verify = verify
	return &c
}

// Name returns "exact".
func (s *Strategy) Name() string { return Name }

// BaseURL returns the normalized base URL.
func (s *Strategy) BaseURL() string { return s.baseURL }

// AuthorizationURL returns {BaseURL}/api/oauth2/auth.
func (s *Strategy) AuthorizationURL() string { return s.config.Endpoint.AuthURL }

// TokenURL returns {BaseURL}/api/oauth2/token.
func (s *Strategy) TokenURL() string { return s.config.Endpoint.TokenURL }

// ProfileURL returns {BaseURL}/api/v1/current/Me.
func (s *Strategy) ProfileURL() string { return s.profileURL }

// Format returns the profile representation this strategy requests.
func (s *Strategy) Format() Format { return s.format }

// AuthCodeURL builds the URL the user is redirected to.
func (s *Strategy) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return s.config.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens.
func (s *Strategy) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("exact: authorization code required")
	}
	return s.config.Exchange(s.clientContext(ctx), code, opts...)
}

// Refresh obtains a new token pair from a refresh token. Exact rotates the
// refresh token on every use, so callers must persist the returned one.
func (s *Strategy) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	ts := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return ts.Token()
}

// clientContext hands our HTTP client to x/oauth2.
func (s *Strategy) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}
