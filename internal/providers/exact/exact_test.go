package exact

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/exactauth/internal/metrics"
	exactoauth "github.com/dropDatabas3/exactauth/internal/oauth/exact"
	"github.com/dropDatabas3/exactauth/internal/providers"
)

const meJSON = `{"d":{"results":[{"UserID":"u-42","FullName":"Piet Jansen","FirstName":"Piet","LastName":"Jansen","CurrentDivision":7,"PictureUrl":"https://pic","UserName":"piet","LanguageCode":"nl-NL","Email":"piet@example.nl","Title":"","Gender":"M","Language":"NL"}]}}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","token_type":"bearer","expires_in":600,"refresh_token":"rt"}`)
	})
	mux.HandleFunc("/api/v1/current/Me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, meJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string, extra map[string]string) providers.ProviderConfig {
	if extra == nil {
		extra = map[string]string{}
	}
	extra[ExtraBaseURL] = baseURL
	return providers.ProviderConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "https://app/cb",
		Extra:        extra,
	}
}

func TestFactory_ThroughRegistry(t *testing.T) {
	srv := newServer(t)
	m, err := metrics.New(nil)
	require.NoError(t, err)

	reg := providers.NewRegistry()
	reg.Register(ProviderName, NewFactory(m), testConfig(srv.URL, nil))

	p, err := reg.Get(context.Background(), "exact")
	require.NoError(t, err)
	assert.Equal(t, "exact", p.Name())
	assert.Equal(t, providers.ProviderTypeOAuth2, p.Type())

	var verified *providers.UserProfile
	res, err := p.Authenticate(context.Background(), "code", func(_ context.Context, tokens *providers.TokenSet, profile *providers.UserProfile) (any, error) {
		assert.Equal(t, "at", tokens.AccessToken)
		assert.Equal(t, "rt", tokens.RefreshToken)
		verified = profile
		return "local-user", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "local-user", res.User)
	tok := res.Tokens
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)

	up := res.Profile
	assert.Equal(t, verified, up)
	assert.Equal(t, "u-42", up.ProviderID)
	assert.Equal(t, "piet@example.nl", up.Email)
	assert.Equal(t, "Piet Jansen", up.Name)
	assert.Equal(t, "Piet", up.GivenName)
	assert.Equal(t, "Jansen", up.FamilyName)
	assert.Equal(t, "nl-NL", up.Locale)
	assert.Equal(t, 7, up.Raw["currentDivision"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileFetches.WithLabelValues("json", metrics.ResultOK)))
}

func TestAuthorizeURL_ForceLogin(t *testing.T) {
	p, err := New(testConfig("https://start.exactonline.de", map[string]string{ExtraForceLogin: "true"}), nil)
	require.NoError(t, err)

	u, err := url.Parse(p.AuthorizeURL("s1", []string{"ignored"}))
	require.NoError(t, err)
	assert.Equal(t, "start.exactonline.de", u.Host)
	assert.Equal(t, "1", u.Query().Get("force_login"))
	assert.Equal(t, "s1", u.Query().Get("state"))
	assert.Empty(t, u.Query().Get("scope"))
}

func TestNew_BadExtra(t *testing.T) {
	for _, extra := range []map[string]string{
		{ExtraFormat: "csv"},
		{ExtraProfileRetries: "many"},
		{ExtraProfileRetries: "-1"},
	} {
		_, err := New(testConfig("", extra), nil)
		require.Error(t, err, extra)
	}
}

func TestAuthenticate_RecordsProfileFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","token_type":"bearer"}`)
	})
	mux.HandleFunc("/api/v1/current/Me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, err := metrics.New(nil)
	require.NoError(t, err)
	p, err := New(testConfig(srv.URL, map[string]string{ExtraFormat: "xml"}), m)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), "code", nil)
	assert.True(t, exactoauth.IsInternalOAuthError(err))
	assert.NotErrorIs(t, err, providers.ErrExchangeFailed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileFetches.WithLabelValues("xml", metrics.ResultError)))
}

func TestAuthenticate_ErrorKinds(t *testing.T) {
	srv := newServer(t)
	p, err := New(testConfig(srv.URL, nil), nil)
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), "code", func(context.Context, *providers.TokenSet, *providers.UserProfile) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, providers.ErrUserRejected)
	assert.ErrorIs(t, err, exactoauth.ErrUserRejected)

	boom := errors.New("store down")
	_, err = p.Authenticate(context.Background(), "code", func(context.Context, *providers.TokenSet, *providers.UserProfile) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, providers.ErrUserRejected)

	_, err = p.Authenticate(context.Background(), "", nil)
	assert.ErrorIs(t, err, providers.ErrExchangeFailed)

	// Without verify every profile is accepted.
	res, err := p.Authenticate(context.Background(), "code", nil)
	require.NoError(t, err)
	assert.Equal(t, "u-42", res.Profile.ProviderID)
}

func TestToUserProfile_XMLFallsBackToRawEmail(t *testing.T) {
	up := ToUserProfile(&exactoauth.Profile{
		Provider:    "exact",
		ID:          "u",
		DisplayName: "A B",
		FirstName:   "A",
		LastName:    "B",
		Raw:         map[string]any{"Email": "ab@example.nl"},
	})
	assert.Equal(t, "ab@example.nl", up.Email)
	assert.Contains(t, up.Raw, "_json")
}
