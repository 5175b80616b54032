package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/exactauth/internal/cache"
	"github.com/dropDatabas3/exactauth/internal/http/controllers/social"
	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	"github.com/dropDatabas3/exactauth/internal/metrics"
	"github.com/dropDatabas3/exactauth/internal/providers"
	exactprovider "github.com/dropDatabas3/exactauth/internal/providers/exact"
	svc "github.com/dropDatabas3/exactauth/internal/social"
	"github.com/dropDatabas3/exactauth/internal/store"
)

// fakeExact answers the authorize redirect itself, so a client following
// redirects walks the whole login.
func fakeExact(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth2/auth", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cb := q.Get("redirect_uri") + "?code=good&state=" + url.QueryEscape(q.Get("state"))
		http.Redirect(w, r, cb, http.StatusFound)
	})
	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","token_type":"bearer","expires_in":600,"refresh_token":"rt"}`)
	})
	mux.HandleFunc("/api/v1/current/Me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"d":{"results":[{"UserID":"ex-9","FullName":"Sanne de Vries","FirstName":"Sanne","LastName":"de Vries","Email":"sanne@example.nl","CurrentDivision":5}]}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newApp(t *testing.T) *httptest.Server {
	t.Helper()
	idp := fakeExact(t)

	m, err := metrics.New(nil)
	require.NoError(t, err)

	app := httptest.NewUnstartedServer(nil)
	callback := "http://" + app.Listener.Addr().String() + "/v2/auth/social/exact/callback"

	reg := providers.NewRegistry()
	reg.Register(exactprovider.ProviderName, exactprovider.NewFactory(m), providers.ProviderConfig{
		ClientID:    "cid",
		RedirectURI: callback,
		Extra:       map[string]string{exactprovider.ExtraBaseURL: idp.URL},
	})
	signer, err := svc.NewHMACSigner([]byte("0123456789abcdef0123456789abcdef"), "test", time.Minute)
	require.NoError(t, err)

	c := cache.NewMemory("")
	ids := store.NewMemory()
	services := svc.NewServices(svc.Deps{
		Providers:       reg,
		StateSigner:     signer,
		Cache:           c,
		Identities:      ids,
		Metrics:         m,
		DefaultRedirect: "/v2/me",
	})
	cookies := helpers.CookieConfig{}

	app.Config.Handler = New(Deps{
		Social:  social.NewControllers(services, reg, ids, cookies),
		Metrics: m,
		Cookies: cookies,
		Ready:   map[string]Checker{"cache": c, "store": ids},
	})
	app.Start()
	t.Cleanup(app.Close)
	return app
}

func TestLoginThroughHTTP(t *testing.T) {
	app := newApp(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	// start -> exact authorize -> callback -> /v2/me
	resp, err := client.Get(app.URL + "/v2/auth/social/exact/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me struct {
		UserID   string `json:"user_id"`
		Provider string `json:"provider"`
		Profile  struct {
			ProviderID string `json:"provider_id"`
			Email      string `json:"email"`
			Name       string `json:"name"`
		} `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "exact", me.Provider)
	assert.Equal(t, "ex-9", me.Profile.ProviderID)
	assert.Equal(t, "Sanne de Vries", me.Profile.Name)
	assert.NotEmpty(t, me.UserID)

	u, _ := url.Parse(app.URL)
	var csrf string
	for _, ck := range jar.Cookies(u) {
		if ck.Name == "exact_csrf" {
			csrf = ck.Value
		}
	}
	require.NotEmpty(t, csrf)

	// logout without the CSRF header is refused
	req, _ := http.NewRequest(http.MethodPost, app.URL+"/v2/auth/logout", nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, app.URL+"/v2/auth/refresh", nil)
	req.Header.Set("X-CSRF-Token", csrf)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, app.URL+"/v2/auth/logout", nil)
	req.Header.Set("X-CSRF-Token", csrf)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.Get(app.URL + "/v2/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCallbackErrors(t *testing.T) {
	app := newApp(t)
	noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	cases := []struct {
		path string
		want int
		code string
	}{
		{"/v2/auth/social/exact/callback?error=access_denied&error_description=nope", http.StatusForbidden, "ACCESS_DENIED"},
		{"/v2/auth/social/exact/callback?code=x", http.StatusBadRequest, "BAD_REQUEST"},
		{"/v2/auth/social/exact/callback?code=x&state=forged", http.StatusBadRequest, "INVALID_STATE"},
		{"/v2/auth/social/unknown/start", http.StatusNotFound, "PROVIDER_NOT_FOUND"},
		{"/v2/auth/social/2fa/start", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"/v2/auth/social/exact/start?redirect_uri=https://evil.example.com", http.StatusBadRequest, "INVALID_PARAMETER"},
		{"/nope", http.StatusNotFound, "ROUTE_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := noFollow.Get(app.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tc.code)
		})
	}
}

func TestStartRedirectsToExact(t *testing.T) {
	app := newApp(t)
	noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := noFollow.Get(app.URL + "/v2/auth/social/exact/start")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	loc := resp.Header.Get("Location")
	assert.True(t, strings.Contains(loc, "/api/oauth2/auth?"), loc)
	assert.Contains(t, loc, "client_id=cid")
}

func TestOperationalEndpoints(t *testing.T) {
	app := newApp(t)

	for _, p := range []string{"/healthz", "/readyz", "/metrics", "/v2/auth/providers"} {
		resp, err := http.Get(app.URL + p)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		if p == "/v2/auth/providers" {
			assert.JSONEq(t, `{"providers":["exact"]}`, string(body))
		}
	}
}
