package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/exactauth/internal/config"
	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Exact.ClientID = "cid"
	cfg.Exact.ClientSecret = "csecret"
	cfg.Exact.CallbackURL = "http://localhost:8080/v2/auth/social/exact/callback"
	cfg.Auth.StateSecret = strings.Repeat("s", 32)
	cfg.Cache.Kind = "memory"
	cfg.Storage.DSN = ""
	cfg.Security.SecretBoxMasterKey = ""
	return cfg
}

func TestNew_WiresHandler(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rr := httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"cache":"ok","store":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v2/auth/social/exact/start", nil))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "https://start.exactonline.nl/api/oauth2/auth?"))

	rr = httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "session_cache_keys")
}

func TestNew_SealedClientSecret(t *testing.T) {
	key := strings.Repeat("00", 32)
	box, err := secretbox.New(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := box.Seal("csecret")
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Exact.ClientSecret = secretbox.SealedPrefix + sealed
	cfg.Security.SecretBoxMasterKey = key

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, "csecret", cfg.Exact.ClientSecret)

	cfg = testConfig(t)
	cfg.Exact.ClientSecret = secretbox.SealedPrefix + sealed
	_, err = New(context.Background(), cfg)
	require.ErrorIs(t, err, secretbox.ErrNoKey)
}

func TestNew_Failures(t *testing.T) {
	cases := map[string]func(*config.Config){
		"missing client id":  func(c *config.Config) { c.Exact.ClientID = "" },
		"short state secret": func(c *config.Config) { c.Auth.StateSecret = "short" },
		"bad format":         func(c *config.Config) { c.Exact.Format = "csv" },
		"unknown cache":      func(c *config.Config) { c.Cache.Kind = "memcached" },
		"bad pg lifetime": func(c *config.Config) {
			c.Storage.DSN = "postgres://u:p@127.0.0.1:1/db"
			c.Storage.Postgres.ConnMaxLifetime = "forever"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(cfg)
			_, err := New(context.Background(), cfg)
			require.Error(t, err)
		})
	}
}

func TestNew_RateLimitedLogin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rate.Enabled = true
	cfg.Rate.MaxRequests = 1

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v2/auth/social/exact/start", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusFound, http.StatusTooManyRequests}, codes)

	// other endpoints are not limited
	rr := httptest.NewRecorder()
	a.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v2/auth/providers", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
