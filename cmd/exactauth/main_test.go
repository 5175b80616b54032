package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestEndpoints(t *testing.T) {
	t.Setenv("EXACT_BASE_URL", "https://start.exactonline.be/")
	out, err := run(t, "endpoints")
	require.NoError(t, err)
	assert.Contains(t, out, "authorize: https://start.exactonline.be/api/oauth2/auth")
	assert.Contains(t, out, "token:     https://start.exactonline.be/api/oauth2/token")
	assert.Contains(t, out, "profile:   https://start.exactonline.be/api/v1/current/Me")
	assert.Contains(t, out, "format:    json")
}

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"d":{"results":[{"UserID":"u-1","FullName":"Jan Smit","Email":"jan@example.nl"}]}}`)
	}))
	defer srv.Close()
	t.Setenv("EXACT_BASE_URL", srv.URL)

	out, err := run(t, "profile", "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "u-1"`)
	assert.Contains(t, out, `"displayName": "Jan Smit"`)

	_, err = run(t, "profile", "--token", "wrong")
	require.Error(t, err)

	t.Setenv("EXACT_ACCESS_TOKEN", "")
	_, err = run(t, "profile")
	require.Error(t, err)
}

func TestEncryptSecret(t *testing.T) {
	t.Setenv(secretbox.EnvVar, strings.Repeat("11", 32))
	out, err := run(t, "encrypt-secret", "hunter2")
	require.NoError(t, err)

	sealed := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(sealed, secretbox.SealedPrefix))
	box, err := secretbox.FromEnv()
	require.NoError(t, err)
	plain, err := secretbox.Resolve(box, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	t.Setenv(secretbox.EnvVar, "")
	_, err = run(t, "encrypt-secret", "x")
	require.ErrorIs(t, err, secretbox.ErrNoKey)
}

func TestMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("STORAGE_DSN", "")
	_, err := run(t, "migrate", "up")
	require.Error(t, err)

	_, err = run(t, "migrate", "sideways")
	require.Error(t, err)
}
