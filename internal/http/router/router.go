// Package router mounts the HTTP API on chi.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/exactauth/internal/http/controllers/social"
	httperrors "github.com/dropDatabas3/exactauth/internal/http/errors"
	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	mw "github.com/dropDatabas3/exactauth/internal/http/middlewares"
	"github.com/dropDatabas3/exactauth/internal/metrics"
	"github.com/dropDatabas3/exactauth/internal/rate"
)

// Checker is pinged by /readyz.
type Checker interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Social  *social.Controllers
	Metrics *metrics.Metrics
	Cookies helpers.CookieConfig
	// Ready maps a component name to its health check.
	Ready       map[string]Checker
	CORSOrigins []string
	// RateLimiter guards the login endpoints. Nil disables it.
	RateLimiter rate.Limiter
}

// New returns the root handler.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(d.Metrics),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(d.Ready))
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/v2", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		r.Get("/auth/providers", d.Social.Providers.GetProviders)
		r.Get("/me", d.Social.Session.Me)

		r.Group(func(r chi.Router) {
			r.Use(mw.WithRateLimit(d.RateLimiter, nil))
			r.Get("/auth/social/{provider}/start", d.Social.Start.Start)
			r.Get("/auth/social/{provider}/callback", d.Social.Callback.Callback)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.WithCSRF(mw.CSRFConfig{CookieName: d.Cookies.CSRFCookieName()}))
			r.Post("/auth/refresh", d.Social.Session.Refresh)
			r.Post("/auth/logout", d.Social.Session.Logout)
		})
	})
	return r
}

func readyHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				out[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		helpers.WriteJSON(w, status, out)
	}
}
