package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/exactauth/internal/metrics"
)

// WithMetrics records request count, latency and in-flight gauges. The path
// label is the chi route pattern so provider names do not explode cardinality.
func WithMetrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// The pattern is only known after routing, so in-flight uses the raw method.
			m.HTTPInflight.WithLabelValues(method, "*").Inc()
			defer func() {
				m.HTTPInflight.WithLabelValues(method, "*").Dec()
				path := routePattern(r)
				m.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
				m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
