package middlewares

import (
	"math"
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/dropDatabas3/exactauth/internal/http/errors"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/rate"
)

// RateKeyFunc derives the limiter key of a request.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey keys by client IP and path.
func IPPathRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// WithRateLimit rejects requests over the limit with 429. A nil limiter
// disables the check and limiter errors let the request through.
func WithRateLimit(l rate.Limiter, key RateKeyFunc) Middleware {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if key == nil {
		key = IPPathRateKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), key(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter failed", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if res.WindowTTL > 0 {
				h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}
			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(res.RetryAfter)))
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds is d in whole seconds, rounded up, at least 1.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
