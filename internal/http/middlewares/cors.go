package middlewares

import (
	"net/http"
	"strings"
)

// WithCORS answers preflights and sets credentialed CORS headers for the
// allowed origins. "*" reflects any origin.
func WithCORS(allowed []string) Middleware {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

	origins := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if a = trim(a); a != "" {
			origins = append(origins, a)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := trim(r.Header.Get("Origin"))
			match := false
			for _, a := range origins {
				if origin != "" && (a == "*" || strings.EqualFold(origin, a)) {
					match = true
					break
				}
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if match {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-CSRF-Token")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Location")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
