package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/exactauth/internal/http/errors"
)

// CSRFConfig configures the double-submit check.
type CSRFConfig struct {
	HeaderName string // default X-CSRF-Token
	CookieName string // default exact_csrf
}

var errCSRF = &httperrors.AppError{
	Code:       "INVALID_CSRF_TOKEN",
	Message:    "CSRF token missing or mismatch.",
	HTTPStatus: http.StatusForbidden,
}

// WithCSRF requires the CSRF header to match the CSRF cookie on unsafe
// methods.
func WithCSRF(cfg CSRFConfig) Middleware {
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "exact_csrf"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			hdr := strings.TrimSpace(r.Header.Get(headerName))
			ck, _ := r.Cookie(cookieName)
			if hdr == "" || ck == nil || ck.Value == "" || subtle.ConstantTimeCompare([]byte(hdr), []byte(ck.Value)) != 1 {
				httperrors.WriteError(w, errCSRF)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
