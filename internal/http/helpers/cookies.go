package helpers

import (
	"net/http"
	"time"
)

// CookieConfig controls the session and CSRF cookies.
type CookieConfig struct {
	SessionName string
	CSRFName    string
	Domain      string
	Secure      bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.SessionName == "" {
		c.SessionName = "exact_session"
	}
	if c.CSRFName == "" {
		c.CSRFName = "exact_csrf"
	}
	return c
}

// SetSession writes the HttpOnly session cookie and the script readable
// CSRF cookie.
func (c CookieConfig) SetSession(w http.ResponseWriter, sessionID, csrf string, expires time.Time) {
	c = c.withDefaults()
	http.SetCookie(w, &http.Cookie{
		Name:     c.SessionName,
		Value:    sessionID,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     c.CSRFName,
		Value:    csrf,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expires,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear expires both cookies.
func (c CookieConfig) Clear(w http.ResponseWriter) {
	c = c.withDefaults()
	for _, name := range []string{c.SessionName, c.CSRFName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   c.Domain,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: name == c.SessionName,
			Secure:   c.Secure,
		})
	}
}

// SessionID reads the session cookie.
func (c CookieConfig) SessionID(r *http.Request) string {
	ck, err := r.Cookie(c.withDefaults().SessionName)
	if err != nil {
		return ""
	}
	return ck.Value
}

// CSRFCookieName returns the effective CSRF cookie name.
func (c CookieConfig) CSRFCookieName() string { return c.withDefaults().CSRFName }
