package social

import (
	"errors"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/exactauth/internal/http/errors"
	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
	svc "github.com/dropDatabas3/exactauth/internal/social"
	"github.com/dropDatabas3/exactauth/internal/store"
)

// SessionController serves the endpoints behind the session cookie.
type SessionController struct {
	sessions   svc.SessionService
	identities store.IdentityStore
	cookies    helpers.CookieConfig
}

func NewSessionController(sessions svc.SessionService, identities store.IdentityStore, cookies helpers.CookieConfig) *SessionController {
	return &SessionController{sessions: sessions, identities: identities, cookies: cookies}
}

type meResponse struct {
	UserID      string                 `json:"user_id"`
	Provider    string                 `json:"provider"`
	Profile     *providers.UserProfile `json:"profile"`
	Identity    *store.Identity        `json:"identity,omitempty"`
	ExpiresAt   time.Time              `json:"expires_at"`
	TokenExpiry *time.Time             `json:"token_expiry,omitempty"`
}

// Me handles GET /v2/me
func (c *SessionController) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.load(w, r)
	if !ok {
		return
	}

	ident, err := c.identities.Get(r.Context(), sess.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.From(r.Context()).Error("identity lookup failed", logger.UserID(sess.UserID), logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	helpers.WriteJSON(w, http.StatusOK, meResponse{
		UserID:      sess.UserID,
		Provider:    sess.Provider,
		Profile:     sess.Profile,
		Identity:    ident,
		ExpiresAt:   sess.ExpiresAt,
		TokenExpiry: tokenExpiry(sess),
	})
}

// Refresh handles POST /v2/auth/refresh
func (c *SessionController) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.load(w, r)
	if !ok {
		return
	}
	sess, err := c.sessions.Refresh(r.Context(), sess.ID)
	switch {
	case err == nil:
	case errors.Is(err, svc.ErrSessionNotFound):
		httperrors.WriteError(w, httperrors.ErrSessionExpired)
		return
	case errors.Is(err, svc.ErrSessionNoRefresh):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("session has no refresh token"))
		return
	case errors.Is(err, svc.ErrSessionRefreshFailed):
		httperrors.WriteError(w, httperrors.ErrBadGateway.WithCause(err))
		return
	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"token_expiry": tokenExpiry(sess)})
}

// Logout handles POST /v2/auth/logout
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	if id := c.cookies.SessionID(r); id != "" {
		if err := c.sessions.Delete(r.Context(), id); err != nil {
			logger.From(r.Context()).Warn("session delete failed", logger.SessionID(id), logger.Err(err))
		}
	}
	c.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (c *SessionController) load(w http.ResponseWriter, r *http.Request) (*svc.Session, bool) {
	id := c.cookies.SessionID(r)
	if id == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return nil, false
	}
	sess, err := c.sessions.Get(r.Context(), id)
	if errors.Is(err, svc.ErrSessionNotFound) {
		c.cookies.Clear(w)
		httperrors.WriteError(w, httperrors.ErrSessionExpired)
		return nil, false
	}
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return nil, false
	}
	return sess, true
}

func tokenExpiry(s *svc.Session) *time.Time {
	if s == nil || s.TokenExpiry.IsZero() {
		return nil
	}
	t := s.TokenExpiry
	return &t
}
