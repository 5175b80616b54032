package social

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/exactauth/internal/http/errors"
	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	svc "github.com/dropDatabas3/exactauth/internal/social"
	"github.com/dropDatabas3/exactauth/internal/validation"
)

type CallbackController struct {
	service svc.CallbackService
	cookies helpers.CookieConfig
}

func NewCallbackController(service svc.CallbackService, cookies helpers.CookieConfig) *CallbackController {
	return &CallbackController{service: service, cookies: cookies}
}

// Callback handles GET /v2/auth/social/{provider}/callback
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"), logger.Provider(provider))

	if !validation.ValidProviderName(provider) {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("provider"))
		return
	}

	q := r.URL.Query()

	// The user declined, or the provider failed before issuing a code.
	if idpErr := strings.TrimSpace(q.Get("error")); idpErr != "" {
		desc := strings.TrimSpace(q.Get("error_description"))
		log.Warn("idp error", logger.String("error", idpErr), logger.String("description", desc))
		if idpErr == "access_denied" {
			httperrors.WriteError(w, httperrors.ErrAccessDenied.WithDetail(desc))
			return
		}
		httperrors.WriteError(w, httperrors.ErrBadGateway.WithDetail(idpErr))
		return
	}

	res, err := c.service.Callback(ctx, svc.CallbackRequest{
		Provider: provider,
		State:    q.Get("state"),
		Code:     q.Get("code"),
	})
	if err != nil {
		httperrors.WriteError(w, mapCallbackError(err))
		return
	}

	c.cookies.SetSession(w, res.SessionID, res.CSRFToken, res.ExpiresAt)
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func mapCallbackError(err error) *httperrors.AppError {
	switch {
	case errors.Is(err, svc.ErrCallbackMissingState):
		return httperrors.ErrBadRequest.WithDetail("state required")
	case errors.Is(err, svc.ErrCallbackMissingCode):
		return httperrors.ErrBadRequest.WithDetail("code required")
	case errors.Is(err, svc.ErrCallbackInvalidState),
		errors.Is(err, svc.ErrCallbackStateReused),
		errors.Is(err, svc.ErrCallbackProviderMismatch):
		return httperrors.ErrInvalidState.WithCause(err)
	case errors.Is(err, svc.ErrCallbackUserRejected):
		return httperrors.ErrUserRejected.WithCause(err)
	case errors.Is(err, svc.ErrCallbackProviderUnknown):
		return httperrors.ErrProviderNotFound.WithCause(err)
	case errors.Is(err, svc.ErrCallbackExchangeFailed),
		errors.Is(err, svc.ErrCallbackProfileFailed):
		return httperrors.ErrBadGateway.WithCause(err)
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}
