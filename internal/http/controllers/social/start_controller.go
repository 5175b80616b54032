package social

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/exactauth/internal/http/errors"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	svc "github.com/dropDatabas3/exactauth/internal/social"
	"github.com/dropDatabas3/exactauth/internal/validation"
)

type StartController struct {
	service svc.StartService
}

func NewStartController(service svc.StartService) *StartController {
	return &StartController{service: service}
}

// Start handles GET /v2/auth/social/{provider}/start
func (c *StartController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("StartController.Start"), logger.Provider(provider))

	if !validation.ValidProviderName(provider) {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("provider"))
		return
	}

	result, err := c.service.Start(ctx, svc.StartRequest{
		Provider:    provider,
		RedirectURI: strings.TrimSpace(r.URL.Query().Get("redirect_uri")),
	})
	if err != nil {
		log.Warn("start failed", logger.Err(err))
		switch {
		case errors.Is(err, svc.ErrStartProviderUnknown):
			httperrors.WriteError(w, httperrors.ErrProviderNotFound.WithDetail(provider))
		case errors.Is(err, svc.ErrStartRedirectNotAllowed):
			httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("redirect_uri not allowed"))
		default:
			httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		}
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	log.Debug("redirect to provider")
}
