package social

import (
	"net/http"

	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	"github.com/dropDatabas3/exactauth/internal/providers"
)

// ProvidersController lists the configured providers.
type ProvidersController struct {
	registry *providers.Registry
}

func NewProvidersController(reg *providers.Registry) *ProvidersController {
	return &ProvidersController{registry: reg}
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// GetProviders handles GET /v2/auth/providers
func (c *ProvidersController) GetProviders(w http.ResponseWriter, _ *http.Request) {
	names := c.registry.Available()
	if names == nil {
		names = []string{}
	}
	helpers.WriteJSON(w, http.StatusOK, ProvidersResponse{Providers: names})
}
