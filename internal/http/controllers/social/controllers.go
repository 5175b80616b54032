// Package social contains the controllers of the social login endpoints.
package social

import (
	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	"github.com/dropDatabas3/exactauth/internal/providers"
	svc "github.com/dropDatabas3/exactauth/internal/social"
	"github.com/dropDatabas3/exactauth/internal/store"
)

// Controllers groups the social controllers.
type Controllers struct {
	Providers *ProvidersController
	Start     *StartController
	Callback  *CallbackController
	Session   *SessionController
}

func NewControllers(s svc.Services, reg *providers.Registry, identities store.IdentityStore, cookies helpers.CookieConfig) *Controllers {
	return &Controllers{
		Providers: NewProvidersController(reg),
		Start:     NewStartController(s.Start),
		Callback:  NewCallbackController(s.Callback, cookies),
		Session:   NewSessionController(s.Sessions, identities, cookies),
	}
}
