// Package social runs the browser login flow: start, callback and the
// session that follows.
package social

import (
	"time"

	"github.com/dropDatabas3/exactauth/internal/cache"
	"github.com/dropDatabas3/exactauth/internal/metrics"
	"github.com/dropDatabas3/exactauth/internal/providers"
	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
	"github.com/dropDatabas3/exactauth/internal/store"
)

// Deps are the dependencies shared by the social services.
type Deps struct {
	Providers        *providers.Registry
	StateSigner      StateSigner
	StateTTL         time.Duration
	Cache            cache.Client
	Identities       store.IdentityStore
	Box              *secretbox.Box
	Metrics          *metrics.Metrics
	SessionTTL       time.Duration
	AllowedRedirects []string
	DefaultRedirect  string
}

type Services struct {
	Start    StartService
	Callback CallbackService
	Sessions SessionService
}

func NewServices(d Deps) Services {
	sessions := NewSessionService(SessionDeps{
		Cache:     d.Cache,
		Providers: d.Providers,
		Box:       d.Box,
		TTL:       d.SessionTTL,
	})
	return Services{
		Start: NewStartService(StartDeps{
			Providers:        d.Providers,
			StateSigner:      d.StateSigner,
			AllowedRedirects: d.AllowedRedirects,
		}),
		Callback: NewCallbackService(CallbackDeps{
			Providers:       d.Providers,
			StateSigner:     d.StateSigner,
			StateTTL:        d.StateTTL,
			Cache:           d.Cache,
			Identities:      d.Identities,
			Sessions:        sessions,
			Metrics:         d.Metrics,
			DefaultRedirect: d.DefaultRedirect,
		}),
		Sessions: sessions,
	}
}
