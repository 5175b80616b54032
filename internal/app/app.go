// Package app wires the exactauth service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/exactauth/internal/cache"
	"github.com/dropDatabas3/exactauth/internal/config"
	socialctrl "github.com/dropDatabas3/exactauth/internal/http/controllers/social"
	"github.com/dropDatabas3/exactauth/internal/http/helpers"
	"github.com/dropDatabas3/exactauth/internal/http/router"
	"github.com/dropDatabas3/exactauth/internal/metrics"
	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
	exactprovider "github.com/dropDatabas3/exactauth/internal/providers/exact"
	"github.com/dropDatabas3/exactauth/internal/rate"
	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
	"github.com/dropDatabas3/exactauth/internal/social"
	"github.com/dropDatabas3/exactauth/internal/store"
	"github.com/dropDatabas3/exactauth/internal/store/pg"
	pgmigrations "github.com/dropDatabas3/exactauth/migrations/postgres"
)

// App is the wired service.
type App struct {
	cfg *config.Config

	Handler   http.Handler
	Metrics   *metrics.Metrics
	Providers *providers.Registry
	Cache     cache.Client
	Store     store.IdentityStore
	Services  social.Services

	closers []func() error
}

// New builds every dependency named by cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	log := logger.L().With(logger.Component("app"))

	box, err := cfg.Box()
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	if err := cfg.ResolveSecrets(box); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if a.Metrics, err = metrics.New(nil); err != nil {
		return nil, err
	}

	a.Cache, err = cache.New(ctx, cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Cache.Close)
	if err := a.Metrics.RegisterCache(a.Cache); err != nil {
		return nil, err
	}

	if a.Store, err = a.openStore(ctx); err != nil {
		return nil, err
	}

	retries := 0
	if cfg.Exact.ProfileRetries != nil {
		retries = *cfg.Exact.ProfileRetries
	}
	a.Providers = providers.NewRegistry()
	a.Providers.Register(exactprovider.ProviderName, exactprovider.NewFactory(a.Metrics), providers.ProviderConfig{
		ClientID:     cfg.Exact.ClientID,
		ClientSecret: cfg.Exact.ClientSecret,
		RedirectURI:  cfg.Exact.CallbackURL,
		Extra: map[string]string{
			exactprovider.ExtraBaseURL:        cfg.Exact.BaseURL,
			exactprovider.ExtraFormat:         cfg.Exact.Format,
			exactprovider.ExtraForceLogin:     fmt.Sprint(cfg.Exact.ForceLogin),
			exactprovider.ExtraProfileRetries: fmt.Sprint(retries),
		},
	})
	// Build once so a bad format or retry count fails at startup.
	if _, err := a.Providers.Get(ctx, exactprovider.ProviderName); err != nil {
		return nil, fmt.Errorf("provider %s: %w", exactprovider.ProviderName, err)
	}

	signer, err := social.NewHMACSigner([]byte(cfg.Auth.StateSecret), cfg.Auth.StateIssuer, cfg.Auth.StateTTL)
	if err != nil {
		return nil, err
	}
	if box == nil {
		log.Warn("no " + secretbox.EnvVar + "; provider tokens are kept unsealed in the session cache")
	}

	a.Services = social.NewServices(social.Deps{
		Providers:        a.Providers,
		StateSigner:      signer,
		StateTTL:         cfg.Auth.StateTTL,
		Cache:            a.Cache,
		Identities:       a.Store,
		Box:              box,
		Metrics:          a.Metrics,
		SessionTTL:       cfg.Auth.SessionTTL,
		AllowedRedirects: cfg.Auth.AllowedRedirects,
		DefaultRedirect:  cfg.Auth.DefaultRedirect,
	})

	cookies := helpers.CookieConfig{
		SessionName: cfg.Auth.Cookie.SessionName,
		CSRFName:    cfg.Auth.Cookie.CSRFName,
		Domain:      cfg.Auth.Cookie.Domain,
		Secure:      cfg.Auth.Cookie.Secure,
	}
	a.Handler = router.New(router.Deps{
		Social:      socialctrl.NewControllers(a.Services, a.Providers, a.Store, cookies),
		Metrics:     a.Metrics,
		Cookies:     cookies,
		Ready:       map[string]router.Checker{"cache": a.Cache, "store": a.Store},
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimiter: a.limiter(),
	})

	log.Info("app wired",
		zap.String("cache", cfg.Cache.Kind),
		zap.Bool("postgres", cfg.Storage.DSN != ""),
		logger.Format(cfg.Exact.Format),
	)
	return a, nil
}

// limiter shares the redis connection when the cache has one.
func (a *App) limiter() rate.Limiter {
	rc := a.cfg.Rate
	if !rc.Enabled {
		return nil
	}
	if r, ok := a.Cache.(*cache.RedisClient); ok {
		return rate.NewRedisLimiter(r.Redis(), a.cfg.Cache.Redis.Prefix+":rl:", rc.MaxRequests, rc.Window)
	}
	return rate.NewMemoryLimiter(rc.MaxRequests, rc.Window)
}

func (a *App) openStore(ctx context.Context) (store.IdentityStore, error) {
	if a.cfg.Storage.DSN == "" {
		return store.NewMemory(), nil
	}

	var lifetime time.Duration
	if s := a.cfg.Storage.Postgres.ConnMaxLifetime; s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("storage.postgres.conn_max_lifetime: %w", err)
		}
		lifetime = d
	}
	s, err := pg.New(ctx, a.cfg.Storage.DSN, pg.Config{
		MaxConns:        a.cfg.Storage.Postgres.MaxConns,
		MinConns:        a.cfg.Storage.Postgres.MinConns,
		ConnMaxLifetime: lifetime,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { s.Close(); return nil })

	if a.cfg.Storage.Migrate {
		if err := s.RunMigrations(ctx, pgmigrations.FS); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if err := a.Metrics.RegisterPool(s.Pool); err != nil {
		return nil, err
	}
	return s, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.Handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
	log := logger.L().With(logger.Component("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Close releases the cache and the store, in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
