package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/exactauth/internal/security/secretbox"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
		Version  string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string        `yaml:"addr"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Exact struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"` // plain or "enc:<nonce|ct>"
		BaseURL      string `yaml:"base_url"`
		CallbackURL  string `yaml:"callback_url"`
		Format       string `yaml:"format"` // json | xml
		ForceLogin   bool   `yaml:"force_login"`

		// ProfileRetries retries a profile fetch on 429/5xx or network errors.
		ProfileRetries *int `yaml:"profile_retries"`
	} `yaml:"exact"`

	Storage struct {
		// Empty DSN keeps identities in memory.
		DSN      string `yaml:"dsn"`
		Migrate  bool   `yaml:"migrate"`
		Postgres struct {
			MaxConns        int32  `yaml:"max_conns"`
			MinConns        int32  `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Auth struct {
		StateSecret      string        `yaml:"state_secret"`
		StateIssuer      string        `yaml:"state_issuer"`
		StateTTL         time.Duration `yaml:"state_ttl"`
		SessionTTL       time.Duration `yaml:"session_ttl"`
		AllowedRedirects []string      `yaml:"allowed_redirects"`
		DefaultRedirect  string        `yaml:"default_redirect"`
		Cookie           struct {
			SessionName string `yaml:"session_name"`
			CSRFName    string `yaml:"csrf_name"`
			Domain      string `yaml:"domain"`
			Secure      bool   `yaml:"secure"`
		} `yaml:"cookie"`
	} `yaml:"auth"`

	Rate struct {
		Enabled     bool          `yaml:"enabled"`
		MaxRequests int           `yaml:"max_requests"`
		Window      time.Duration `yaml:"window"`
	} `yaml:"rate"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
	} `yaml:"security"`
}

// Load reads the YAML file at path (optional: a missing file yields
// defaults), then applies env overrides.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Exact.BaseURL == "" {
		c.Exact.BaseURL = "https://start.exactonline.nl"
	}
	if c.Exact.Format == "" {
		c.Exact.Format = "json"
	}
	if c.Exact.ProfileRetries == nil {
		n := 2
		c.Exact.ProfileRetries = &n
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "exactauth"
	}
	if c.Auth.StateIssuer == "" {
		c.Auth.StateIssuer = "exactauth"
	}
	if c.Auth.StateTTL == 0 {
		c.Auth.StateTTL = 10 * time.Minute
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 8 * time.Hour
	}
	if c.Auth.DefaultRedirect == "" {
		c.Auth.DefaultRedirect = "/"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 30
	}
	if c.Rate.Window == 0 {
		c.Rate.Window = time.Minute
	}
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvDur("SERVER_SHUTDOWN_TIMEOUT"); ok {
		c.Server.ShutdownTimeout = v
	}

	if v, ok := getEnvStr("EXACT_CLIENT_ID"); ok {
		c.Exact.ClientID = v
	}
	if v, ok := getEnvStr("EXACT_CLIENT_SECRET"); ok {
		c.Exact.ClientSecret = v
	}
	if v, ok := getEnvStr("EXACT_BASE_URL"); ok {
		c.Exact.BaseURL = v
	}
	if v, ok := getEnvStr("EXACT_CALLBACK_URL"); ok {
		c.Exact.CallbackURL = v
	}
	if v, ok := getEnvStr("EXACT_FORMAT"); ok {
		c.Exact.Format = v
	}
	if v, ok := getEnvBool("EXACT_FORCE_LOGIN"); ok {
		c.Exact.ForceLogin = v
	}
	if v, ok := getEnvInt("EXACT_PROFILE_RETRIES"); ok {
		c.Exact.ProfileRetries = &v
	}

	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_MIGRATE"); ok {
		c.Storage.Migrate = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = int32(v)
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	if v, ok := getEnvStr("STATE_SECRET"); ok {
		c.Auth.StateSecret = v
	}
	if v, ok := getEnvDur("STATE_TTL"); ok {
		c.Auth.StateTTL = v
	}
	if v, ok := getEnvDur("SESSION_TTL"); ok {
		c.Auth.SessionTTL = v
	}
	if v, ok := getEnvCSV("ALLOWED_REDIRECTS"); ok {
		c.Auth.AllowedRedirects = v
	}
	if v, ok := getEnvBool("COOKIE_SECURE"); ok {
		c.Auth.Cookie.Secure = v
	}
	if v, ok := getEnvStr("COOKIE_DOMAIN"); ok {
		c.Auth.Cookie.Domain = v
	}

	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvDur("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}

	if v, ok := getEnvStr(secretbox.EnvVar); ok {
		c.Security.SecretBoxMasterKey = v
	}
}

// Box returns the secretbox for the configured master key, or nil when none
// is set.
func (c *Config) Box() (*secretbox.Box, error) {
	if strings.TrimSpace(c.Security.SecretBoxMasterKey) == "" {
		return nil, nil
	}
	key, err := secretbox.ParseKey(c.Security.SecretBoxMasterKey)
	if err != nil {
		return nil, err
	}
	return secretbox.New(key)
}

// ResolveSecrets opens "enc:" values in place.
func (c *Config) ResolveSecrets(b *secretbox.Box) error {
	sec, err := secretbox.Resolve(b, c.Exact.ClientSecret)
	if err != nil {
		return fmt.Errorf("exact.client_secret: %w", err)
	}
	c.Exact.ClientSecret = sec

	st, err := secretbox.Resolve(b, c.Auth.StateSecret)
	if err != nil {
		return fmt.Errorf("auth.state_secret: %w", err)
	}
	c.Auth.StateSecret = st
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Exact.ClientID == "" {
		errs = append(errs, errors.New("exact.client_id is required"))
	}
	if c.Exact.CallbackURL == "" {
		errs = append(errs, errors.New("exact.callback_url is required"))
	}
	if c.Exact.ProfileRetries != nil && *c.Exact.ProfileRetries < 0 {
		errs = append(errs, errors.New("exact.profile_retries must not be negative"))
	}
	switch strings.ToLower(c.Exact.Format) {
	case "json", "xml", "atom":
	default:
		errs = append(errs, fmt.Errorf("exact.format %q: want json or xml", c.Exact.Format))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q: want memory or redis", c.Cache.Kind))
	}
	if len(c.Auth.StateSecret) < 32 {
		errs = append(errs, errors.New("auth.state_secret must be at least 32 bytes"))
	}
	return errors.Join(errs...)
}
