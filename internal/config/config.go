// Package config carga la configuración del servicio: defaults, luego el
// YAML (si hay path) y por último overrides de entorno HELLOTASKS_*.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellotasks/internal/validation"
)

// EnvPrefix antecede a todas las variables de entorno.
const EnvPrefix = "HELLOTASKS_"

// Modos de entrega del access token al cliente.
const (
	DeliveryQuery  = "query"
	DeliveryCookie = "cookie"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env" env:"ENV"`
		Name    string `yaml:"name" env:"NAME"`
		Version string `yaml:"version" env:"VERSION"`
	} `yaml:"app" envPrefix:"APP_"`

	Server struct {
		Addr            string        `yaml:"addr" env:"ADDR"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`

	Log struct {
		Level string `yaml:"level" env:"LEVEL"`
	} `yaml:"log" envPrefix:"LOG_"`

	Storage struct {
		// memory | postgres
		Driver          string        `yaml:"driver" env:"DRIVER"`
		DSN             string        `yaml:"dsn" env:"DSN"`
		MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS"`
		MinConns        int32         `yaml:"min_conns" env:"MIN_CONNS"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
		AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	} `yaml:"storage" envPrefix:"STORAGE_"`

	JWT struct {
		SigningKey string        `yaml:"signing_key" env:"SIGNING_KEY"`
		Validity   time.Duration `yaml:"validity" env:"VALIDITY"`
		Issuer     string        `yaml:"issuer" env:"ISSUER"`
		// Leeway default 0: exp se respeta al segundo.
		Leeway time.Duration `yaml:"leeway" env:"LEEWAY"`
	} `yaml:"jwt" envPrefix:"JWT_"`

	Auth struct {
		CookieName     string `yaml:"cookie_name" env:"COOKIE_NAME"`
		CookieDomain   string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`
		CookieSecure   bool   `yaml:"cookie_secure" env:"COOKIE_SECURE"`
		CookieSameSite string `yaml:"cookie_samesite" env:"COOKIE_SAMESITE"`
		BearerPrefix   string `yaml:"bearer_prefix" env:"BEARER_PREFIX"`
		// query | cookie
		TokenDelivery     string   `yaml:"token_delivery" env:"TOKEN_DELIVERY"`
		RedirectAllowlist []string `yaml:"redirect_allowlist" env:"REDIRECT_ALLOWLIST" envSeparator:","`
		AdminEmails       []string `yaml:"admin_emails" env:"ADMIN_EMAILS" envSeparator:","`

		RequestCookie struct {
			Name   string        `yaml:"name" env:"NAME"`
			MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`
		} `yaml:"request_cookie" envPrefix:"REQUEST_COOKIE_"`
	} `yaml:"auth" envPrefix:"AUTH_"`

	Providers struct {
		Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
		Google   Provider      `yaml:"google" envPrefix:"GOOGLE_"`
		Facebook Provider      `yaml:"facebook" envPrefix:"FACEBOOK_"`
		GitHub   Provider      `yaml:"github" envPrefix:"GITHUB_"`
		VK       Provider      `yaml:"vk" envPrefix:"VK_"`
	} `yaml:"providers" envPrefix:"PROVIDERS_"`

	Rate struct {
		Enabled   bool          `yaml:"enabled" env:"ENABLED"`
		Limit     int           `yaml:"limit" env:"LIMIT"`
		Window    time.Duration `yaml:"window" env:"WINDOW"`
		RedisAddr string        `yaml:"redis_addr" env:"REDIS_ADDR"`
		RedisDB   int           `yaml:"redis_db" env:"REDIS_DB"`
		Prefix    string        `yaml:"prefix" env:"PREFIX"`
	} `yaml:"rate" envPrefix:"RATE_"`

	Events struct {
		NATSURL       string `yaml:"nats_url" env:"NATS_URL"`
		SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
	} `yaml:"events" envPrefix:"EVENTS_"`
}

// Provider es la configuración de un identity provider.
type Provider struct {
	Enabled      bool     `yaml:"enabled" env:"ENABLED"`
	ClientID     string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"REDIRECT_URL"`
	Scopes       []string `yaml:"scopes" env:"SCOPES" envSeparator:","`
	PKCE         bool     `yaml:"pkce" env:"PKCE"`
	// Overrides de endpoints (proxies, entornos de prueba).
	AuthURL     string `yaml:"auth_url" env:"AUTH_URL"`
	TokenURL    string `yaml:"token_url" env:"TOKEN_URL"`
	UserInfoURL string `yaml:"userinfo_url" env:"USERINFO_URL"`
}

// Default devuelve la configuración con defaults aplicados.
func Default() *Config {
	var c Config
	c.App.Env = "dev"
	c.App.Name = "hellotasks"
	c.Server.Addr = ":8080"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 30 * time.Second
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Log.Level = "info"
	c.Storage.Driver = "memory"
	c.Storage.ConnectTimeout = 30 * time.Second
	c.JWT.Validity = 10 * 24 * time.Hour
	c.Auth.CookieName = "access_token"
	c.Auth.CookieSameSite = "lax"
	c.Auth.BearerPrefix = "Bearer "
	c.Auth.TokenDelivery = DeliveryQuery
	c.Auth.RequestCookie.Name = "oauth2-authorization-request"
	c.Auth.RequestCookie.MaxAge = 180 * time.Second
	c.Providers.Timeout = 10 * time.Second
	c.Rate.Limit = 30
	c.Rate.Window = time.Minute
	c.Rate.Prefix = "hellotasks:rl:"
	c.Events.SubjectPrefix = "hellotasks"
	return &c
}

// Load aplica defaults, el YAML en path (si no está vacío) y el entorno,
// y valida el resultado.
func Load(path string) (*Config, error) {
	c := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// IsProd indica si corre en producción.
func (c *Config) IsProd() bool {
	e := strings.ToLower(c.App.Env)
	return e == "prod" || e == "production"
}

// SameSite traduce auth.cookie_samesite.
func (c *Config) SameSite() http.SameSite {
	switch strings.ToLower(c.Auth.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// EnabledProviders devuelve los providers habilitados por nombre.
func (c *Config) EnabledProviders() map[string]Provider {
	out := map[string]Provider{}
	for name, p := range c.providersByName() {
		if p.Enabled {
			out[name] = p
		}
	}
	return out
}

func (c *Config) providersByName() map[string]Provider {
	return map[string]Provider{
		"google":   c.Providers.Google,
		"facebook": c.Providers.Facebook,
		"github":   c.Providers.GitHub,
		"vk":       c.Providers.VK,
	}
}

// minProdKeyLen: HS256 pide una clave de al menos 256 bits.
const minProdKeyLen = 32

// Validate devuelve todos los problemas encontrados juntos.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr is required")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "mem":
	case "postgres", "pg", "postgresql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		add("storage.driver %q is not supported (memory|postgres)", c.Storage.Driver)
	}

	if c.JWT.SigningKey == "" {
		add("jwt.signing_key is required")
	} else if c.IsProd() && len(c.JWT.SigningKey) < minProdKeyLen {
		add("jwt.signing_key must be at least %d bytes in prod", minProdKeyLen)
	}
	if c.JWT.Validity < time.Second {
		add("jwt.validity must be at least 1s")
	}
	if c.JWT.Leeway < 0 {
		add("jwt.leeway must not be negative")
	}

	switch c.Auth.TokenDelivery {
	case DeliveryQuery, DeliveryCookie:
	default:
		add("auth.token_delivery %q must be %q or %q", c.Auth.TokenDelivery, DeliveryQuery, DeliveryCookie)
	}
	if c.Auth.CookieName == "" {
		add("auth.cookie_name is required")
	}
	if strings.EqualFold(c.Auth.CookieSameSite, "none") && !c.Auth.CookieSecure {
		add("auth.cookie_samesite=none requires auth.cookie_secure")
	}
	if len(c.Auth.RedirectAllowlist) == 0 {
		add("auth.redirect_allowlist must not be empty")
	} else if _, err := validation.NewRedirectAllowList(c.Auth.RedirectAllowlist); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.RequestCookie.MaxAge < time.Second {
		add("auth.request_cookie.max_age must be at least 1s")
	}

	for name, p := range c.EnabledProviders() {
		if p.ClientID == "" || p.RedirectURL == "" {
			add("providers.%s: client_id and redirect_url are required", name)
		}
		for _, s := range p.Scopes {
			if !validation.ValidProviderScope(s) {
				add("providers.%s: invalid scope %q", name, s)
			}
		}
	}
	if c.Providers.Timeout <= 0 {
		add("providers.timeout must be positive")
	}

	if c.Rate.Enabled && (c.Rate.Limit <= 0 || c.Rate.Window <= 0) {
		add("rate.limit and rate.window must be positive when rate is enabled")
	}

	return errors.Join(errs...)
}
