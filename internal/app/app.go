// Package app es la raíz de composición: arma stores, providers, codec,
// servicios, controllers y router a partir de la configuración.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellotasks/internal/config"
	"github.com/dropDatabas3/hellotasks/internal/events"
	healthctrl "github.com/dropDatabas3/hellotasks/internal/http/controllers/health"
	loginctrl "github.com/dropDatabas3/hellotasks/internal/http/controllers/login"
	mw "github.com/dropDatabas3/hellotasks/internal/http/middlewares"
	"github.com/dropDatabas3/hellotasks/internal/http/router"
	healthsvc "github.com/dropDatabas3/hellotasks/internal/http/services/health"
	loginsvc "github.com/dropDatabas3/hellotasks/internal/http/services/login"
	"github.com/dropDatabas3/hellotasks/internal/identity"
	"github.com/dropDatabas3/hellotasks/internal/jwt"
	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"github.com/dropDatabas3/hellotasks/internal/oauth/authrequest"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
	"github.com/dropDatabas3/hellotasks/internal/rate"
	"github.com/dropDatabas3/hellotasks/internal/store"
	"github.com/dropDatabas3/hellotasks/internal/store/pg"
	"github.com/dropDatabas3/hellotasks/internal/validation"
)

// App es la aplicación cableada.
type App struct {
	Handler http.Handler
	Codec   *jwt.Codec
	Stores  *store.Stores

	closers []func()
}

// Close libera conexiones en orden inverso a su apertura.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// New arma la aplicación. Si falla, lo ya abierto se cierra.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	log := logger.From(ctx).With(logger.Component("app"))
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ─── Store ───
	stores, err := store.Open(ctx, StoreConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Stores = stores
	a.closers = append(a.closers, stores.Close)

	// ─── Token codec ───
	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	a.Codec = codec

	// ─── Providers ───
	registry, err := providers.NewRegistry(ProviderConfigs(cfg), providers.WithTimeout(cfg.Providers.Timeout))
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	if len(registry.Enabled()) == 0 {
		log.Warn("no identity provider enabled; federated login is unavailable")
	}

	// ─── Events ───
	var publisher events.Publisher = events.Noop{}
	var natsCheck func(context.Context) error
	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		nc, err := events.Connect(ctx, url, cfg.App.Name, cfg.Storage.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		publisher = events.NewNATSPublisher(nc, cfg.Events.SubjectPrefix)
		a.closers = append(a.closers, func() { _ = publisher.Close() })
		natsCheck = func(context.Context) error {
			if nc.Status() != nats.CONNECTED {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}
	}

	// ─── Rate limiting ───
	var limiter rate.Limiter
	var redisCheck func(context.Context) error
	if cfg.Rate.Enabled {
		if addr := strings.TrimSpace(cfg.Rate.RedisAddr); addr != "" {
			client := rdb.NewClient(&rdb.Options{Addr: addr, DB: cfg.Rate.RedisDB})
			a.closers = append(a.closers, func() { _ = client.Close() })
			limiter = rate.NewRedisLimiter(client, cfg.Rate.Prefix, cfg.Rate.Limit, cfg.Rate.Window)
			redisCheck = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Prefix, cfg.Rate.Limit, cfg.Rate.Window)
		}
	}

	// ─── Metrics ───
	metricsHandler, err := metrics.Register(metrics.Config{
		Pool: func() *pgxpool.Pool { return stores.Pool },
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// ─── Login ───
	allow, err := validation.NewRedirectAllowList(cfg.Auth.RedirectAllowlist)
	if err != nil {
		return nil, err
	}
	identities := identity.NewManager(identity.ManagerDeps{
		Users:       stores.Users,
		Publisher:   publisher,
		AdminEmails: cfg.Auth.AdminEmails,
	})
	login := loginsvc.NewService(loginsvc.Deps{
		Providers:  registry,
		Normalizer: providers.NewManager(),
		Identities: identities,
		Tokens:     codec,
		Requests: authrequest.NewCookieRepository(authrequest.CookieConfig{
			Name:     cfg.Auth.RequestCookie.Name,
			MaxAge:   cfg.Auth.RequestCookie.MaxAge,
			Secure:   cfg.Auth.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		}),
		Redirects: allow,
		Cookie: loginsvc.AccessCookie{
			Name:     cfg.Auth.CookieName,
			Domain:   cfg.Auth.CookieDomain,
			Secure:   cfg.Auth.CookieSecure,
			SameSite: cfg.SameSite(),
		},
		Delivery: cfg.Auth.TokenDelivery,
	})

	health := healthsvc.NewHealthService(healthsvc.Deps{
		Version:    cfg.App.Version,
		StoreCheck: stores.Users.Ping,
		RedisCheck: redisCheck,
		NATSCheck:  natsCheck,
		Tokens:     codec,
	})

	a.Handler = router.New(router.Deps{
		Login:  loginctrl.NewLoginController(login),
		Health: healthctrl.NewHealthController(health),
		Converter: mw.TokenConverter{
			HeaderPrefix: cfg.Auth.BearerPrefix,
			CookieName:   cfg.Auth.CookieName,
		},
		Authenticator: &mw.TokenAuthenticator{Parser: codec},
		RateLimiter:   limiter,
		Metrics:       metricsHandler,
	})

	log.Info("application wired",
		logger.String("store", stores.Driver),
		logger.Int("providers", len(registry.Enabled())),
		logger.String("delivery", cfg.Auth.TokenDelivery),
		logger.Bool("rate_limit", limiter != nil),
		logger.Bool("events", natsCheck != nil),
	)
	return a, nil
}

// NewCodec arma el codec de tokens desde la config.
func NewCodec(cfg *config.Config) (*jwt.Codec, error) {
	codec, err := jwt.NewCodec(jwt.CodecConfig{
		SigningKey: []byte(cfg.JWT.SigningKey),
		Validity:   cfg.JWT.Validity,
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	return codec, nil
}

// StoreConfig traduce storage.* al factory de stores.
func StoreConfig(cfg *config.Config) store.Config {
	return store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Pool: pg.PoolConfig{
			MaxConns:        cfg.Storage.MaxConns,
			MinConns:        cfg.Storage.MinConns,
			ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		},
		AutoMigrate:    cfg.Storage.AutoMigrate,
		ConnectTimeout: cfg.Storage.ConnectTimeout,
	}
}

// ProviderConfigs traduce providers.* al registry.
func ProviderConfigs(cfg *config.Config) map[providers.ID]providers.Config {
	out := make(map[providers.ID]providers.Config, 4)
	for name, p := range cfg.EnabledProviders() {
		id, ok := providers.ParseID(name)
		if !ok {
			continue
		}
		out[id] = providers.Config{
			Enabled:      true,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       p.Scopes,
			PKCE:         p.PKCE,
			AuthURL:      p.AuthURL,
			TokenURL:     p.TokenURL,
			UserInfoURL:  p.UserInfoURL,
		}
	}
	return out
}
