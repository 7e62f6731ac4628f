// Package store abre el user store configurado (postgres o memory).
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
	"github.com/dropDatabas3/hellotasks/internal/store/memory"
	"github.com/dropDatabas3/hellotasks/internal/store/pg"
	migrations "github.com/dropDatabas3/hellotasks/migrations/postgres"
)

// Config selecciona el driver.
type Config struct {
	Driver string // "postgres" | "memory"
	DSN    string
	Pool   pg.PoolConfig
	// AutoMigrate aplica las migraciones embebidas al abrir.
	AutoMigrate bool
	// ConnectTimeout acota los reintentos de conexión al arrancar.
	ConnectTimeout time.Duration
}

// Stores agrupa el repositorio y su ciclo de vida.
type Stores struct {
	Users  repository.UserRepository
	Driver string
	// Pool es nil para memory.
	Pool  *pgxpool.Pool
	Close func()
}

// Open abre el store. Postgres se reintenta con backoff exponencial: la
// base puede levantar después que el servicio.
func Open(ctx context.Context, cfg Config) (*Stores, error) {
	log := logger.From(ctx).With(logger.Component("store"))

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "memory", "mem", "":
		log.Warn("using in-memory user store; users are lost on restart")
		return &Stores{Users: memory.NewUserStore(), Driver: "memory", Close: func() {}}, nil

	case "postgres", "pg", "postgresql":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("%w: storage.dsn is empty", repository.ErrNoDatabase)
		}
		timeout := cfg.ConnectTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = timeout

		var s *pg.Store
		err := backoff.RetryNotify(func() error {
			var err error
			s, err = pg.Open(ctx, cfg.DSN, cfg.Pool)
			return err
		}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
			log.Warn("postgres not ready, retrying", logger.Err(err), logger.DurationMs(next))
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		if cfg.AutoMigrate {
			n, err := pg.Migrate(ctx, s.Pool(), migrations.UsersFS, migrations.UsersDir, pg.Up)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", n))
		}
		return &Stores{Users: s, Driver: "postgres", Pool: s.Pool(), Close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
