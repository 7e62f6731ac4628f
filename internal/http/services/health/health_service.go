// Package health contiene el service para health checks.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/jwt"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
)

// Estados posibles de la respuesta y de cada componente.
const (
	StatusReady       = "ready"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"

	componentOK       = "ok"
	componentError    = "error"
	componentDisabled = "disabled"
)

// ComponentStatus es el estado de una dependencia.
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response es el cuerpo de /readyz.
type Response struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) Response
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	Version    string
	StoreCheck func(ctx context.Context) error // crítico
	RedisCheck func(ctx context.Context) error // opcional
	NATSCheck  func(ctx context.Context) error // opcional
	Tokens     *jwt.Codec                      // crítico
	Timeout    time.Duration                   // por check, default 2s
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Timeout <= 0 {
		deps.Timeout = 2 * time.Second
	}
	return &healthService{deps: deps}
}

const componentHealth = "health"

func (s *healthService) Check(ctx context.Context) Response {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentHealth),
		logger.Op("Check"),
	)

	resp := Response{
		Version:    s.deps.Version,
		Components: make(map[string]ComponentStatus, 4),
		Timestamp:  time.Now().UTC(),
	}

	critical := false
	degraded := false

	check := func(name string, fn func(context.Context) error, isCritical bool) {
		if fn == nil {
			resp.Components[name] = ComponentStatus{Status: componentDisabled}
			return
		}
		cctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			resp.Components[name] = ComponentStatus{Status: componentError, Message: fmt.Sprintf("unavailable: %v", err)}
			log.Error(name+" unavailable", logger.Err(err))
			if isCritical {
				critical = true
			} else {
				degraded = true
			}
			return
		}
		resp.Components[name] = ComponentStatus{Status: componentOK}
	}

	check("store", s.deps.StoreCheck, true)
	check("token_codec", s.tokenProbe(), true)
	check("redis", s.deps.RedisCheck, false)
	check("nats", s.deps.NATSCheck, false)

	switch {
	case critical:
		resp.Status = StatusUnavailable
	case degraded:
		resp.Status = StatusDegraded
	default:
		resp.Status = StatusReady
	}
	return resp
}

// tokenProbe firma y valida un token descartable con la clave activa.
func (s *healthService) tokenProbe() func(context.Context) error {
	if s.deps.Tokens == nil {
		return nil
	}
	return func(context.Context) error {
		tok, err := s.deps.Tokens.Issue(&repository.User{ID: "healthcheck", Email: "healthcheck@localhost"})
		if err != nil {
			return err
		}
		_, err = s.deps.Tokens.Parse(tok.Value)
		return err
	}
}
