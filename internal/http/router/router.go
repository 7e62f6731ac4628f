// Package router arma el chi.Router del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	healthctrl "github.com/dropDatabas3/hellotasks/internal/http/controllers/health"
	loginctrl "github.com/dropDatabas3/hellotasks/internal/http/controllers/login"
	httperrors "github.com/dropDatabas3/hellotasks/internal/http/errors"
	mw "github.com/dropDatabas3/hellotasks/internal/http/middlewares"
	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"github.com/dropDatabas3/hellotasks/internal/rate"
)

// Deps contiene todo lo que necesita el router.
type Deps struct {
	Login  *loginctrl.LoginController
	Health *healthctrl.HealthController

	Converter     mw.TokenConverter
	Authenticator *mw.TokenAuthenticator

	// RateLimiter opcional para start/callback.
	RateLimiter rate.Limiter
	// Metrics es el handler de /metrics; nil = no se expone.
	Metrics http.Handler
}

// New construye el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		metrics.Instrument,
		mw.WithSecurityHeaders(),
	)
	if deps.Authenticator != nil {
		r.Use(mw.Authenticate(deps.Converter, deps.Authenticator))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	RegisterHealthRoutes(r, deps)
	RegisterLoginRoutes(r, deps)

	return r
}

// RegisterHealthRoutes registra /healthz, /readyz y /metrics. Sin auth.
func RegisterHealthRoutes(r chi.Router, deps Deps) {
	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Healthz)
		r.Get("/readyz", deps.Health.Readyz)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
}

// RegisterLoginRoutes registra el flujo OAuth2, logout y /v1/me.
func RegisterLoginRoutes(r chi.Router, deps Deps) {
	c := deps.Login
	if c == nil {
		return
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())

		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(mw.WithRateLimit(mw.RateLimitConfig{Limiter: deps.RateLimiter, Route: "login"}))
			}
			r.Get("/oauth2/authorization/{provider}", c.Start)
			r.Get("/login/oauth2/code/{provider}", c.Callback)
		})

		r.Get("/logout", c.Logout)
		r.Post("/logout", c.Logout)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth())
			r.Get("/v1/me", c.Me)
		})
	})
}
