// Package login contiene los controllers del login federado y de la
// sesión basada en access token.
package login

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	httperrors "github.com/dropDatabas3/hellotasks/internal/http/errors"
	mw "github.com/dropDatabas3/hellotasks/internal/http/middlewares"
	svc "github.com/dropDatabas3/hellotasks/internal/http/services/login"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
)

// LoginController maneja start, callback, logout y /v1/me.
type LoginController struct {
	service svc.Service
}

// NewLoginController crea un nuevo LoginController.
func NewLoginController(service svc.Service) *LoginController {
	return &LoginController{service: service}
}

// Start maneja GET /oauth2/authorization/{provider}
func (c *LoginController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Start"))

	res, err := c.service.Start(ctx, w, r, chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, err, log)
		return
	}
	redirect(w, r, res.Location)
}

// Callback maneja GET /login/oauth2/code/{provider}
func (c *LoginController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Callback"))

	res, err := c.service.Callback(ctx, w, r, chi.URLParam(r, "provider"))
	if err != nil {
		writeServiceError(w, err, log)
		return
	}
	redirect(w, r, res.Location)
}

// Logout maneja GET|POST /logout
func (c *LoginController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Logout"))

	res, err := c.service.Logout(ctx, w, r)
	if err != nil {
		writeServiceError(w, err, log)
		return
	}
	if res == nil {
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	redirect(w, r, res.Location)
}

// Me maneja GET /v1/me. Requiere RequireAuth antes.
func (c *LoginController) Me(w http.ResponseWriter, r *http.Request) {
	p := mw.GetPrincipal(r.Context())
	if p == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(p)
}

func redirect(w http.ResponseWriter, r *http.Request, location string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, location, http.StatusFound)
}

func writeServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, svc.ErrAuthorizationRequestNotFound):
		log.Warn("no pending authorization request")
		httperrors.WriteError(w, httperrors.ErrAuthorizationRequestNotFound)
	case errors.Is(err, svc.ErrRedirectNotAllowed):
		httperrors.WriteError(w, httperrors.ErrRedirectNotAllowed)
	case errors.Is(err, svc.ErrClientRedirectURIMissing):
		httperrors.WriteError(w, httperrors.ErrClientRedirectURIMissing)
	case errors.Is(err, svc.ErrUnsupportedProvider):
		httperrors.WriteError(w, httperrors.ErrUnsupportedProvider)
	case errors.Is(err, svc.ErrRequestTooLarge):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("authorization request too large"))
	case errors.Is(err, providers.ErrProviderUnreachable):
		log.Error("identity provider unreachable", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrProviderUnreachable.WithCause(err))
	default:
		log.Error("login failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
	}
}
