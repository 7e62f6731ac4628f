package login

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellotasks/internal/identity"
	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"github.com/dropDatabas3/hellotasks/internal/oauth/authrequest"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
)

// Callback: Remove de la cookie -> validación del redirect -> exchange ->
// normalize -> reconcile -> issue -> redirect, en ese orden.
//
// Sin request pendiente o con un destino no permitido devuelve error (el
// controller responde JSON). Los errores de protocolo o identidad terminan
// en un redirect de fallo; los de infraestructura se devuelven.
func (s *service) Callback(ctx context.Context, w http.ResponseWriter, r *http.Request, provider string) (*Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op("Callback"),
		logger.Provider(provider),
	)

	pending, ok := s.requests.Remove(w, r)
	if !ok {
		return nil, ErrAuthorizationRequestNotFound
	}
	if _, err := s.validateTarget(pending); err != nil {
		log.Warn("client redirect rejected", logger.Redirect(pending.ClientRedirectURI()), logger.Err(err))
		return nil, err
	}

	raw, id, err := s.exchange(ctx, r, pending, provider)
	if err != nil {
		return s.fail(ctx, pending, provider, err)
	}

	ident, err := s.normalizer.Normalize(*raw)
	if err != nil {
		return s.fail(ctx, pending, provider, err)
	}

	u, err := s.identities.Reconcile(ctx, ident)
	if err != nil {
		if _, isFailure := failureCode(err); !isFailure {
			log.Error("user reconciliation failed", logger.Err(err))
		}
		return s.fail(ctx, pending, id.String(), err)
	}

	return s.OnSuccess(ctx, w, pending, u)
}

// exchange valida el callback contra la request pendiente y trae el
// user-info del provider.
func (s *service) exchange(ctx context.Context, r *http.Request, pending *authrequest.Request, provider string) (*providers.RawUser, providers.ID, error) {
	id, ok := providers.ParseID(provider)
	if !ok {
		return nil, "", ErrUnsupportedProvider
	}
	if pending.RegistrationID() != id.String() {
		return nil, id, ErrProviderMismatch
	}

	q := r.URL.Query()
	if code := strings.TrimSpace(q.Get("error")); code != "" {
		return nil, id, &ProviderError{Code: code, Description: q.Get("error_description")}
	}
	if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(pending.State)) != 1 || pending.State == "" {
		return nil, id, ErrStateMismatch
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		return nil, id, ErrMissingCode
	}

	params := make(map[string]string, len(pending.AdditionalParameters))
	for k, v := range pending.AdditionalParameters {
		if k != authrequest.ParamClientRedirectURI {
			params[k] = v
		}
	}

	raw, err := s.providers.FetchUser(ctx, id, code, pending.Attributes[authrequest.AttrCodeVerifier], params)
	if err != nil {
		return nil, id, err
	}
	return raw, id, nil
}

// fail decide entre redirect de fallo y error de infraestructura.
func (s *service) fail(ctx context.Context, pending *authrequest.Request, provider string, cause error) (*Redirect, error) {
	if errors.Is(cause, providers.ErrProviderUnreachable) {
		logger.From(ctx).Error("identity provider unreachable",
			logger.Layer("service"),
			logger.Op("Callback"),
			logger.Provider(provider),
			logger.Err(cause),
		)
		metrics.RecordLogin(provider, "unreachable")
		return nil, cause
	}
	if _, isFailure := failureCode(cause); !isFailure {
		metrics.RecordLogin(provider, "error")
		return nil, fmt.Errorf("login callback: %w", cause)
	}
	return s.OnFailure(ctx, pending, cause)
}

// failureCode traduce la causa al código ?error=. El segundo valor es
// false para errores que no son de protocolo ni de identidad.
func failureCode(cause error) (string, bool) {
	var pe *ProviderError
	switch {
	case errors.As(cause, &pe):
		if pe.Code == codeAccessDenied {
			return codeAccessDenied, true
		}
		return CodeAuthenticationFailed, true
	case errors.Is(cause, ErrStateMismatch):
		return CodeStateMismatch, true
	case errors.Is(cause, ErrProviderMismatch):
		return CodeProviderMismatch, true
	case errors.Is(cause, ErrMissingCode):
		return CodeInvalidRequest, true
	case errors.Is(cause, ErrUnsupportedProvider), errors.Is(cause, providers.ErrUnsupportedProvider):
		return CodeUnsupportedProvider, true
	case errors.Is(cause, providers.ErrEmailMissing), errors.Is(cause, identity.ErrNoEmail):
		return CodeEmailMissing, true
	case errors.Is(cause, providers.ErrProviderRejected):
		return CodeProviderRejected, true
	}
	return "", false
}
