// Package login contiene el flujo de login federado: arranque de la
// authorization request, callback del provider, redirects de éxito y
// fallo hacia el cliente, y logout.
package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/jwt"
	"github.com/dropDatabas3/hellotasks/internal/oauth/authrequest"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/validation"
)

// Modos de entrega del access token al cliente.
const (
	DeliveryQuery  = "query"
	DeliveryCookie = "cookie"
)

// Parámetros de query en el redirect al cliente.
const (
	ParamToken = "token"
	ParamError = "error"
)

// Códigos de error que viajan en ?error= al cliente.
const (
	CodeStateMismatch        = "state_mismatch"
	CodeProviderMismatch     = "provider_mismatch"
	CodeInvalidRequest       = "invalid_request"
	CodeProviderRejected     = "provider_rejected"
	CodeEmailMissing         = "email_missing"
	CodeUnsupportedProvider  = "unsupported_provider"
	CodeAuthenticationFailed = "authentication_failed"

	// access_denied es el usuario cancelando en el provider.
	codeAccessDenied = "access_denied"
)

// Service errors
var (
	ErrAuthorizationRequestNotFound = errors.New("authorization request not found or expired")
	ErrRedirectNotAllowed           = errors.New("redirect uri not allowed")
	ErrClientRedirectURIMissing     = errors.New("client-redirect-uri is required")
	ErrUnsupportedProvider          = errors.New("provider not supported")
	ErrRequestTooLarge              = errors.New("authorization request too large")

	ErrStateMismatch    = errors.New("state does not match pending request")
	ErrProviderMismatch = errors.New("callback provider does not match pending request")
	ErrMissingCode      = errors.New("authorization code missing")
)

// ProviderError es el error que el provider devolvió en el callback
// (?error=access_denied&error_description=…).
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Description)
	}
	return "provider error " + e.Code
}

// Redirect es el resultado de las operaciones que terminan en un 302.
type Redirect struct {
	Location string
}

// Service define el flujo de login.
type Service interface {
	// Start persiste la authorization request y devuelve la URL del provider.
	Start(ctx context.Context, w http.ResponseWriter, r *http.Request, provider string) (*Redirect, error)
	// Callback completa el login y redirige al cliente (éxito o fallo).
	Callback(ctx context.Context, w http.ResponseWriter, r *http.Request, provider string) (*Redirect, error)
	// OnSuccess emite el token para u y arma el redirect al cliente.
	OnSuccess(ctx context.Context, w http.ResponseWriter, pending *authrequest.Request, u *repository.User) (*Redirect, error)
	// OnFailure arma el redirect de error al cliente.
	OnFailure(ctx context.Context, pending *authrequest.Request, cause error) (*Redirect, error)
	// Logout borra la cookie del token. Redirect nil = sin destino (204).
	Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Redirect, error)
}

// ProviderRegistry es lo que el servicio usa de providers.Registry.
type ProviderRegistry interface {
	Get(id providers.ID) (*providers.Registration, error)
	FetchUser(ctx context.Context, id providers.ID, code, verifier string, params map[string]string) (*providers.RawUser, error)
}

// IdentityNormalizer mapea el user-info crudo a Identity.
type IdentityNormalizer interface {
	Normalize(raw providers.RawUser) (*providers.Identity, error)
}

// UserReconciler es el find-or-create del usuario local.
type UserReconciler interface {
	Reconcile(ctx context.Context, id *providers.Identity) (*repository.User, error)
}

// TokenIssuer emite access tokens.
type TokenIssuer interface {
	Issue(u *repository.User) (*jwt.AccessToken, error)
	Validity() time.Duration
}

// AccessCookie configura la cookie del access token.
type AccessCookie struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Providers  ProviderRegistry
	Normalizer IdentityNormalizer
	Identities UserReconciler
	Tokens     TokenIssuer
	Requests   *authrequest.CookieRepository
	Redirects  *validation.RedirectAllowList
	Cookie     AccessCookie
	Delivery   string           // query | cookie
	Now        func() time.Time // opcional, para tests
}

type service struct {
	providers  ProviderRegistry
	normalizer IdentityNormalizer
	identities UserReconciler
	tokens     TokenIssuer
	requests   *authrequest.CookieRepository
	redirects  *validation.RedirectAllowList
	cookie     AccessCookie
	delivery   string
	now        func() time.Time
}

// NewService crea el Service de login.
func NewService(d Deps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	delivery := d.Delivery
	if delivery != DeliveryCookie {
		delivery = DeliveryQuery
	}
	cookie := d.Cookie
	if cookie.Name == "" {
		cookie.Name = "access_token"
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return &service{
		providers:  d.Providers,
		normalizer: d.Normalizer,
		identities: d.Identities,
		tokens:     d.Tokens,
		requests:   d.Requests,
		redirects:  d.Redirects,
		cookie:     cookie,
		delivery:   delivery,
		now:        now,
	}
}
