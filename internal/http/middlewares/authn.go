package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	httperrors "github.com/dropDatabas3/hellotasks/internal/http/errors"
	"github.com/dropDatabas3/hellotasks/internal/jwt"
	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
)

const (
	DefaultBearerPrefix = "Bearer "
	DefaultTokenCookie  = "access_token"
)

// Autoridades derivadas de los claims.
const (
	AuthorityUser  = repository.RoleUser
	AuthorityAdmin = repository.RoleAdmin
)

// =================================================================================
// CONVERTER
// =================================================================================

// TokenConverter extrae el valor crudo del token de un request.
type TokenConverter struct {
	HeaderPrefix string
	CookieName   string
}

func (c TokenConverter) prefix() string {
	if c.HeaderPrefix == "" {
		return DefaultBearerPrefix
	}
	return c.HeaderPrefix
}

func (c TokenConverter) cookie() string {
	if c.CookieName == "" {
		return DefaultTokenCookie
	}
	return c.CookieName
}

// Convert devuelve el token y true si el request trae una credencial.
//
// Orden: Authorization con el prefijo configurado gana sobre la cookie.
// Un prefijo sin valor ("Bearer ") es "sin credencial" y no cae a la
// cookie. Un Authorization con otro esquema se ignora.
func (c TokenConverter) Convert(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		prefix := c.prefix()
		trimmedPrefix := strings.TrimSpace(prefix)
		switch {
		case len(h) >= len(prefix) && strings.EqualFold(h[:len(prefix)], prefix):
			tok := strings.TrimSpace(h[len(prefix):])
			return tok, tok != ""
		case strings.EqualFold(strings.TrimSpace(h), trimmedPrefix):
			// el transporte recorta el espacio final de "Bearer "
			return "", false
		}
	}

	ck, err := r.Cookie(c.cookie())
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(ck.Value)
	return tok, tok != ""
}

// =================================================================================
// AUTHENTICATOR
// =================================================================================

// Principal es la identidad del request, construida sólo con claims.
type Principal struct {
	Subject     string    `json:"sub"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	Picture     string    `json:"picture,omitempty"`
	Admin       bool      `json:"admin"`
	Authorities []string  `json:"authorities"`
	ExpiresAt   time.Time `json:"expires_at"`
	// Claims es el mapa completo del token.
	Claims map[string]any `json:"-"`
}

// HasAuthority indica si el principal tiene la autoridad a.
func (p *Principal) HasAuthority(a string) bool {
	if p == nil {
		return false
	}
	for _, x := range p.Authorities {
		if x == a {
			return true
		}
	}
	return false
}

// TokenParser es la parte del codec que necesita el autenticador.
type TokenParser interface {
	Parse(value string) (*jwt.AccessToken, error)
}

// TokenAuthenticator valida tokens y arma el Principal sin ir a la base.
type TokenAuthenticator struct {
	Parser TokenParser
}

// Authenticate valida raw. Los errores son *jwt.InvalidTokenError.
func (a *TokenAuthenticator) Authenticate(raw string) (*Principal, error) {
	tok, err := a.Parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return PrincipalFromToken(tok), nil
}

// PrincipalFromToken arma el principal con los claims del token.
func PrincipalFromToken(tok *jwt.AccessToken) *Principal {
	p := &Principal{
		Subject:     tok.Subject,
		Email:       tok.ClaimString(jwt.ClaimEmail),
		Name:        tok.ClaimString(jwt.ClaimName),
		Picture:     tok.ClaimString(jwt.ClaimPicture),
		Admin:       tok.ClaimBool(jwt.ClaimAdmin),
		Authorities: []string{AuthorityUser},
		ExpiresAt:   tok.ExpiresAt,
		Claims:      tok.Claims,
	}
	if p.Admin {
		p.Authorities = append(p.Authorities, AuthorityAdmin)
	}
	return p
}

// Authenticate extrae y valida el token de cada request. Con éxito deja
// el Principal en el contexto; con un token inválido registra el
// motivo y sigue como anónimo. Rechazar es trabajo de RequireAuth.
func Authenticate(conv TokenConverter, auth *TokenAuthenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := conv.Convert(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			p, err := auth.Authenticate(raw)
			if err != nil {
				kind := jwt.KindOf(err).String()
				log := logger.From(r.Context()).With(
					logger.Layer("middleware"),
					logger.Op("Authenticate"),
					logger.TokenKind(kind),
				)
				if kind == jwt.KindExpired.String() {
					log.Debug("access token rejected")
				} else {
					log.Warn("access token rejected", logger.Err(err))
				}
				metrics.RecordTokenRejected(kind)
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(p.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth responde 401 si el request no tiene principal.
func RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetPrincipal(r.Context()) == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hellotasks"`)
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthority responde 403 si el principal no tiene la autoridad.
// Sin principal responde 401 como RequireAuth.
func RequireAuthority(authority string) Middleware {
	return func(next http.Handler) http.Handler {
		return RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetPrincipal(r.Context()).HasAuthority(authority) {
				httperrors.WriteError(w, httperrors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
