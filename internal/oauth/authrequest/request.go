// Package authrequest persiste la authorization request OAuth2 en curso
// dentro de una cookie, para sobrevivir el redirect al provider sin
// estado del lado del servidor.
package authrequest

import "strings"

// ParamClientRedirectURI es el parámetro adicional reservado donde viaja
// el destino final que pidió el cliente.
const ParamClientRedirectURI = "client-redirect-uri"

// Atributos internos (no se envían al provider).
const (
	AttrRegistrationID = "registration_id"
	AttrCodeVerifier   = "code_verifier"
)

// Request es la authorization request pendiente más el contexto del cliente.
type Request struct {
	AuthorizationURI     string            `json:"authorization_uri"`
	GrantType            string            `json:"grant_type"`
	ResponseType         string            `json:"response_type"`
	ClientID             string            `json:"client_id"`
	RedirectURI          string            `json:"redirect_uri"`
	Scopes               []string          `json:"scopes,omitempty"`
	State                string            `json:"state"`
	AdditionalParameters map[string]string `json:"additional_parameters,omitempty"`
	Attributes           map[string]string `json:"attributes,omitempty"`
	// CreatedAt en segundos unix; la cookie expira sola, esto es para logs.
	CreatedAt int64 `json:"created_at,omitempty"`
}

// ClientRedirectURI devuelve el destino pedido por el cliente, o "".
func (r *Request) ClientRedirectURI() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.AdditionalParameters[ParamClientRedirectURI])
}

// RegistrationID devuelve el provider con el que arrancó el flujo.
func (r *Request) RegistrationID() string {
	if r == nil {
		return ""
	}
	return r.Attributes[AttrRegistrationID]
}

// Param devuelve un parámetro adicional.
func (r *Request) Param(key string) string {
	if r == nil {
		return ""
	}
	return r.AdditionalParameters[key]
}

// Clone copia profunda; Save nunca muta la request del caller.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Scopes != nil {
		c.Scopes = append([]string(nil), r.Scopes...)
	}
	c.AdditionalParameters = cloneMap(r.AdditionalParameters)
	c.Attributes = cloneMap(r.Attributes)
	return &c
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
