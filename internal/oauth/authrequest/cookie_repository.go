package authrequest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultCookieName = "oauth2-authorization-request"
	DefaultMaxAge     = 180 * time.Second

	// los browsers descartan cookies de más de ~4KB
	maxCookieValueLen = 3800
)

var (
	ErrClientRedirectURIMissing = errors.New("client-redirect-uri is required")
	ErrRequestTooLarge          = errors.New("authorization request does not fit in a cookie")
)

// CookieConfig configura la cookie de la authorization request.
type CookieConfig struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// CookieRepository guarda la Request como base64url(JSON) en una cookie
// HttpOnly. El contenido no es secreto: la protección real es el state
// comparado en el callback y la validación del redirect del cliente.
type CookieRepository struct {
	name     string
	maxAge   time.Duration
	secure   bool
	sameSite http.SameSite
}

// NewCookieRepository aplica defaults a los campos vacíos.
func NewCookieRepository(cfg CookieConfig) *CookieRepository {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.SameSite == 0 {
		// Lax: la vuelta desde el provider es una navegación top-level GET
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &CookieRepository{
		name:     cfg.Name,
		maxAge:   cfg.MaxAge,
		secure:   cfg.Secure,
		sameSite: cfg.SameSite,
	}
}

// CookieName devuelve el nombre de la cookie.
func (c *CookieRepository) CookieName() string { return c.name }

// Save escribe req en la cookie. Una req nil equivale a Remove.
func (c *CookieRepository) Save(w http.ResponseWriter, r *http.Request, req *Request, clientRedirectURI string) error {
	if req == nil {
		c.expire(w)
		return nil
	}
	clientRedirectURI = strings.TrimSpace(clientRedirectURI)
	if clientRedirectURI == "" {
		return ErrClientRedirectURIMissing
	}

	pending := req.Clone()
	if pending.AdditionalParameters == nil {
		pending.AdditionalParameters = map[string]string{}
	}
	pending.AdditionalParameters[ParamClientRedirectURI] = clientRedirectURI

	value, err := encode(pending)
	if err != nil {
		return err
	}
	if len(value) > maxCookieValueLen {
		return ErrRequestTooLarge
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		Expires:  time.Now().Add(c.maxAge),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
	return nil
}

// Load lee la request pendiente. Cookie ausente o ilegible => (nil, false).
func (c *CookieRepository) Load(r *http.Request) (*Request, bool) {
	ck, err := r.Cookie(c.name)
	if err != nil || ck.Value == "" {
		return nil, false
	}
	req, err := decode(ck.Value)
	if err != nil {
		return nil, false
	}
	return req, true
}

// Remove lee la request pendiente y expira la cookie en la misma respuesta,
// de modo que un callback repetido no pueda reutilizarla.
func (c *CookieRepository) Remove(w http.ResponseWriter, r *http.Request) (*Request, bool) {
	if _, err := r.Cookie(c.name); err != nil {
		return nil, false
	}
	req, ok := c.Load(r)
	c.expire(w)
	return req, ok
}

func (c *CookieRepository) expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
}

func encode(req *Request) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decode(value string) (*Request, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, err
	}
	if req.ClientRedirectURI() == "" {
		return nil, ErrClientRedirectURIMissing
	}
	return &req, nil
}
