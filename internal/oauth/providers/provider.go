// Package providers traduce el user-info de cada identity provider a una
// identidad normalizada y encapsula el code exchange con golang.org/x/oauth2.
//
//	callback ──► Registry.FetchUser (exchange + user-info) ──► RawUser
//	RawUser  ──► Manager.Normalize ──► Identity
package providers

import (
	"errors"
	"strings"
)

// ID identifica un provider soportado. El conjunto es cerrado.
type ID string

const (
	Google   ID = "google"
	Facebook ID = "facebook"
	GitHub   ID = "github"
	VK       ID = "vk"
)

// All lista los providers soportados en orden estable.
var All = []ID{Google, Facebook, GitHub, VK}

// ParseID valida un registration id recibido por URL.
func ParseID(s string) (ID, bool) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if id == known {
			return id, true
		}
	}
	return "", false
}

func (id ID) String() string { return string(id) }

var (
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	ErrEmailMissing        = errors.New("identity provider returned no email")
	ErrProviderUnreachable = errors.New("identity provider unreachable")
	// ErrProviderRejected: el provider respondió pero rechazó el code o el token.
	ErrProviderRejected = errors.New("identity provider rejected the request")
)

// RawUser es el user-info tal cual lo devolvió el provider.
type RawUser struct {
	Provider   ID
	Attributes map[string]any
	// AdditionalParameters de la authorization request pendiente, más los
	// que el fetcher copia de la respuesta de token (p.ej. email en VK).
	AdditionalParameters map[string]string
}

// Identity es el user-info normalizado, independiente del provider.
type Identity struct {
	Provider   ID
	Subject    string
	Email      string
	FullName   string
	PictureURL string
}
