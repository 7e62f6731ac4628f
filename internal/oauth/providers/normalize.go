package providers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Normalizer convierte el user-info de un provider en una Identity.
type Normalizer func(raw RawUser) (*Identity, error)

// Adapter asocia un provider con su normalizer.
type Adapter struct {
	ID        ID
	Normalize Normalizer
}

// Supports indica si el adapter atiende al provider dado.
func (a Adapter) Supports(provider ID) bool { return a.ID == provider }

// Manager elige el adapter según RawUser.Provider.
type Manager struct {
	adapters []Adapter
}

// NewManager devuelve un Manager con los cuatro providers soportados.
func NewManager() *Manager {
	return &Manager{adapters: []Adapter{
		{ID: Google, Normalize: normalizeGoogle},
		{ID: Facebook, Normalize: normalizeFacebook},
		{ID: GitHub, Normalize: normalizeGitHub},
		{ID: VK, Normalize: normalizeVK},
	}}
}

// Supports indica si hay un adapter para el provider.
func (m *Manager) Supports(provider ID) bool {
	for _, a := range m.adapters {
		if a.Supports(provider) {
			return true
		}
	}
	return false
}

// Normalize devuelve ErrUnsupportedProvider si no hay adapter y
// ErrEmailMissing si el provider no entregó email.
func (m *Manager) Normalize(raw RawUser) (*Identity, error) {
	for _, a := range m.adapters {
		if !a.Supports(raw.Provider) {
			continue
		}
		id, err := a.Normalize(raw)
		if err != nil {
			return nil, err
		}
		if id.Email == "" {
			return nil, fmt.Errorf("%w: provider %s", ErrEmailMissing, raw.Provider)
		}
		return id, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, raw.Provider)
}

func normalizeGoogle(raw RawUser) (*Identity, error) {
	a := raw.Attributes
	name := str(a, "name")
	if name == "" {
		name = joinName(str(a, "given_name"), str(a, "family_name"))
	}
	return &Identity{
		Provider:   Google,
		Subject:    str(a, "sub"),
		Email:      str(a, "email"),
		FullName:   name,
		PictureURL: str(a, "picture"),
	}, nil
}

func normalizeFacebook(raw RawUser) (*Identity, error) {
	a := raw.Attributes
	name := str(a, "name")
	if name == "" {
		name = joinName(str(a, "first_name"), str(a, "last_name"))
	}
	// picture: {"data": {"url": "..."}}
	var picture string
	if p, ok := a["picture"].(map[string]any); ok {
		if d, ok := p["data"].(map[string]any); ok {
			picture = str(d, "url")
		}
	}
	return &Identity{
		Provider:   Facebook,
		Subject:    str(a, "id"),
		Email:      str(a, "email"),
		FullName:   name,
		PictureURL: picture,
	}, nil
}

func normalizeGitHub(raw RawUser) (*Identity, error) {
	a := raw.Attributes
	name := str(a, "name")
	if name == "" {
		name = str(a, "login")
	}
	return &Identity{
		Provider:   GitHub,
		Subject:    str(a, "id"),
		Email:      str(a, "email"),
		FullName:   name,
		PictureURL: str(a, "avatar_url"),
	}, nil
}

// VK envuelve el usuario en {"response": [ {...} ]} y sólo entrega el
// email en la respuesta de token.
func normalizeVK(raw RawUser) (*Identity, error) {
	user := raw.Attributes
	if list, ok := raw.Attributes["response"].([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: vk returned an empty user list", ErrProviderRejected)
		}
		first, ok := list[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: vk user payload is not an object", ErrProviderRejected)
		}
		user = first
	}

	email := str(user, "email")
	if email == "" {
		email = strings.TrimSpace(raw.AdditionalParameters["email"])
	}
	return &Identity{
		Provider:   VK,
		Subject:    str(user, "id"),
		Email:      email,
		FullName:   joinName(str(user, "first_name"), str(user, "last_name")),
		PictureURL: str(user, "photo_100"),
	}, nil
}

// str lee un atributo escalar como string. Los ids numéricos llegan como
// json.Number (decoder con UseNumber) o float64.
func str(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func joinName(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
