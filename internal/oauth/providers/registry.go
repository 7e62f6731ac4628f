package providers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultTimeout acota exchange + user-info contra el provider.
const DefaultTimeout = 10 * time.Second

// Config es la configuración de un provider. AuthURL/TokenURL/UserInfoURL
// pisan los endpoints públicos (tests, proxies).
type Config struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	PKCE         bool

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	EmailsURL   string
}

// Registration es un provider habilitado, listo para usar.
type Registration struct {
	ID          ID
	OAuth2      oauth2.Config
	UserInfoURL string
	// EmailsURL sólo aplica a GitHub (emails privados).
	EmailsURL string
	PKCE      bool
}

type defaults struct {
	endpoint  oauth2.Endpoint
	userInfo  string
	emails    string
	scopes    []string
	authStyle oauth2.AuthStyle
}

var knownDefaults = map[ID]defaults{
	Google: {
		endpoint: endpoints.Google,
		userInfo: "https://www.googleapis.com/oauth2/v3/userinfo",
		scopes:   []string{"openid", "email", "profile"},
	},
	Facebook: {
		endpoint: endpoints.Facebook,
		userInfo: "https://graph.facebook.com/me?fields=id,name,email,first_name,last_name,picture",
		scopes:   []string{"email", "public_profile"},
	},
	GitHub: {
		endpoint: endpoints.GitHub,
		userInfo: "https://api.github.com/user",
		emails:   "https://api.github.com/user/emails",
		scopes:   []string{"read:user", "user:email"},
	},
	VK: {
		endpoint:  endpoints.Vk,
		userInfo:  "https://api.vk.com/method/users.get?fields=photo_100&v=5.131",
		scopes:    []string{"email"},
		authStyle: oauth2.AuthStyleInParams,
	},
}

// Registry guarda los providers habilitados y el cliente HTTP compartido.
type Registry struct {
	regs    map[ID]*Registration
	client  *http.Client
	timeout time.Duration
}

// RegistryOption ajusta el Registry.
type RegistryOption func(*Registry)

// WithHTTPClient reemplaza el cliente usado para exchange y user-info.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout fija el timeout por callback contra el provider.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry valida y arma las registrations habilitadas.
func NewRegistry(cfgs map[ID]Config, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		regs:    make(map[ID]*Registration),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: r.timeout}
	}

	for id, c := range cfgs {
		if !c.Enabled {
			continue
		}
		def, ok := knownDefaults[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, id)
		}
		if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.RedirectURL) == "" {
			return nil, fmt.Errorf("provider %s: client_id and redirect_url are required", id)
		}

		ep := def.endpoint
		ep.AuthStyle = def.authStyle
		if c.AuthURL != "" {
			ep.AuthURL = c.AuthURL
		}
		if c.TokenURL != "" {
			ep.TokenURL = c.TokenURL
		}
		scopes := c.Scopes
		if len(scopes) == 0 {
			scopes = append([]string(nil), def.scopes...)
		}

		reg := &Registration{
			ID: id,
			OAuth2: oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				Endpoint:     ep,
				RedirectURL:  c.RedirectURL,
				Scopes:       scopes,
			},
			UserInfoURL: firstNonEmpty(c.UserInfoURL, def.userInfo),
			EmailsURL:   firstNonEmpty(c.EmailsURL, def.emails),
			PKCE:        c.PKCE,
		}
		r.regs[id] = reg
	}
	return r, nil
}

// Get devuelve la registration habilitada o ErrUnsupportedProvider.
func (r *Registry) Get(id ID) (*Registration, error) {
	reg, ok := r.regs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, id)
	}
	return reg, nil
}

// Enabled lista los providers habilitados en orden estable.
func (r *Registry) Enabled() []ID {
	out := make([]ID, 0, len(r.regs))
	for _, id := range All {
		if _, ok := r.regs[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// AuthCodeURL arma la URL de autorización. verifier vacío = sin PKCE.
func (reg *Registration) AuthCodeURL(state, verifier string, extra map[string]string) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(extra)+1)
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	for k, v := range extra {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return reg.OAuth2.AuthCodeURL(state, opts...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
