package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  env: dev
server:
  addr: ":9090"
storage:
  driver: memory
jwt:
  signing_key: "0123456789abcdef0123456789abcdef"
  validity: 1h
auth:
  token_delivery: cookie
  cookie_domain: example.com
  redirect_allowlist:
    - "http://localhost:3000/**"
  admin_emails: ["root@example.com"]
providers:
  google:
    enabled: true
    client_id: gid
    client_secret: gsecret
    redirect_url: "http://localhost:9090/login/oauth2/code/google"
    scopes: [openid, email, profile]
    pkce: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_YAMLAndDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, time.Hour, c.JWT.Validity)
	assert.Equal(t, time.Duration(0), c.JWT.Leeway)
	assert.Equal(t, DeliveryCookie, c.Auth.TokenDelivery)
	assert.Equal(t, "access_token", c.Auth.CookieName)
	assert.Equal(t, 180*time.Second, c.Auth.RequestCookie.MaxAge)
	assert.Equal(t, 10*time.Second, c.Providers.Timeout)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite())
	assert.True(t, c.Providers.Google.PKCE)

	enabled := c.EnabledProviders()
	assert.Len(t, enabled, 1)
	assert.Contains(t, enabled, "google")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HELLOTASKS_SERVER_ADDR", ":7070")
	t.Setenv("HELLOTASKS_JWT_VALIDITY", "30m")
	t.Setenv("HELLOTASKS_AUTH_REDIRECT_ALLOWLIST", "https://app.example.com/oauth2/redirect,http://localhost:3000/**")
	t.Setenv("HELLOTASKS_PROVIDERS_GITHUB_ENABLED", "true")
	t.Setenv("HELLOTASKS_PROVIDERS_GITHUB_CLIENT_ID", "ghid")
	t.Setenv("HELLOTASKS_PROVIDERS_GITHUB_REDIRECT_URL", "http://localhost:7070/login/oauth2/code/github")

	c, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.Server.Addr)
	assert.Equal(t, 30*time.Minute, c.JWT.Validity)
	assert.Equal(t, []string{"https://app.example.com/oauth2/redirect", "http://localhost:3000/**"}, c.Auth.RedirectAllowlist)
	assert.Equal(t, "ghid", c.Providers.GitHub.ClientID)
	assert.Len(t, c.EnabledProviders(), 2)
}

func TestLoad_OnlyEnv(t *testing.T) {
	t.Setenv("HELLOTASKS_JWT_SIGNING_KEY", "k")
	t.Setenv("HELLOTASKS_AUTH_REDIRECT_ALLOWLIST", "http://localhost:3000/**")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
}

func TestValidate_Errors(t *testing.T) {
	c := Default()
	c.App.Env = "prod"
	c.JWT.SigningKey = "short"
	c.Auth.TokenDelivery = "fragment"
	c.Auth.CookieSameSite = "none"
	c.Storage.Driver = "postgres"
	c.Providers.VK.Enabled = true
	c.Providers.VK.Scopes = []string{"Bad Scope"}

	err := c.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"storage.dsn",
		"at least 32 bytes",
		"auth.token_delivery",
		"cookie_secure",
		"redirect_allowlist must not be empty",
		"providers.vk: client_id",
		`invalid scope "Bad Scope"`,
	} {
		assert.True(t, strings.Contains(msg, want), "missing %q in %q", want, msg)
	}
}

func TestValidate_BadAllowlistPattern(t *testing.T) {
	c := Default()
	c.JWT.SigningKey = "k"
	c.Auth.RedirectAllowlist = []string{"javascript:alert(1)"}
	assert.Error(t, c.Validate())
}

func TestValidate_ProviderURLScope(t *testing.T) {
	c := Default()
	c.JWT.SigningKey = "k"
	c.Auth.RedirectAllowlist = []string{"http://localhost:3000/**"}
	c.Providers.Google.Enabled = true
	c.Providers.Google.ClientID = "cid"
	c.Providers.Google.RedirectURL = "http://localhost:8080/login/oauth2/code/google"
	c.Providers.Google.Scopes = []string{"openid", "https://www.googleapis.com/auth/userinfo.email"}
	assert.NoError(t, c.Validate())
}
