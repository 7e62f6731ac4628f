package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellotasks/internal/config"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.JWT.SigningKey = "app-test-signing-key-0123456789abcdef"
	cfg.Auth.RedirectAllowlist = []string{"http://localhost:3000/**"}
	cfg.Rate.Enabled = true
	cfg.Providers.GitHub = config.Provider{
		Enabled:     true,
		ClientID:    "gh",
		RedirectURL: "http://localhost:8080/login/oauth2/code/github",
	}
	return cfg
}

func TestNew_MemoryWiring(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "memory", a.Stores.Driver)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2/authorization/github?client-redirect-uri="+url.QueryEscape("http://localhost:3000/cb"), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "github.com/login/oauth/authorize")
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProviderConfigs(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.Google.Enabled = false
	cfg.Providers.VK = config.Provider{Enabled: true, ClientID: "vk", RedirectURL: "http://x/cb", PKCE: true}

	got := ProviderConfigs(cfg)
	require.Len(t, got, 2)
	assert.True(t, got[providers.VK].PKCE)
	assert.Equal(t, "gh", got[providers.GitHub].ClientID)
}
