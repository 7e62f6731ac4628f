package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider simula token endpoint + user-info de un provider.
type fakeProvider struct {
	tokenStatus int
	tokenBody   map[string]any
	userStatus  int
	userBody    any
	emailsBody  any
	delay       time.Duration

	mu          sync.Mutex
	gotCode     string
	gotVerifier string
	gotAuth     string
	gotQuery    string
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.gotCode = r.PostForm.Get("code")
		f.gotVerifier = r.PostForm.Get("code_verifier")
		f.mu.Unlock()
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
		}
		_ = json.NewEncoder(w).Encode(f.tokenBody)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.gotAuth = r.Header.Get("Authorization")
		f.gotQuery = r.URL.RawQuery
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
		}
		_ = json.NewEncoder(w).Encode(f.userBody)
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.emailsBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeProvider) seen() (code, verifier, auth, query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotCode, f.gotVerifier, f.gotAuth, f.gotQuery
}

func newRegistryFor(t *testing.T, id ID, srv *httptest.Server, opts ...RegistryOption) *Registry {
	t.Helper()
	reg, err := NewRegistry(map[ID]Config{
		id: {
			Enabled:      true,
			ClientID:     "cid",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost:8080/login/oauth2/code/" + id.String(),
			AuthURL:      srv.URL + "/authorize",
			TokenURL:     srv.URL + "/token",
			UserInfoURL:  srv.URL + "/user",
			EmailsURL:    srv.URL + "/emails",
		},
	}, opts...)
	require.NoError(t, err)
	return reg
}

func TestFetchUser_Google(t *testing.T) {
	fp := &fakeProvider{
		tokenBody: map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600},
		userBody:  map[string]any{"sub": "1", "email": "a@x.io", "given_name": "Ann", "family_name": "Lee"},
	}
	srv := fp.server(t)
	reg := newRegistryFor(t, Google, srv)

	raw, err := reg.FetchUser(context.Background(), Google, "code-1", "verifier-1", map[string]string{"client-redirect-uri": "http://app/cb"})
	require.NoError(t, err)
	code, verifier, auth, _ := fp.seen()
	assert.Equal(t, "code-1", code)
	assert.Equal(t, "verifier-1", verifier)
	assert.Equal(t, "Bearer at-1", auth)
	assert.Equal(t, Google, raw.Provider)
	assert.Equal(t, "http://app/cb", raw.AdditionalParameters["client-redirect-uri"])

	id, err := NewManager().Normalize(*raw)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", id.FullName)
}

func TestFetchUser_VKEmailFromTokenResponse(t *testing.T) {
	fp := &fakeProvider{
		tokenBody: map[string]any{"access_token": "vk-at", "expires_in": 0, "user_id": 7, "email": "ivan@x.io"},
		userBody:  map[string]any{"response": []any{map[string]any{"id": 7, "first_name": "Ivan", "last_name": "P"}}},
	}
	srv := fp.server(t)
	reg := newRegistryFor(t, VK, srv)

	raw, err := reg.FetchUser(context.Background(), VK, "c", "", nil)
	require.NoError(t, err)
	_, _, _, query := fp.seen()
	assert.Contains(t, query, "access_token=vk-at")
	assert.Equal(t, "ivan@x.io", raw.AdditionalParameters["email"])

	id, err := NewManager().Normalize(*raw)
	require.NoError(t, err)
	assert.Equal(t, "7", id.Subject)
	assert.Equal(t, "ivan@x.io", id.Email)
	assert.Equal(t, "Ivan P", id.FullName)
}

func TestFetchUser_GitHubPrivateEmail(t *testing.T) {
	fp := &fakeProvider{
		tokenBody: map[string]any{"access_token": "gh", "token_type": "bearer"},
		userBody:  map[string]any{"id": 583231, "login": "octocat", "email": nil},
		emailsBody: []map[string]any{
			{"email": "old@x.io", "primary": false, "verified": true},
			{"email": "octo@x.io", "primary": true, "verified": true},
		},
	}
	srv := fp.server(t)
	reg := newRegistryFor(t, GitHub, srv)

	raw, err := reg.FetchUser(context.Background(), GitHub, "c", "", nil)
	require.NoError(t, err)
	id, err := NewManager().Normalize(*raw)
	require.NoError(t, err)
	assert.Equal(t, "octo@x.io", id.Email)
	assert.Equal(t, "583231", id.Subject)
}

func TestFetchUser_Errors(t *testing.T) {
	t.Run("code rejected", func(t *testing.T) {
		fp := &fakeProvider{tokenStatus: http.StatusBadRequest, tokenBody: map[string]any{"error": "invalid_grant"}}
		reg := newRegistryFor(t, Google, fp.server(t))
		_, err := reg.FetchUser(context.Background(), Google, "bad", "", nil)
		assert.True(t, errors.Is(err, ErrProviderRejected), "got %v", err)
	})
	t.Run("token endpoint down", func(t *testing.T) {
		fp := &fakeProvider{tokenStatus: http.StatusBadGateway, tokenBody: map[string]any{}}
		reg := newRegistryFor(t, Google, fp.server(t))
		_, err := reg.FetchUser(context.Background(), Google, "c", "", nil)
		assert.True(t, errors.Is(err, ErrProviderUnreachable), "got %v", err)
	})
	t.Run("timeout", func(t *testing.T) {
		fp := &fakeProvider{delay: 300 * time.Millisecond, tokenBody: map[string]any{"access_token": "x"}}
		reg := newRegistryFor(t, Google, fp.server(t), WithTimeout(50*time.Millisecond))
		_, err := reg.FetchUser(context.Background(), Google, "c", "", nil)
		assert.True(t, errors.Is(err, ErrProviderUnreachable), "got %v", err)
	})
	t.Run("user-info unauthorized", func(t *testing.T) {
		fp := &fakeProvider{
			tokenBody:  map[string]any{"access_token": "x", "token_type": "Bearer"},
			userStatus: http.StatusUnauthorized,
			userBody:   map[string]any{"error": "invalid_token"},
		}
		reg := newRegistryFor(t, Facebook, fp.server(t))
		_, err := reg.FetchUser(context.Background(), Facebook, "c", "", nil)
		assert.True(t, errors.Is(err, ErrProviderRejected), "got %v", err)
	})
	t.Run("user-info null body", func(t *testing.T) {
		fp := &fakeProvider{
			tokenBody: map[string]any{"access_token": "gh", "token_type": "bearer"},
			userBody:  nil,
			emailsBody: []map[string]any{
				{"email": "octo@x.io", "primary": true, "verified": true},
			},
		}
		reg := newRegistryFor(t, GitHub, fp.server(t))
		var err error
		require.NotPanics(t, func() {
			_, err = reg.FetchUser(context.Background(), GitHub, "c", "", nil)
		})
		assert.True(t, errors.Is(err, ErrProviderRejected), "got %v", err)
	})
	t.Run("not enabled", func(t *testing.T) {
		fp := &fakeProvider{}
		reg := newRegistryFor(t, Google, fp.server(t))
		_, err := reg.FetchUser(context.Background(), GitHub, "c", "", nil)
		assert.True(t, errors.Is(err, ErrUnsupportedProvider), "got %v", err)
	})
}

func TestRegistration_AuthCodeURL(t *testing.T) {
	fp := &fakeProvider{}
	srv := fp.server(t)
	reg := newRegistryFor(t, Google, srv)
	g, err := reg.Get(Google)
	require.NoError(t, err)

	u := g.AuthCodeURL("st", "verifier-verifier-verifier-verifier-verifier", map[string]string{"prompt": "select_account"})
	assert.True(t, strings.HasPrefix(u, srv.URL+"/authorize?"))
	for _, want := range []string{"state=st", "client_id=cid", "code_challenge_method=S256", "prompt=select_account", "response_type=code"} {
		assert.Contains(t, u, want)
	}
	assert.Equal(t, []ID{Google}, reg.Enabled())
}

func TestNewRegistry_RequiresClient(t *testing.T) {
	_, err := NewRegistry(map[ID]Config{Google: {Enabled: true, RedirectURL: "http://x"}})
	assert.Error(t, err)
	_, err = NewRegistry(map[ID]Config{"myspace": {Enabled: true, ClientID: "a", RedirectURL: "b"}})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
