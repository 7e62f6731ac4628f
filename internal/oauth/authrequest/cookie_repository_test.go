package authrequest

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *Request {
	return &Request{
		AuthorizationURI: "https://accounts.google.com/o/oauth2/auth",
		GrantType:        "authorization_code",
		ResponseType:     "code",
		ClientID:         "google-client",
		RedirectURI:      "http://localhost:8080/login/oauth2/code/google",
		Scopes:           []string{"openid", "email", "profile"},
		State:            "st-123",
		AdditionalParameters: map[string]string{
			"access_type": "online",
		},
		Attributes: map[string]string{AttrRegistrationID: "google"},
	}
}

// carry devuelve un request nuevo que lleva las cookies seteadas en rec.
func carry(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/login/oauth2/code/google", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			r.AddCookie(c)
		}
	}
	return r
}

func TestCookieRepository_SaveLoadRemove(t *testing.T) {
	repo := NewCookieRepository(CookieConfig{})
	req := sampleRequest()

	rec := httptest.NewRecorder()
	require.NoError(t, repo.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), req, "http://localhost:3000/oauth2/redirect"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 180, c.MaxAge)

	want := req.Clone()
	want.AdditionalParameters[ParamClientRedirectURI] = "http://localhost:3000/oauth2/redirect"

	in := carry(rec)
	loaded, ok := repo.Load(in)
	require.True(t, ok)
	assert.Equal(t, want, loaded)
	assert.Equal(t, "http://localhost:3000/oauth2/redirect", loaded.ClientRedirectURI())
	assert.Equal(t, "google", loaded.RegistrationID())

	// Save no muta la request del caller
	_, has := req.AdditionalParameters[ParamClientRedirectURI]
	assert.False(t, has)

	out := httptest.NewRecorder()
	removed, ok := repo.Remove(out, in)
	require.True(t, ok)
	assert.Equal(t, want, removed)

	expired := out.Result().Cookies()
	require.Len(t, expired, 1)
	assert.Equal(t, DefaultCookieName, expired[0].Name)
	assert.Equal(t, -1, expired[0].MaxAge)
	assert.Empty(t, expired[0].Value)

	// el browser aplica la cookie expirada: ya no hay request pendiente
	_, ok = repo.Load(carry(out))
	assert.False(t, ok)
}

func TestCookieRepository_SaveRequiresClientRedirect(t *testing.T) {
	repo := NewCookieRepository(CookieConfig{})
	rec := httptest.NewRecorder()
	err := repo.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), sampleRequest(), "   ")
	assert.ErrorIs(t, err, ErrClientRedirectURIMissing)
	assert.Empty(t, rec.Result().Cookies())
}

func TestCookieRepository_SaveNilExpires(t *testing.T) {
	repo := NewCookieRepository(CookieConfig{Name: "pending"})
	rec := httptest.NewRecorder()
	require.NoError(t, repo.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil, ""))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "pending", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCookieRepository_CorruptCookieIsAbsent(t *testing.T) {
	repo := NewCookieRepository(CookieConfig{})
	values := []string{
		"%%%not-base64%%%",
		base64.RawURLEncoding.EncodeToString([]byte("{not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"state":"x"}`)), // sin client-redirect-uri
		base64.RawURLEncoding.EncodeToString([]byte(`["array"]`)),
	}
	for _, v := range values {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: v})

		_, ok := repo.Load(r)
		assert.False(t, ok, "load %q", v)

		rec := httptest.NewRecorder()
		_, ok = repo.Remove(rec, r)
		assert.False(t, ok, "remove %q", v)
		// la cookie corrupta igual se limpia
		require.Len(t, rec.Result().Cookies(), 1)
	}
}

func TestCookieRepository_RemoveWithoutCookie(t *testing.T) {
	repo := NewCookieRepository(CookieConfig{})
	rec := httptest.NewRecorder()
	_, ok := repo.Remove(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
	assert.Empty(t, rec.Result().Cookies())
}

func TestCookieRepository_TooLarge(t *testing.T) {
	repo := NewCookieRepository(CookieConfig{})
	req := sampleRequest()
	big := make([]byte, 4000)
	for i := range big {
		big[i] = 'x'
	}
	req.AdditionalParameters["login_hint"] = string(big)
	err := repo.Save(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), req, "http://localhost:3000/cb")
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}
