package validation

import (
	"errors"
	"testing"
)

func mustAllowList(t *testing.T, patterns ...string) *RedirectAllowList {
	t.Helper()
	l, err := NewRedirectAllowList(patterns)
	if err != nil {
		t.Fatalf("NewRedirectAllowList: %v", err)
	}
	return l
}

func TestRedirectAllowList_Allowed(t *testing.T) {
	l := mustAllowList(t,
		"https://app.example.com/oauth2/redirect",
		"http://localhost:3000/**",
		"https://app.example.com/tenants/*/callback",
	)
	allowed := []string{
		"https://app.example.com/oauth2/redirect",
		"https://app.example.com/oauth2/redirect/",
		"https://APP.example.com:443/oauth2/redirect",
		"https://app.example.com/oauth2/redirect?next=%2Fboard",
		"http://localhost:3000",
		"http://localhost:3000/",
		"http://localhost:3000/a/b/c",
		"https://app.example.com/tenants/acme/callback",
	}
	for _, u := range allowed {
		if !l.Allowed(u) {
			t.Fatalf("expected allowed: %q", u)
		}
	}
}

func TestRedirectAllowList_RejectsOpenRedirects(t *testing.T) {
	l := mustAllowList(t,
		"https://app.example.com/oauth2/redirect",
		"http://localhost:3000/**",
		"https://app.example.com/tenants/*/callback",
	)
	cases := map[string]error{
		"https://evil.com/oauth2/redirect":                       ErrRedirectNotAllowed,
		"https://app.example.com.evil.com/oauth2/redirect":       ErrRedirectNotAllowed,
		"http://app.example.com/oauth2/redirect":                 ErrRedirectNotAllowed,
		"https://app.example.com:8443/oauth2/redirect":           ErrRedirectNotAllowed,
		"https://app.example.com/oauth2/redirect/extra":          ErrRedirectNotAllowed,
		"https://app.example.com/oauth2":                         ErrRedirectNotAllowed,
		"https://app.example.com/tenants/acme/x/callback":        ErrRedirectNotAllowed,
		"http://localhost:3001/":                                 ErrRedirectNotAllowed,
		"https://app.example.com@evil.com/oauth2/redirect":       ErrRedirectInvalid,
		"https://user@app.example.com/oauth2/redirect":           ErrRedirectInvalid,
		"https://app.example.com/oauth2/redirect#token":          ErrRedirectInvalid,
		"https://app.example.com/oauth2/../oauth2/redirect":      ErrRedirectInvalid,
		"https://app.example.com/oauth2%2fredirect":              ErrRedirectInvalid,
		"https://app.example.com\\@evil.com/oauth2/redirect":     ErrRedirectInvalid,
		"//evil.com/oauth2/redirect":                             ErrRedirectInvalid,
		"/oauth2/redirect":                                       ErrRedirectInvalid,
		"javascript:alert(1)":                                    ErrRedirectInvalid,
		"ftp://app.example.com/oauth2/redirect":                  ErrRedirectInvalid,
		"":                                                       ErrRedirectInvalid,
		"https://app.example.com/oauth2/redirect\r\nSet-Cookie:": ErrRedirectInvalid,
	}
	for raw, want := range cases {
		if _, err := l.Validate(raw); !errors.Is(err, want) {
			t.Fatalf("%q: expected %v, got %v", raw, want, err)
		}
	}
}

func TestRedirectAllowList_EmptyAllowsNothing(t *testing.T) {
	l := mustAllowList(t)
	if l.Allowed("https://app.example.com/") {
		t.Fatalf("empty allow-list must reject everything")
	}
}

func TestNewRedirectAllowList_BadPatterns(t *testing.T) {
	bad := []string{
		"app.example.com/cb",
		"ftp://app.example.com/cb",
		"https://*.example.com/cb",
		"https://app.example.com/**/cb",
		"https://app.example.com/cb?x=1",
		"https://u:p@app.example.com/cb",
	}
	for _, p := range bad {
		if _, err := NewRedirectAllowList([]string{p}); err == nil {
			t.Fatalf("expected error for pattern %q", p)
		}
	}
}
