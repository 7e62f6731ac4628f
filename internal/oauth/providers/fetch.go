package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

// FetchUser canjea el code y trae el user-info. params son los parámetros
// adicionales de la authorization request pendiente; se copian al RawUser.
//
// Errores: ErrUnsupportedProvider, ErrProviderRejected (4xx o payload de
// error) y ErrProviderUnreachable (red, timeout o 5xx).
func (r *Registry) FetchUser(ctx context.Context, id ID, code, verifier string, params map[string]string) (*RawUser, error) {
	reg, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	start := time.Now()
	tok, err := reg.OAuth2.Exchange(ctx, code, opts...)
	metrics.ObserveProviderCall(id.String(), "exchange", time.Since(start), err)
	if err != nil {
		return nil, classifyExchange(err)
	}

	start = time.Now()
	attrs, err := r.userInfo(ctx, reg, tok)
	metrics.ObserveProviderCall(id.String(), "userinfo", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	extra := make(map[string]string, len(params)+1)
	for k, v := range params {
		extra[k] = v
	}
	if id == VK {
		if email, _ := tok.Extra("email").(string); email != "" {
			extra["email"] = email
		}
	}

	return &RawUser{Provider: id, Attributes: attrs, AdditionalParameters: extra}, nil
}

func (r *Registry) userInfo(ctx context.Context, reg *Registration, tok *oauth2.Token) (map[string]any, error) {
	var attrs map[string]any
	if err := r.getJSON(ctx, reg, tok, reg.UserInfoURL, &attrs); err != nil {
		return nil, err
	}
	// un body "null" decodifica sin error y deja el mapa en nil
	if attrs == nil {
		return nil, fmt.Errorf("%w: empty user-info", ErrProviderRejected)
	}

	switch reg.ID {
	case VK:
		if e, ok := attrs["error"]; ok {
			return nil, fmt.Errorf("%w: vk api error: %v", ErrProviderRejected, e)
		}
	case GitHub:
		// email privado: hay que pedirlo a /user/emails
		if str(attrs, "email") == "" && reg.EmailsURL != "" {
			if email := r.githubPrimaryEmail(ctx, reg, tok); email != "" {
				attrs["email"] = email
			}
		}
	}
	return attrs, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// githubPrimaryEmail devuelve el primario verificado, o el primer verificado.
// Un fallo acá no corta el login: el normalizer decidirá si falta email.
func (r *Registry) githubPrimaryEmail(ctx context.Context, reg *Registration, tok *oauth2.Token) string {
	var emails []githubEmail
	if err := r.getJSON(ctx, reg, tok, reg.EmailsURL, &emails); err != nil {
		return ""
	}
	var fallback string
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}

func (r *Registry) getJSON(ctx context.Context, reg *Registration, tok *oauth2.Token, rawURL string, out any) error {
	target := rawURL
	if reg.ID == VK {
		// la API de VK recibe el token por query
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("providers: bad user-info url: %w", err)
		}
		q := u.Query()
		q.Set("access_token", tok.AccessToken)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("providers: build user-info request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := reg.OAuth2.Client(ctx, tok).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: user-info status %d", ErrProviderUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: user-info status %d", ErrProviderRejected, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode user-info: %v", ErrProviderRejected, err)
	}
	return nil
}

func classifyExchange(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: token endpoint: %v", ErrProviderUnreachable, err)
		}
		return fmt.Errorf("%w: token endpoint: %v", ErrProviderRejected, err)
	}
	return fmt.Errorf("%w: token endpoint: %v", ErrProviderUnreachable, err)
}
