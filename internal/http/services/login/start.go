package login

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/hellotasks/internal/oauth/authrequest"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
)

// parámetros del cliente que se reenvían al provider tal cual
var passthroughParams = []string{"login_hint", "prompt"}

func (s *service) Start(ctx context.Context, w http.ResponseWriter, r *http.Request, provider string) (*Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op("Start"),
		logger.Provider(provider),
	)

	id, ok := providers.ParseID(provider)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	reg, err := s.providers.Get(id)
	if err != nil {
		return nil, ErrUnsupportedProvider
	}

	q := r.URL.Query()
	target := strings.TrimSpace(q.Get(authrequest.ParamClientRedirectURI))
	if target == "" {
		return nil, ErrClientRedirectURIMissing
	}
	if _, err := s.redirects.Validate(target); err != nil {
		log.Warn("client redirect rejected", logger.Redirect(target), logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrRedirectNotAllowed, err)
	}

	state := uuid.NewString()
	verifier := ""
	if reg.PKCE {
		verifier = oauth2.GenerateVerifier()
	}

	extra := map[string]string{}
	for _, k := range passthroughParams {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			extra[k] = v
		}
	}

	pending := &authrequest.Request{
		AuthorizationURI:     reg.OAuth2.Endpoint.AuthURL,
		GrantType:            "authorization_code",
		ResponseType:         "code",
		ClientID:             reg.OAuth2.ClientID,
		RedirectURI:          reg.OAuth2.RedirectURL,
		Scopes:               reg.OAuth2.Scopes,
		State:                state,
		AdditionalParameters: extra,
		Attributes:           map[string]string{authrequest.AttrRegistrationID: id.String()},
		CreatedAt:            s.now().Unix(),
	}
	if verifier != "" {
		pending.Attributes[authrequest.AttrCodeVerifier] = verifier
	}

	if err := s.requests.Save(w, r, pending, target); err != nil {
		if errors.Is(err, authrequest.ErrRequestTooLarge) {
			return nil, ErrRequestTooLarge
		}
		return nil, err
	}

	log.Debug("authorization request started", logger.Bool("pkce", verifier != ""))
	return &Redirect{Location: reg.AuthCodeURL(state, verifier, extra)}, nil
}
