package login

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"github.com/dropDatabas3/hellotasks/internal/oauth/authrequest"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
)

func (s *service) OnSuccess(ctx context.Context, w http.ResponseWriter, pending *authrequest.Request, u *repository.User) (*Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op("OnSuccess"),
		logger.Provider(pending.RegistrationID()),
		logger.UserID(u.ID),
	)

	target, err := s.validateTarget(pending)
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.Issue(u)
	if err != nil {
		log.Error("token issue failed", logger.Err(err))
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	switch s.delivery {
	case DeliveryCookie:
		http.SetCookie(w, s.accessCookie(tok.Value))
	default:
		setQuery(target, ParamToken, tok.Value)
	}

	metrics.RecordLogin(pending.RegistrationID(), "success")
	metrics.RecordTokenIssued(s.delivery)
	log.Info("login succeeded", logger.Redirect(target.String()), logger.String("delivery", s.delivery))

	return &Redirect{Location: target.String()}, nil
}

func (s *service) OnFailure(ctx context.Context, pending *authrequest.Request, cause error) (*Redirect, error) {
	target, err := s.validateTarget(pending)
	if err != nil {
		return nil, err
	}

	code, ok := failureCode(cause)
	if !ok {
		code = CodeAuthenticationFailed
	}
	if code != codeAccessDenied {
		setQuery(target, ParamError, code)
	}

	metrics.RecordLogin(pending.RegistrationID(), code)
	logger.From(ctx).Info("login failed",
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op("OnFailure"),
		logger.Provider(pending.RegistrationID()),
		logger.String("error_code", code),
		logger.Err(cause),
	)

	return &Redirect{Location: target.String()}, nil
}

// Logout expira la cookie del token siempre, exista o no. Con
// ?client-redirect-uri= válido redirige; sin destino devuelve nil.
func (s *service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Redirect, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op("Logout"),
	)

	target := strings.TrimSpace(r.URL.Query().Get(authrequest.ParamClientRedirectURI))
	var dest *url.URL
	if target != "" {
		u, err := s.redirects.Validate(target)
		if err != nil {
			log.Warn("logout redirect rejected", logger.Redirect(target), logger.Err(err))
			return nil, fmt.Errorf("%w: %v", ErrRedirectNotAllowed, err)
		}
		dest = u
	}

	http.SetCookie(w, s.deletionCookie())

	if dest == nil {
		return nil, nil
	}
	return &Redirect{Location: dest.String()}, nil
}

// validateTarget recupera y valida el destino del cliente. Devuelve una
// URL nueva en cada llamada; el caller puede mutarla.
func (s *service) validateTarget(pending *authrequest.Request) (*url.URL, error) {
	raw := pending.ClientRedirectURI()
	if raw == "" {
		return nil, ErrClientRedirectURIMissing
	}
	u, err := s.redirects.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectNotAllowed, err)
	}
	return u, nil
}

func (s *service) accessCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookie.Name,
		Value:    value,
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   int(s.tokens.Validity() / time.Second),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	}
}

// deletionCookie crea una cookie que borra la del token en el browser.
func (s *service) deletionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	}
}

func setQuery(u *url.URL, key, value string) {
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
}
