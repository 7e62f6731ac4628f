package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrRedirectInvalid    = errors.New("redirect uri is not a valid absolute http(s) url")
	ErrRedirectNotAllowed = errors.New("redirect uri is not in the allow-list")
)

// RedirectAllowList decide a qué URIs del cliente se puede redirigir con
// un token o un error. Reglas de cada patrón:
//   - scheme y host(:port) exactos, sin distinguir mayúsculas; el puerto
//     por defecto del scheme se ignora.
//   - path por segmentos: "*" es exactamente un segmento, "**" (sólo al
//     final) cualquier sufijo, incluso vacío.
//   - la query del candidato se conserva y no participa del match.
//
// Se rechaza siempre: userinfo, fragmento, schemes que no sean http(s),
// URIs relativas y segmentos "." / ".." o con barras codificadas.
type RedirectAllowList struct {
	patterns []redirectPattern
}

type redirectPattern struct {
	raw      string
	scheme   string
	host     string
	segments []string
}

// NewRedirectAllowList compila los patrones. Una lista vacía no permite nada.
func NewRedirectAllowList(patterns []string) (*RedirectAllowList, error) {
	l := &RedirectAllowList{}
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		l.patterns = append(l.patterns, p)
	}
	return l, nil
}

// Len devuelve la cantidad de patrones.
func (l *RedirectAllowList) Len() int { return len(l.patterns) }

// Allowed indica si raw matchea algún patrón.
func (l *RedirectAllowList) Allowed(raw string) bool {
	_, err := l.Validate(raw)
	return err == nil
}

// Validate parsea raw y lo compara contra la lista.
func (l *RedirectAllowList) Validate(raw string) (*url.URL, error) {
	u, segs, err := parseCandidate(raw)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	host := canonicalHost(scheme, u.Host)
	for _, p := range l.patterns {
		if p.scheme == scheme && p.host == host && matchSegments(p.segments, segs) {
			return u, nil
		}
	}
	return nil, ErrRedirectNotAllowed
}

func compilePattern(raw string) (redirectPattern, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return redirectPattern{}, fmt.Errorf("redirect allow-list %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return redirectPattern{}, fmt.Errorf("redirect allow-list %q: scheme must be http or https", raw)
	}
	if u.Host == "" || strings.Contains(u.Host, "*") {
		return redirectPattern{}, fmt.Errorf("redirect allow-list %q: host must be literal", raw)
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return redirectPattern{}, fmt.Errorf("redirect allow-list %q: userinfo, query and fragment are not allowed", raw)
	}
	segs := splitPath(u.Path)
	for i, s := range segs {
		if s == "**" && i != len(segs)-1 {
			return redirectPattern{}, fmt.Errorf("redirect allow-list %q: ** must be the last segment", raw)
		}
	}
	return redirectPattern{
		raw:      raw,
		scheme:   scheme,
		host:     canonicalHost(scheme, u.Host),
		segments: segs,
	}, nil
}

func parseCandidate(raw string) (*url.URL, []string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, "\\#") || strings.ContainsFunc(raw, isControl) {
		return nil, nil, ErrRedirectInvalid
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, ErrRedirectInvalid
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Opaque != "" || u.Host == "" || u.User != nil {
		return nil, nil, ErrRedirectInvalid
	}
	if strings.Contains(strings.ToLower(u.EscapedPath()), "%2f") {
		return nil, nil, ErrRedirectInvalid
	}
	segs := splitPath(u.Path)
	for _, s := range segs {
		if s == "." || s == ".." {
			return nil, nil, ErrRedirectInvalid
		}
	}
	return u, segs, nil
}

func matchSegments(pattern, got []string) bool {
	for i, p := range pattern {
		if p == "**" {
			return true
		}
		if i >= len(got) {
			return false
		}
		if p != "*" && p != got[i] {
			return false
		}
	}
	return len(pattern) == len(got)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// canonicalHost baja a minúsculas y quita el puerto por defecto.
func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

func isControl(r rune) bool { return r < 0x20 || r == 0x7f }
