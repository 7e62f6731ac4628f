package validation

import "regexp"

// Scopes que se piden a un identity provider. Siguen el scope-token de
// OAuth2 (RFC 6749 §3.3): cualquier ASCII visible salvo '"' y '\', sin
// espacios, porque el provider los recibe unidos por espacio.
//
// Válidos: openid, public_profile, read:user, user:email,
// https://www.googleapis.com/auth/userinfo.email
// Inválidos: "", "bad scope", `a"b`, `a\b`, no ASCII, más de 256 chars.
var providerScopeRe = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]{1,256}$`)

// ValidProviderScope indica si s puede enviarse como scope en la
// authorization request.
func ValidProviderScope(s string) bool {
	return providerScopeRe.MatchString(s)
}
