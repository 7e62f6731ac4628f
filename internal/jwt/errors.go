package jwt

import (
	"errors"
	"fmt"
)

// ErrorKind clasifica por qué un token no pudo ser aceptado.
type ErrorKind int

const (
	KindMalformed ErrorKind = iota + 1
	KindExpired
	KindSignatureInvalid
	KindUnsupportedAlgorithm
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindUnsupportedAlgorithm:
		return "unsupported_algorithm"
	default:
		return "unknown"
	}
}

// Sentinels, usables con errors.Is sobre cualquier error devuelto por Parse.
var (
	ErrMalformed            = errors.New("token malformed")
	ErrExpired              = errors.New("token expired")
	ErrSignatureInvalid     = errors.New("token signature invalid")
	ErrUnsupportedAlgorithm = errors.New("token algorithm not supported")

	ErrEmptySigningKey = errors.New("jwt: signing key is empty")
	ErrInvalidValidity = errors.New("jwt: token validity must be at least one second")
	ErrMissingSubject  = errors.New("jwt: user has no identifier")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindExpired:
		return ErrExpired
	case KindSignatureInvalid:
		return ErrSignatureInvalid
	case KindUnsupportedAlgorithm:
		return ErrUnsupportedAlgorithm
	}
	return nil
}

// InvalidTokenError es el único tipo de error que devuelve Codec.Parse.
type InvalidTokenError struct {
	Kind ErrorKind
	Err  error // causa original de golang-jwt, puede ser nil
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("invalid token (%s)", e.Kind)
}

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrExpired) y compañía.
func (e *InvalidTokenError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf devuelve el ErrorKind de err, o 0 si err no es un InvalidTokenError.
func KindOf(err error) ErrorKind {
	var ite *InvalidTokenError
	if errors.As(err, &ite) {
		return ite.Kind
	}
	return 0
}

func invalid(kind ErrorKind, cause error) error {
	return &InvalidTokenError{Kind: kind, Err: cause}
}
