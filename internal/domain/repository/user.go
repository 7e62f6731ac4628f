package repository

import (
	"context"
	"strings"
	"time"
)

// Authorities asignadas a partir del flag admin.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// User es la proyección del usuario que usa la capa de autenticación.
// Email es la clave natural; Version crece en uno por cada cambio de
// nombre o foto aplicado por la reconciliación.
type User struct {
	ID         string
	Email      string
	FullName   string
	PictureURL string
	Version    int64
	Admin      bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Authorities devuelve los roles del usuario.
func (u *User) Authorities() []string {
	if u.Admin {
		return []string{RoleUser, RoleAdmin}
	}
	return []string{RoleUser}
}

// Clone devuelve una copia independiente del usuario.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// NormalizeEmail aplica la forma canónica usada como clave natural.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// FindByEmail busca un usuario por email (normalizado).
	// Retorna ErrNotFound si no existe.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID busca un usuario por ID.
	// Retorna ErrNotFound si no existe.
	FindByID(ctx context.Context, id string) (*User, error)

	// Save inserta o actualiza por ID (obligatorio, ErrInvalidInput si falta).
	// Un ID inexistente inserta; si el email ya está tomado retorna ErrConflict.
	// Un ID existente actualiza sólo si la versión almacenada es u.Version-1,
	// si no retorna ErrConflict (otro proceso ganó la carrera).
	Save(ctx context.Context, u *User) (*User, error)

	// Ping verifica la conexión con el almacenamiento.
	Ping(ctx context.Context) error
}
