// Package events publica eventos de ciclo de vida de usuarios.
// La publicación es best effort: un fallo se loguea y nunca corta un login.
package events

import (
	"context"
	"time"
)

// Tipos de evento.
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
)

// Event es el payload publicado.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Provider   string    `json:"provider,omitempty"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publica eventos. Implementaciones: NATS y Noop.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop descarta todo. Se usa cuando no hay broker configurado.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
