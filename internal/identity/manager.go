// Package identity concilia la identidad normalizada de un provider con
// el usuario local: crea si no existe, actualiza nombre/foto si cambiaron
// y no escribe nada si son iguales.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/events"
	"github.com/dropDatabas3/hellotasks/internal/metrics"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/observability/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// maxAttempts acota los reintentos ante carreras de versión/email.
const maxAttempts = 3

// Acciones reportadas en métricas y logs.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

var ErrNoEmail = errors.New("identity: email is required")

// ManagerDeps contiene las dependencias del Manager.
type ManagerDeps struct {
	Users       repository.UserRepository
	Publisher   events.Publisher // opcional
	AdminEmails []string         // emails que nacen con ROLE_ADMIN
	Now         func() time.Time // opcional, para tests
	NewID       func() string    // opcional, para tests
}

// Manager reconcilia identidades contra el user store.
type Manager struct {
	users     repository.UserRepository
	publisher events.Publisher
	admins    map[string]struct{}
	now       func() time.Time
	newID     func() string
	sf        singleflight.Group
}

// NewManager construye un Manager.
func NewManager(d ManagerDeps) *Manager {
	m := &Manager{
		users:     d.Users,
		publisher: d.Publisher,
		admins:    make(map[string]struct{}, len(d.AdminEmails)),
		now:       d.Now,
		newID:     d.NewID,
	}
	if m.publisher == nil {
		m.publisher = events.Noop{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	for _, e := range d.AdminEmails {
		if e = repository.NormalizeEmail(e); e != "" {
			m.admins[e] = struct{}{}
		}
	}
	return m
}

// Reconcile devuelve el usuario local para la identidad dada.
//
// Llamadas concurrentes con la misma identidad dentro del proceso se
// colapsan en una sola; entre procesos, la unicidad del email y la
// versión optimista del store resuelven la carrera.
func (m *Manager) Reconcile(ctx context.Context, id *providers.Identity) (*repository.User, error) {
	if id == nil || strings.TrimSpace(id.Email) == "" {
		return nil, ErrNoEmail
	}
	email := repository.NormalizeEmail(id.Email)
	key := email + "\x00" + id.FullName + "\x00" + id.PictureURL

	// el vuelo sigue aunque se cancele el ctx de quien lo abrió; cada
	// caller espera con su propio ctx
	flight := context.WithoutCancel(ctx)
	ch := m.sf.DoChan(key, func() (any, error) {
		return m.reconcileWithRetry(flight, email, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*repository.User).Clone(), nil
	}
}

func (m *Manager) reconcileWithRetry(ctx context.Context, email string, id *providers.Identity) (*repository.User, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		u, err := m.reconcileOnce(ctx, email, id)
		if err == nil {
			return u, nil
		}
		if !repository.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		logger.From(ctx).Debug("reconcile conflict, retrying",
			logger.Component("identity"), logger.Int("attempt", attempt), logger.Err(err))
	}
	return nil, fmt.Errorf("identity: reconcile %s: %w", logger.MaskEmail(email), lastErr)
}

func (m *Manager) reconcileOnce(ctx context.Context, email string, id *providers.Identity) (*repository.User, error) {
	existing, err := m.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return m.update(ctx, existing, id)
	case repository.IsNotFound(err):
		return m.create(ctx, email, id)
	default:
		return nil, fmt.Errorf("identity: find user: %w", err)
	}
}

func (m *Manager) create(ctx context.Context, email string, id *providers.Identity) (*repository.User, error) {
	now := m.now().UTC()
	_, admin := m.admins[email]
	u := &repository.User{
		ID:         m.newID(),
		Email:      email,
		FullName:   id.FullName,
		PictureURL: id.PictureURL,
		Version:    0,
		Admin:      admin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	saved, err := m.users.Save(ctx, u)
	if err != nil {
		// ErrConflict: otro proceso creó el mismo email; el retry lo relee
		return nil, err
	}
	m.done(ctx, ActionCreated, saved, id.Provider)
	return saved, nil
}

func (m *Manager) update(ctx context.Context, existing *repository.User, id *providers.Identity) (*repository.User, error) {
	if existing.FullName == id.FullName && existing.PictureURL == id.PictureURL {
		metrics.RecordReconcile(ActionUnchanged)
		return existing, nil
	}
	next := existing.Clone()
	next.FullName = id.FullName
	next.PictureURL = id.PictureURL
	next.Version = existing.Version + 1
	next.UpdatedAt = m.now().UTC()

	saved, err := m.users.Save(ctx, next)
	if err != nil {
		return nil, err
	}
	m.done(ctx, ActionUpdated, saved, id.Provider)
	return saved, nil
}

// done registra métricas, loguea y publica el evento (best effort).
func (m *Manager) done(ctx context.Context, action string, u *repository.User, provider providers.ID) {
	metrics.RecordReconcile(action)
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("identity"))
	log.Info("user "+action,
		logger.UserID(u.ID),
		logger.Email(u.Email),
		logger.Provider(provider.String()),
		logger.Int64("version", u.Version),
	)

	evType := events.UserUpdated
	if action == ActionCreated {
		evType = events.UserCreated
	}
	err := m.publisher.Publish(ctx, events.Event{
		Type:       evType,
		UserID:     u.ID,
		Email:      u.Email,
		Provider:   provider.String(),
		Version:    u.Version,
		OccurredAt: m.now().UTC(),
	})
	if err != nil {
		log.Warn("publish user event failed", logger.String("event", evType), logger.Err(err))
	}
}
