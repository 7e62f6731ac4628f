// Package memory implementa repository.UserRepository en proceso sobre
// go-cache. Pensado para desarrollo y tests; no sobrevive reinicios.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	gocache "github.com/patrickmn/go-cache"
)

const (
	idPrefix    = "user:id:"
	emailPrefix = "user:email:"
)

// UserStore guarda usuarios por id y un índice email → id.
// El índice usa Add, que falla si la clave existe: eso da la unicidad.
type UserStore struct {
	mu sync.Mutex // serializa escrituras (check de versión + índice)
	c  *gocache.Cache
}

// NewUserStore crea un store vacío.
func NewUserStore() *UserStore {
	return &UserStore{c: gocache.New(gocache.NoExpiration, 0)}
}

var _ repository.UserRepository = (*UserStore)(nil)

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := s.c.Get(emailPrefix + repository.NormalizeEmail(email))
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.FindByID(ctx, id.(string))
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*repository.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.c.Get(idPrefix + id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v.(*repository.User).Clone(), nil
}

func (s *UserStore) Save(ctx context.Context, u *repository.User) (*repository.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return nil, fmt.Errorf("%w: user id required", repository.ErrInvalidInput)
	}
	email := repository.NormalizeEmail(u.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", repository.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := u.Clone()
	next.Email = email
	now := time.Now().UTC()

	cur, ok := s.c.Get(idPrefix + u.ID)
	if !ok {
		if err := s.c.Add(emailPrefix+email, u.ID, gocache.NoExpiration); err != nil {
			return nil, fmt.Errorf("%w: email %s already registered", repository.ErrConflict, email)
		}
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.UpdatedAt = next.CreatedAt
		s.c.Set(idPrefix+u.ID, next, gocache.NoExpiration)
		return next.Clone(), nil
	}

	prev := cur.(*repository.User)
	if prev.Version != u.Version-1 {
		return nil, fmt.Errorf("%w: stale version %d (stored %d)", repository.ErrConflict, u.Version, prev.Version)
	}
	if prev.Email != email {
		if err := s.c.Add(emailPrefix+email, u.ID, gocache.NoExpiration); err != nil {
			return nil, fmt.Errorf("%w: email %s already registered", repository.ErrConflict, email)
		}
		s.c.Delete(emailPrefix + prev.Email)
	}
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = now
	s.c.Set(idPrefix+u.ID, next, gocache.NoExpiration)
	return next.Clone(), nil
}

func (s *UserStore) Ping(ctx context.Context) error { return ctx.Err() }

// Len devuelve la cantidad de usuarios.
func (s *UserStore) Len() int {
	n := 0
	for k := range s.c.Items() {
		if strings.HasPrefix(k, idPrefix) {
			n++
		}
	}
	return n
}
