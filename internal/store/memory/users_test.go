package memory

import (
	"context"
	"testing"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStore_InsertFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	_, err := s.FindByEmail(ctx, "alice@x.io")
	require.True(t, repository.IsNotFound(err))

	saved, err := s.Save(ctx, &repository.User{ID: "u1", Email: " Alice@X.io ", FullName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", saved.Email)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := s.FindByEmail(ctx, "ALICE@x.io")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	// mutar lo devuelto no toca el store
	got.FullName = "Mallory"
	again, _ := s.FindByID(ctx, "u1")
	assert.Equal(t, "Alice", again.FullName)

	upd := again.Clone()
	upd.FullName = "Alice L."
	upd.Version = 1
	out, err := s.Save(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Version)
	assert.Equal(t, saved.CreatedAt, out.CreatedAt)
	assert.Equal(t, 1, s.Len())
}

func TestUserStore_Conflicts(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	_, err := s.Save(ctx, &repository.User{ID: "u1", Email: "a@x.io"})
	require.NoError(t, err)

	_, err = s.Save(ctx, &repository.User{ID: "u2", Email: "A@x.io"})
	assert.True(t, repository.IsConflict(err), "duplicate email: %v", err)

	// versión desactualizada
	_, err = s.Save(ctx, &repository.User{ID: "u1", Email: "a@x.io", Version: 5})
	assert.True(t, repository.IsConflict(err), "stale version: %v", err)

	_, err = s.Save(ctx, &repository.User{Email: "b@x.io"})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)
}
