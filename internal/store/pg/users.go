package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ repository.UserRepository = (*Store)(nil)

const userColumns = `id::text, email, full_name, picture_url, version, admin, created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE email = $1`,
		repository.NormalizeEmail(email))
	return scanUser(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*repository.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = $1`, id)
	return scanUser(row)
}

// Save es un upsert por id. La rama de update sólo aplica si la versión
// almacenada es la anterior; si no, no devuelve filas y es ErrConflict.
// Un email duplicado viola app_user_email_key (23505) y también es ErrConflict.
func (s *Store) Save(ctx context.Context, u *repository.User) (*repository.User, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return nil, fmt.Errorf("%w: user id required", repository.ErrInvalidInput)
	}
	out := u.Clone()
	out.Email = repository.NormalizeEmail(u.Email)
	if out.Email == "" {
		return nil, fmt.Errorf("%w: email required", repository.ErrInvalidInput)
	}

	const q = `
INSERT INTO app_user (id, email, full_name, picture_url, version, admin, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (id) DO UPDATE SET
    email       = EXCLUDED.email,
    full_name   = EXCLUDED.full_name,
    picture_url = EXCLUDED.picture_url,
    version     = EXCLUDED.version,
    admin       = EXCLUDED.admin,
    updated_at  = now()
WHERE app_user.version = EXCLUDED.version - 1
RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, q,
		out.ID, out.Email, out.FullName, out.PictureURL, out.Version, out.Admin,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err, out)
	}
	return out, nil
}

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PictureURL, &u.Version, &u.Admin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func mapWriteError(err error, u *repository.User) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: stale version %d for user %s", repository.ErrConflict, u.Version, u.ID)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email %s already registered", repository.ErrConflict, u.Email)
	}
	return fmt.Errorf("save user: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
