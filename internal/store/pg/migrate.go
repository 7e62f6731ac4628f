package pg

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Direction de una migración.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func migrationLockID(name string) int64 {
	h := sha256.Sum256([]byte("migration:" + name))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// Migrate aplica los scripts *_up.sql (o *_down.sql en orden inverso) de
// dir dentro de fsys, bajo un advisory lock para que varias réplicas
// puedan arrancar a la vez. Devuelve cuántos scripts ejecutó.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, d Direction) (int, error) {
	files, err := migrationFiles(fsys, dir, d)
	if err != nil {
		return 0, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	lockID := migrationLockID(dir)
	if _, err := pool.Exec(lockCtx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = pool.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
	}()

	applied := 0
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, err
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", f, err)
		}
		applied++
	}
	return applied, nil
}

// migrationFiles lista los scripts de la dirección pedida, ordenados.
func migrationFiles(fsys fs.FS, dir string, d Direction) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	suffix := "_" + string(d) + ".sql"
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if d == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
