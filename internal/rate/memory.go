package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es el equivalente en proceso del RedisLimiter. Cada
// réplica cuenta por separado: sirve para dev o despliegues de una instancia.
type MemoryLimiter struct {
	c      *gocache.Cache
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(prefix string, max int, window time.Duration) *MemoryLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		prefix: prefix,
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	winStart := l.now().UTC().Truncate(l.window)
	k := windowKey(l.prefix, key, winStart)

	var hits int64
	for {
		// Add falla si ya existe; en ese caso sólo incrementamos.
		_ = l.c.Add(k, int64(0), l.window)
		n, err := l.c.IncrementInt64(k, 1)
		if err == nil {
			hits = n
			break
		}
		// expiró entre Add e Increment: reintentar
	}
	return decide(hits, l.max, winStart.Add(l.window).Sub(l.now())), nil
}
