package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dropDatabas3/hellotasks/internal/domain/repository"
	"github.com/dropDatabas3/hellotasks/internal/events"
	"github.com/dropDatabas3/hellotasks/internal/oauth/providers"
	"github.com/dropDatabas3/hellotasks/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo cuenta lecturas y escrituras sobre el store en memoria.
type countingRepo struct {
	*memory.UserStore
	reads  atomic.Int64
	writes atomic.Int64

	// missFirst hace que la primera búsqueda no vea al usuario, como si
	// otro proceso lo hubiera insertado justo después.
	missFirst atomic.Bool
	findErr   error
}

func newCountingRepo() *countingRepo { return &countingRepo{UserStore: memory.NewUserStore()} }

func (r *countingRepo) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	r.reads.Add(1)
	if r.findErr != nil {
		return nil, r.findErr
	}
	if r.missFirst.CompareAndSwap(true, false) {
		return nil, repository.ErrNotFound
	}
	return r.UserStore.FindByEmail(ctx, email)
}

func (r *countingRepo) Save(ctx context.Context, u *repository.User) (*repository.User, error) {
	r.writes.Add(1)
	return r.UserStore.Save(ctx, u)
}

func (r *countingRepo) reset() {
	r.reads.Store(0)
	r.writes.Store(0)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func alice(name, picture string) *providers.Identity {
	return &providers.Identity{Provider: providers.Google, Subject: "g-1", Email: "alice@x.io", FullName: name, PictureURL: picture}
}

func TestReconcile_CreateUnchangedUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	rec := &recorder{}
	m := NewManager(ManagerDeps{Users: repo, Publisher: rec})

	first, err := m.Reconcile(ctx, alice("Alice", "p1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Version)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Admin)

	repo.reset()
	second, err := m.Reconcile(ctx, alice("Alice", "p1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(0), second.Version)
	assert.Equal(t, int64(1), repo.reads.Load(), "unchanged reconcile must read once")
	assert.Equal(t, int64(0), repo.writes.Load(), "unchanged reconcile must not write")

	third, err := m.Reconcile(ctx, alice("Alice L.", "p1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, int64(1), third.Version)
	assert.Equal(t, "Alice L.", third.FullName)

	assert.Equal(t, []string{events.UserCreated, events.UserUpdated}, rec.types())
}

func TestReconcile_EmailIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerDeps{Users: newCountingRepo()})

	a, err := m.Reconcile(ctx, &providers.Identity{Provider: providers.GitHub, Email: "Bob@X.io", FullName: "Bob"})
	require.NoError(t, err)
	b, err := m.Reconcile(ctx, &providers.Identity{Provider: providers.Facebook, Email: "bob@x.io", FullName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "bob@x.io", b.Email)
}

func TestReconcile_CreateRaceBecomesUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	// otro proceso ya insertó a alice con otro nombre
	_, err := repo.UserStore.Save(ctx, &repository.User{ID: "existing", Email: "alice@x.io", FullName: "Old"})
	require.NoError(t, err)
	repo.missFirst.Store(true)

	m := NewManager(ManagerDeps{Users: repo})
	u, err := m.Reconcile(ctx, alice("Alice", "p1"))
	require.NoError(t, err)
	assert.Equal(t, "existing", u.ID)
	assert.Equal(t, int64(1), u.Version)
	assert.Equal(t, "Alice", u.FullName)
	assert.Equal(t, 1, repo.Len())
}

func TestReconcile_ConcurrentSameIdentity(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	m := NewManager(ManagerDeps{Users: repo})

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := m.Reconcile(ctx, alice("Alice", "p1"))
			if err == nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.NotEmpty(t, ids[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, repo.Len())
	u, err := repo.UserStore.FindByEmail(ctx, "alice@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Version)
}

// gatedRepo bloquea la primera búsqueda hasta que se cierra gate y
// registra el estado del ctx con que se ejecutó.
type gatedRepo struct {
	*memory.UserStore
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
	ctxErr  atomic.Value
}

func (r *gatedRepo) FindByEmail(ctx context.Context, email string) (*repository.User, error) {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.gate
		r.ctxErr.Store(fmt.Sprint(ctx.Err()))
	}
	return r.UserStore.FindByEmail(ctx, email)
}

func TestReconcile_CancelledCallerDoesNotFailOthers(t *testing.T) {
	repo := &gatedRepo{
		UserStore: memory.NewUserStore(),
		entered:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	m := NewManager(ManagerDeps{Users: repo})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := m.Reconcile(ctxA, alice("Alice", "p1"))
		errA <- err
	}()
	<-repo.entered

	type result struct {
		u   *repository.User
		err error
	}
	resB := make(chan result, 1)
	go func() {
		u, err := m.Reconcile(context.Background(), alice("Alice", "p1"))
		resB <- result{u, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(repo.gate)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "alice@x.io", b.u.Email)
	assert.Equal(t, "<nil>", repo.ctxErr.Load(), "the shared reconcile must not see the cancellation")
	assert.Equal(t, 1, repo.Len())
}

func TestReconcile_AdminBootstrap(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerDeps{Users: newCountingRepo(), AdminEmails: []string{" Root@X.io "}})

	root, err := m.Reconcile(ctx, &providers.Identity{Provider: providers.Google, Email: "root@x.io"})
	require.NoError(t, err)
	assert.True(t, root.Admin)
	assert.Equal(t, []string{repository.RoleUser, repository.RoleAdmin}, root.Authorities())
}

func TestReconcile_Errors(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerDeps{Users: newCountingRepo()})
	_, err := m.Reconcile(ctx, &providers.Identity{Provider: providers.Google})
	assert.ErrorIs(t, err, ErrNoEmail)

	boom := errors.New("db down")
	repo := newCountingRepo()
	repo.findErr = boom
	_, err = NewManager(ManagerDeps{Users: repo}).Reconcile(ctx, alice("A", ""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), repo.reads.Load(), "store errors are not retried")
}
