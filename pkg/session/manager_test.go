package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/menuflow/pkg/adapters/memory"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore blocks every call until its context is done or release is closed.
type SlowStore struct {
	*memory.Store
	release chan struct{}

	mu      sync.Mutex
	sawDone bool
}

func newSlowStore() *SlowStore {
	return &SlowStore{Store: memory.NewStore(), release: make(chan struct{})}
}

func (s *SlowStore) wait(ctx context.Context) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		s.sawDone = true
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *SlowStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, key)
}

func (s *SlowStore) CompareAndSwap(ctx context.Context, key domain.SessionKey, expected uint64, next *domain.Session) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.Store.CompareAndSwap(ctx, key, expected, next)
}

var key = domain.SessionKey{OrganizationID: "org", Channel: domain.ChannelWhatsApp, CustomerAddress: "+15550100"}

func newSession(id string) *domain.Session {
	return domain.NewSession(id, key, "auto", "main", time.Now(), time.Hour)
}

func TestManager_CreateCommitFinish(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(memory.NewStore())

	_, err := m.Get(ctx, key)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	s := newSession("s1")
	require.NoError(t, m.Create(ctx, s))
	assert.Equal(t, uint64(1), s.Version)

	assert.ErrorIs(t, m.Create(ctx, newSession("s2")), domain.ErrSessionConflict)

	next := s.Clone()
	next.MenuID = "hours"
	require.NoError(t, m.Commit(ctx, s.Version, next))
	assert.Equal(t, uint64(2), next.Version)

	got, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hours", got.MenuID)

	assert.ErrorIs(t, m.Finish(ctx, key, "s1", 1), domain.ErrSessionConflict)
	assert.ErrorIs(t, m.Finish(ctx, key, "s2", 2), domain.ErrSessionConflict)
	require.NoError(t, m.Finish(ctx, key, "s1", 2))

	_, err = m.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_LateTurnCannotOverwriteNewSession(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(memory.NewStore())

	first := newSession("s1")
	require.NoError(t, m.Create(ctx, first))
	read, err := m.Get(ctx, key)
	require.NoError(t, err)

	require.NoError(t, m.Finish(ctx, key, first.ID, first.Version))
	second := newSession("s2")
	second.Variables["name"] = "Ana"
	require.NoError(t, m.Create(ctx, second))
	require.Equal(t, read.Version, second.Version)

	late := read.Clone()
	late.MenuID = "hours"
	assert.ErrorIs(t, m.Commit(ctx, read.Version, late), domain.ErrSessionConflict)
	assert.ErrorIs(t, m.Finish(ctx, key, read.ID, read.Version), domain.ErrSessionConflict)

	got, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
	assert.Equal(t, "main", got.MenuID)
	assert.Equal(t, "Ana", got.Variables["name"])
}

func TestManager_TimeoutMapsToStoreTimeout(t *testing.T) {
	store := newSlowStore()
	m := session.NewManager(store, session.WithTimeout(20*time.Millisecond))

	_, err := m.Get(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)

	err = m.Create(context.Background(), newSession("s1"))
	assert.ErrorIs(t, err, domain.ErrStoreTimeout)
}

func TestManager_WritesIgnoreCallerCancel(t *testing.T) {
	store := newSlowStore()
	m := session.NewManager(store, session.WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Create(ctx, newSession("s1"))
	}()

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	require.NoError(t, <-done)
	store.mu.Lock()
	assert.False(t, store.sawDone, "write must outlive the request context")
	store.mu.Unlock()

	got, err := store.Store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestManager_ReadsFollowCallerCancel(t *testing.T) {
	store := newSlowStore()
	m := session.NewManager(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Get(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrStoreTimeout)
}

func TestManager_Sweep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := session.NewManager(store)

	require.NoError(t, m.Create(ctx, newSession("s1")))
	n, err := m.Sweep(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.Len())
}
