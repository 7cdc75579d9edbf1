package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

// DefaultTimeout bounds every store call made through a Manager.
const DefaultTimeout = 2 * time.Second

// Manager mediates every access to a SessionStore. Reads inherit the
// caller's context; writes are detached from it so a cancelled request
// never leaves a half-applied transition.
type Manager struct {
	store   ports.SessionStore
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithTimeout sets the per-call store deadline.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager over the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

func (m *Manager) read(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) write(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
}

// timeout maps deadline expiry to ErrStoreTimeout and leaves every other
// error as is.
func timeout(op string, key domain.SessionKey, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s", domain.ErrStoreTimeout, op, key)
	}
	return err
}

// Get returns the live session for key or ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	ctx, cancel := m.read(ctx)
	defer cancel()

	s, err := m.store.Get(ctx, key)
	return s, timeout("get", key, err)
}

// Create stores a brand new session. It fails with ErrSessionConflict when
// another live session already holds the key.
func (m *Manager) Create(ctx context.Context, s *domain.Session) error {
	return m.Commit(ctx, 0, s)
}

// Commit replaces the session stored at version expected with next. On
// success next.Version holds the new version.
func (m *Manager) Commit(ctx context.Context, expected uint64, next *domain.Session) error {
	ctx, cancel := m.write(ctx)
	defer cancel()

	err := m.store.CompareAndSwap(ctx, next.Key, expected, next)
	if errors.Is(err, domain.ErrSessionConflict) {
		m.logger.Debug("session commit lost race",
			"org", next.Key.OrganizationID,
			"channel", next.Key.Channel,
			"customer", next.Key.CustomerAddress,
			"session_id", next.ID,
			"version", expected,
		)
	}
	return timeout("commit", next.Key, err)
}

// Finish deletes the session if it is still id at version expected.
func (m *Manager) Finish(ctx context.Context, key domain.SessionKey, id string, expected uint64) error {
	ctx, cancel := m.write(ctx)
	defer cancel()

	return timeout("finish", key, m.store.CompareAndDelete(ctx, key, id, expected))
}

// Delete removes the session unconditionally.
func (m *Manager) Delete(ctx context.Context, key domain.SessionKey) error {
	ctx, cancel := m.write(ctx)
	defer cancel()

	return timeout("delete", key, m.store.Delete(ctx, key))
}

// Sweep removes expired sessions when the store supports active expiry.
// Stores that only expire passively report zero.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int, error) {
	sweeper, ok := m.store.(ports.Sweeper)
	if !ok {
		return 0, nil
	}
	ctx, cancel := m.read(ctx)
	defer cancel()

	n, err := sweeper.Sweep(ctx, now)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return n, fmt.Errorf("%w: sweep", domain.ErrStoreTimeout)
		}
		return n, err
	}
	if n > 0 {
		m.logger.Debug("swept expired sessions", "count", n)
	}
	return n, nil
}
