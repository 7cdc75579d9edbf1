package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// Store implements ports.SessionStore in memory.
// Safe for concurrent use. Expired entries are hidden on read and removed by
// Get lazily or by Sweep.
type Store struct {
	data map[domain.SessionKey]*domain.Session
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data: make(map[domain.SessionKey]*domain.Session),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the stored session if it has not expired, dropping it otherwise.
// Caller holds mu.
func (s *Store) live(key domain.SessionKey) *domain.Session {
	cur, ok := s.data[key]
	if !ok {
		return nil
	}
	if cur.Expired(s.now()) {
		delete(s.data, key)
		return nil
	}
	return cur
}

// matches reports whether the live session is the one a caller read: same
// version and, for a non-zero version, the same session id. Versions restart
// when a key is recreated, so the id tells incarnations apart.
// Caller holds mu.
func (s *Store) matches(key domain.SessionKey, id string, expected uint64) bool {
	cur := s.live(key)
	if cur == nil {
		return expected == 0
	}
	return cur.Version == expected && cur.ID == id
}

// Get retrieves a copy of the live session.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.live(key)
	if cur == nil {
		return nil, domain.ErrSessionNotFound
	}
	// Copy on read so callers can't mutate store state directly by pointer
	return cur.Clone(), nil
}

// Put writes the session unconditionally.
func (s *Store) Put(ctx context.Context, key domain.SessionKey, session *domain.Session, ttl time.Duration) error {
	stored := session.Clone()
	stored.Version = session.Version + 1
	stored.ExpiresAt = s.now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = stored
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// CompareAndSwap stores next if the live session is next.ID at version expected.
func (s *Store) CompareAndSwap(ctx context.Context, key domain.SessionKey, expected uint64, next *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.matches(key, next.ID, expected) {
		return domain.ErrSessionConflict
	}
	stored := next.Clone()
	stored.Version = expected + 1
	s.data[key] = stored
	next.Version = stored.Version
	return nil
}

// CompareAndDelete removes the session if it is still id at version expected.
func (s *Store) CompareAndDelete(ctx context.Context, key domain.SessionKey, id string, expected uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expected == 0 || !s.matches(key, id, expected) {
		return domain.ErrSessionConflict
	}
	delete(s.data, key)
	return nil
}

// Sweep removes every session expired at now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.data {
		if sess.Expired(now) {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
