package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.SessionStore using Redis.
//
// Each session is a JSON string whose key TTL follows Session.ExpiresAt, so
// Redis evicts stale sessions actively. Get still applies the passive check
// with the store clock. A ZSET index scored by expiry (unix millis) backs
// Active and Sweep.
type Store struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

type Option func(*Store)

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source used for the passive expiry check.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "menuflow:session:",
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(key domain.SessionKey) string {
	return s.prefix + key.String()
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// decodeLive reads the session stored at k through cmd.
// It returns nil when the key is missing or the session is stale.
func (s *Store) decodeLive(cmd *backend.StringCmd) (*domain.Session, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, nil
	}
	return &sess, nil
}

// Get retrieves the live session from Redis.
func (s *Store) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	k := s.key(key)
	sess, err := s.decodeLive(s.client.Get(ctx, k))
	if err != nil {
		return nil, err
	}
	if sess == nil {
		// A stale key left behind by clock skew is evicted by its own TTL and
		// pruned from the index by Sweep.
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// write queues the session and its index entry on pipe.
func (s *Store) write(ctx context.Context, pipe backend.Pipeliner, key domain.SessionKey, sess *domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.ID)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	pipe.Set(ctx, s.key(key), data, ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score(sess.ExpiresAt),
		Member: key.String(),
	})
	return nil
}

// Put persists the session unconditionally.
func (s *Store) Put(ctx context.Context, key domain.SessionKey, session *domain.Session, ttl time.Duration) error {
	stored := session.Clone()
	stored.Version = session.Version + 1
	stored.ExpiresAt = s.now().Add(ttl)

	pipe := s.client.TxPipeline()
	if err := s.write(ctx, pipe, key, stored); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Delete removes the session and its index entry.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key.String())

	_, err := pipe.Exec(ctx)
	return err
}

// watchVersion runs fn inside WATCH on the session key once the live session
// is id at version expected. Versions restart when a key is recreated, so the
// id tells incarnations apart.
func (s *Store) watchVersion(ctx context.Context, key domain.SessionKey, id string, expected uint64, fn func(pipe backend.Pipeliner) error) error {
	k := s.key(key)
	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		cur, err := s.decodeLive(tx.Get(ctx, k))
		if err != nil {
			return err
		}
		switch {
		case cur == nil && expected != 0:
			return domain.ErrSessionConflict
		case cur != nil && (cur.Version != expected || cur.ID != id):
			return domain.ErrSessionConflict
		}

		var fnErr error
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			fnErr = fn(pipe)
			return fnErr
		})
		if fnErr != nil {
			return fnErr
		}
		return err
	}, k)

	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrSessionConflict
	}
	return err
}

// CompareAndSwap stores next if the live session is next.ID at version expected.
func (s *Store) CompareAndSwap(ctx context.Context, key domain.SessionKey, expected uint64, next *domain.Session) error {
	stored := next.Clone()
	stored.Version = expected + 1

	err := s.watchVersion(ctx, key, next.ID, expected, func(pipe backend.Pipeliner) error {
		return s.write(ctx, pipe, key, stored)
	})
	if err != nil {
		return err
	}
	next.Version = stored.Version
	return nil
}

// CompareAndDelete removes the session if it is still id at version expected.
func (s *Store) CompareAndDelete(ctx context.Context, key domain.SessionKey, id string, expected uint64) error {
	if expected == 0 {
		return domain.ErrSessionConflict
	}
	return s.watchVersion(ctx, key, id, expected, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, s.key(key))
		pipe.ZRem(ctx, s.indexKey(), key.String())
		return nil
	})
}

// Active counts sessions whose index entry has not expired at now.
func (s *Store) Active(ctx context.Context) (int64, error) {
	lower := "(" + strconv.FormatInt(s.now().UnixMilli(), 10)
	return s.client.ZCount(ctx, s.indexKey(), lower, "+inf").Result()
}

// Sweep prunes index entries that are stale at now. Session keys themselves
// are evicted by Redis.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	upper := strconv.FormatInt(now.UnixMilli(), 10)
	n, err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", upper).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired sessions: %w", err)
	}
	return int(n), nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
