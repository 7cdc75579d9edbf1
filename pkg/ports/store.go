package ports

import (
	"context"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
)

// SessionStore persists one versioned session per SessionKey.
//
// Every implementation applies domain.Session.Expired as the staleness rule:
// an expired session is reported as absent by Get, and compare operations treat
// it as version 0.
type SessionStore interface {
	// Get retrieves the live session for key.
	// Returns domain.ErrSessionNotFound if it is absent or expired.
	Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error)

	// Put writes a session unconditionally with an expiry of now+ttl.
	// The stored version becomes session.Version+1.
	Put(ctx context.Context, key domain.SessionKey, session *domain.Session, ttl time.Duration) error

	// Delete removes the session. Deleting an absent key is not an error.
	Delete(ctx context.Context, key domain.SessionKey) error

	// CompareAndSwap stores next only if the live session is next.ID at
	// version expected (0 means "no live session"). Versions restart when a
	// key is recreated, so a matching version with a different id conflicts.
	// On success next.Version is set to expected+1. Returns
	// domain.ErrSessionConflict otherwise.
	CompareAndSwap(ctx context.Context, key domain.SessionKey, expected uint64, next *domain.Session) error

	// CompareAndDelete removes the session only if the live session is id at
	// version expected. Returns domain.ErrSessionConflict otherwise.
	CompareAndDelete(ctx context.Context, key domain.SessionKey, id string, expected uint64) error
}

// Sweeper is implemented by stores without native expiry.
type Sweeper interface {
	// Sweep removes every session that is expired at now and returns how many.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
