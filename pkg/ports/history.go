package ports

import (
	"context"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
)

// ContactRegistry remembers which addresses have ever written in.
// It disambiguates a first contact from a session that merely expired.
type ContactRegistry interface {
	SeenBefore(ctx context.Context, key domain.SessionKey) (bool, error)
	MarkSeen(ctx context.Context, key domain.SessionKey, at time.Time) error
}

// TurnLog keeps a bounded history of conversation turns per address.
type TurnLog interface {
	Append(ctx context.Context, key domain.SessionKey, turns ...domain.Turn) error

	// Recent returns up to n turns, oldest first.
	Recent(ctx context.Context, key domain.SessionKey, n int) ([]domain.Turn, error)
}
