package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
)

// DefaultMaxTurns bounds the turns kept per address.
const DefaultMaxTurns = 50

// History implements ports.ContactRegistry and ports.TurnLog in memory.
type History struct {
	mu       sync.Mutex
	seen     map[domain.SessionKey]time.Time
	turns    map[domain.SessionKey][]domain.Turn
	maxTurns int
}

// NewHistory creates an empty history keeping at most maxTurns per address.
// A non-positive maxTurns selects DefaultMaxTurns.
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{
		seen:     make(map[domain.SessionKey]time.Time),
		turns:    make(map[domain.SessionKey][]domain.Turn),
		maxTurns: maxTurns,
	}
}

func (h *History) SeenBefore(ctx context.Context, key domain.SessionKey) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.seen[key]
	return ok, nil
}

func (h *History) MarkSeen(ctx context.Context, key domain.SessionKey, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.seen[key]; !ok {
		h.seen[key] = at
	}
	return nil
}

func (h *History) Append(ctx context.Context, key domain.SessionKey, turns ...domain.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.turns[key], turns...)
	if len(all) > h.maxTurns {
		all = append([]domain.Turn(nil), all[len(all)-h.maxTurns:]...)
	}
	h.turns[key] = all
	return nil
}

func (h *History) Recent(ctx context.Context, key domain.SessionKey, n int) ([]domain.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.turns[key]
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return append([]domain.Turn(nil), all...), nil
}
