package ports

import (
	"context"

	"github.com/aretw0/menuflow/pkg/domain"
)

// ConfigReader is the read side of the configuration store used on the hot path.
type ConfigReader interface {
	// List returns every automation of an organization, active or not.
	List(ctx context.Context, organizationID string) ([]*domain.Automation, error)

	// Get returns one automation.
	// Returns domain.ErrConfigNotFound if it does not exist.
	Get(ctx context.Context, organizationID, automationID string) (*domain.Automation, error)
}

// ConfigStore adds create/update/deactivate to ConfigReader.
type ConfigStore interface {
	ConfigReader

	// Save creates or replaces an automation after domain.Validate accepts it.
	Save(ctx context.Context, a *domain.Automation) error

	// Deactivate clears the active flag. Sessions already running keep going.
	Deactivate(ctx context.Context, organizationID, automationID string) error
}

// Watchable defines an interface for sources that can notify about changes.
// This is used for hot-reload of automation files.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying source changes.
	// It abstracts away the specific event details, signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
