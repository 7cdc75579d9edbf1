package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/menuflow/pkg/domain"
)

type configKey struct {
	org string
	id  string
}

// ConfigStore implements ports.ConfigStore using an in-memory map.
// Documents are copied through JSON on the way in and out.
type ConfigStore struct {
	mu   sync.RWMutex
	docs map[configKey][]byte
}

// NewConfigStore creates a store seeded with the given automations.
// Seeds are validated like any Save.
func NewConfigStore(automations ...*domain.Automation) (*ConfigStore, error) {
	s := &ConfigStore{docs: make(map[configKey][]byte)}
	for _, a := range automations {
		if err := s.Save(context.Background(), a); err != nil {
			return nil, fmt.Errorf("seed automation %q: %w", a.ID, err)
		}
	}
	return s, nil
}

// Save validates and stores the automation.
func (s *ConfigStore) Save(ctx context.Context, a *domain.Automation) error {
	if err := domain.Validate(a); err != nil {
		return err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal automation %s: %w", a.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[configKey{a.OrganizationID, a.ID}] = raw
	return nil
}

// Get returns a copy of one automation.
func (s *ConfigStore) Get(ctx context.Context, organizationID, automationID string) (*domain.Automation, error) {
	s.mu.RLock()
	raw, ok := s.docs[configKey{organizationID, automationID}]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	return decode(raw)
}

// List returns copies of every automation of the organization, sorted by id.
func (s *ConfigStore) List(ctx context.Context, organizationID string) ([]*domain.Automation, error) {
	s.mu.RLock()
	var raws [][]byte
	for k, raw := range s.docs {
		if k.org == organizationID {
			raws = append(raws, raw)
		}
	}
	s.mu.RUnlock()

	out := make([]*domain.Automation, 0, len(raws))
	for _, raw := range raws {
		a, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Deactivate clears the active flag.
func (s *ConfigStore) Deactivate(ctx context.Context, organizationID, automationID string) error {
	a, err := s.Get(ctx, organizationID, automationID)
	if err != nil {
		return err
	}
	a.Active = false
	return s.Save(ctx, a)
}

func decode(raw []byte) (*domain.Automation, error) {
	var a domain.Automation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("failed to decode automation: %w", err)
	}
	return &a, nil
}
