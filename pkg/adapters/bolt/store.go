// Package bolt persists automations, first-contact flags and turn history in
// a single bbolt file.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	automationsBucket = []byte("automations")
	contactsBucket    = []byte("contacts")
	turnsBucket       = []byte("turns")
)

// DefaultMaxTurns bounds the history kept per address.
const DefaultMaxTurns = 50

// Store implements ports.ConfigStore, ports.ContactRegistry and ports.TurnLog.
// Automations live in one nested bucket per organization.
type Store struct {
	db       *bolt.DB
	maxTurns int
}

// Open opens (or creates) the database at path.
// A non-positive maxTurns selects DefaultMaxTurns.
func Open(path string, maxTurns int) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{automationsBucket, contactsBucket, turnsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{db: db, maxTurns: maxTurns}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save validates and stores the automation.
func (s *Store) Save(ctx context.Context, a *domain.Automation) error {
	if err := domain.Validate(a); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal automation %s: %w", a.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		org, err := tx.Bucket(automationsBucket).CreateBucketIfNotExists([]byte(a.OrganizationID))
		if err != nil {
			return err
		}
		return org.Put([]byte(a.ID), data)
	})
}

// Get returns one automation.
func (s *Store) Get(ctx context.Context, organizationID, automationID string) (*domain.Automation, error) {
	var a *domain.Automation
	err := s.db.View(func(tx *bolt.Tx) error {
		org := tx.Bucket(automationsBucket).Bucket([]byte(organizationID))
		if org == nil {
			return nil
		}
		v := org.Get([]byte(automationID))
		if v == nil {
			return nil
		}
		a = new(domain.Automation)
		return json.Unmarshal(v, a)
	})
	if err != nil {
		return nil, fmt.Errorf("get automation %s: %w", automationID, err)
	}
	if a == nil {
		return nil, domain.ErrConfigNotFound
	}
	return a, nil
}

// List returns every automation of the organization in key (id) order.
func (s *Store) List(ctx context.Context, organizationID string) ([]*domain.Automation, error) {
	var out []*domain.Automation
	err := s.db.View(func(tx *bolt.Tx) error {
		org := tx.Bucket(automationsBucket).Bucket([]byte(organizationID))
		if org == nil {
			return nil
		}
		return org.ForEach(func(k, v []byte) error {
			var a domain.Automation
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("automation %s: %w", k, err)
			}
			out = append(out, &a)
			return nil
		})
	})
	return out, err
}

// Deactivate clears the active flag.
func (s *Store) Deactivate(ctx context.Context, organizationID, automationID string) error {
	a, err := s.Get(ctx, organizationID, automationID)
	if err != nil {
		return err
	}
	a.Active = false
	return s.Save(ctx, a)
}

func (s *Store) SeenBefore(ctx context.Context, key domain.SessionKey) (bool, error) {
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(contactsBucket).Get([]byte(key.String())) != nil
		return nil
	})
	return seen, err
}

// MarkSeen records the first contact time. Later calls keep the original.
func (s *Store) MarkSeen(ctx context.Context, key domain.SessionKey, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(contactsBucket)
		k := []byte(key.String())
		if b.Get(k) != nil {
			return nil
		}
		v, err := at.UTC().MarshalText()
		if err != nil {
			return err
		}
		return b.Put(k, v)
	})
}

func (s *Store) Append(ctx context.Context, key domain.SessionKey, turns ...domain.Turn) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(turnsBucket)
		k := []byte(key.String())

		var all []domain.Turn
		if v := b.Get(k); v != nil {
			if err := json.Unmarshal(v, &all); err != nil {
				return err
			}
		}
		all = append(all, turns...)
		if len(all) > s.maxTurns {
			all = all[len(all)-s.maxTurns:]
		}
		data, err := json.Marshal(all)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
}

func (s *Store) Recent(ctx context.Context, key domain.SessionKey, n int) ([]domain.Turn, error) {
	var all []domain.Turn
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(turnsBucket).Get([]byte(key.String()))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &all)
	})
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, err
}
