package ports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
// The store's clock must be close to wall time.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	keyFor := func(name string) domain.SessionKey {
		return domain.SessionKey{
			OrganizationID:  "org-contract",
			Channel:         domain.ChannelWhatsApp,
			CustomerAddress: name + "-" + suffix,
		}
	}
	fresh := func(key domain.SessionKey, menuID string) *domain.Session {
		s := domain.NewSession("sess-"+key.CustomerAddress, key, "auto-1", menuID, time.Now(), time.Hour)
		s.Variables["name"] = "Ana"
		return s
	}

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, keyFor("missing"))
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Create With Version Zero", func(t *testing.T) {
		key := keyFor("create")
		s := fresh(key, "start")

		require.NoError(t, store.CompareAndSwap(ctx, key, 0, s))
		assert.Equal(t, uint64(1), s.Version)

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), loaded.Version)
		assert.Equal(t, "start", loaded.MenuID)
		assert.Equal(t, "Ana", loaded.Variables["name"])
		assert.Equal(t, domain.StatusActive, loaded.Status)
	})

	t.Run("Create Twice Conflicts", func(t *testing.T) {
		key := keyFor("create-twice")
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, fresh(key, "a")))

		err := store.CompareAndSwap(ctx, key, 0, fresh(key, "b"))
		assert.ErrorIs(t, err, domain.ErrSessionConflict)

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "a", loaded.MenuID)
	})

	t.Run("Swap Advances Version", func(t *testing.T) {
		key := keyFor("swap")
		s := fresh(key, "m1")
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, s))

		next := s.Clone()
		next.MenuID = "m2"
		require.NoError(t, store.CompareAndSwap(ctx, key, 1, next))
		assert.Equal(t, uint64(2), next.Version)

		stale := s.Clone()
		stale.MenuID = "m3"
		assert.ErrorIs(t, store.CompareAndSwap(ctx, key, 1, stale), domain.ErrSessionConflict)
		assert.Equal(t, uint64(1), stale.Version, "failed swap must not stamp the version")

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "m2", loaded.MenuID)
		assert.Equal(t, uint64(2), loaded.Version)
	})

	t.Run("Stored Copy Is Isolated", func(t *testing.T) {
		key := keyFor("isolated")
		s := fresh(key, "m1")
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, s))
		s.Variables["name"] = "mutated"

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Ana", loaded.Variables["name"])
	})

	t.Run("Compare And Delete", func(t *testing.T) {
		key := keyFor("cad")
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, fresh(key, "m1")))

		id := "sess-" + key.CustomerAddress
		assert.ErrorIs(t, store.CompareAndDelete(ctx, key, id, 7), domain.ErrSessionConflict)
		assert.ErrorIs(t, store.CompareAndDelete(ctx, key, "someone-else", 1), domain.ErrSessionConflict)
		require.NoError(t, store.CompareAndDelete(ctx, key, id, 1))

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.ErrorIs(t, store.CompareAndDelete(ctx, key, id, 1), domain.ErrSessionConflict)
	})

	t.Run("Recreated Session Rejects Old Reader", func(t *testing.T) {
		key := keyFor("recreated")
		old := fresh(key, "m1")
		old.ID = "sess-old"
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, old))
		require.NoError(t, store.CompareAndDelete(ctx, key, old.ID, old.Version))

		current := fresh(key, "m1")
		current.ID = "sess-new"
		current.Variables["name"] = "Bia"
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, current))
		require.Equal(t, old.Version, current.Version, "versions restart for a new session")

		late := old.Clone()
		late.MenuID = "m2"
		assert.ErrorIs(t, store.CompareAndSwap(ctx, key, old.Version, late), domain.ErrSessionConflict)
		assert.ErrorIs(t, store.CompareAndDelete(ctx, key, old.ID, old.Version), domain.ErrSessionConflict)

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "sess-new", loaded.ID)
		assert.Equal(t, "m1", loaded.MenuID)
		assert.Equal(t, "Bia", loaded.Variables["name"])
	})

	t.Run("Put And Delete", func(t *testing.T) {
		key := keyFor("put")
		s := fresh(key, "m1")
		s.Version = 4
		require.NoError(t, store.Put(ctx, key, s, time.Hour))

		loaded, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), loaded.Version)
		assert.True(t, loaded.ExpiresAt.After(time.Now().Add(59*time.Minute)))

		require.NoError(t, store.Delete(ctx, key))
		_, err = store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.NoError(t, store.Delete(ctx, key), "deleting an absent key is not an error")
	})

	t.Run("Concurrent Swaps Apply Once", func(t *testing.T) {
		key := keyFor("race")
		s := fresh(key, "m1")
		require.NoError(t, store.CompareAndSwap(ctx, key, 0, s))

		const racers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := s.Clone()
				next.MenuID = "m2"
				err := store.CompareAndSwap(ctx, key, 1, next)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrSessionConflict):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, racers-1, conflicts)
	})
}

// RunConfigStoreContract verifies the CRUD contract of a ConfigStore.
func RunConfigStoreContract(t *testing.T, store ConfigStore) {
	ctx := context.Background()
	org := "org-" + time.Now().Format("150405.000000000")

	automation := func(id string, priority int) *domain.Automation {
		return &domain.Automation{
			ID:             id,
			OrganizationID: org,
			Name:           id,
			Active:         true,
			Priority:       priority,
			Triggers: []domain.Trigger{
				{Type: domain.TriggerKeyword, Keywords: []string{"hi"}, MenuID: "main"},
			},
			Menus: []domain.Menu{
				{
					ID:   "main",
					Type: domain.MenuButtons,
					Body: "Pick one",
					Options: []domain.Option{
						{ID: "a", Title: "A", Action: domain.End{Text: "bye"}},
						{ID: "b", Title: "B", Action: domain.FallbackAI{}},
					},
				},
			},
		}
	}

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, org, "nope")
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	t.Run("Save And Get", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, automation("a1", 1)))

		got, err := store.Get(ctx, org, "a1")
		require.NoError(t, err)
		assert.Equal(t, automation("a1", 1), got)
	})

	t.Run("Save Rejects Dangling Menu", func(t *testing.T) {
		bad := automation("bad", 1)
		bad.Triggers[0].MenuID = "ghost"

		err := store.Save(ctx, bad)
		require.Error(t, err)
		assert.NotEmpty(t, domain.ValidationErrors(err))

		_, err = store.Get(ctx, org, "bad")
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	t.Run("List Scoped To Organization", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, automation("a2", 2)))
		other := automation("x1", 1)
		other.OrganizationID = org + "-other"
		require.NoError(t, store.Save(ctx, other))

		list, err := store.List(ctx, org)
		require.NoError(t, err)
		ids := make([]string, 0, len(list))
		for _, a := range list {
			ids = append(ids, a.ID)
		}
		assert.ElementsMatch(t, []string{"a1", "a2"}, ids)
	})

	t.Run("Deactivate", func(t *testing.T) {
		require.NoError(t, store.Deactivate(ctx, org, "a2"))

		got, err := store.Get(ctx, org, "a2")
		require.NoError(t, err)
		assert.False(t, got.Active)

		assert.ErrorIs(t, store.Deactivate(ctx, org, "nope"), domain.ErrConfigNotFound)
	})
}
