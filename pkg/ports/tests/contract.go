package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

// ContactRegistryContractTest is a reusable test suite that verifies if an adapter complies with ports.ContactRegistry.
func ContactRegistryContractTest(t *testing.T, registry ports.ContactRegistry) {
	t.Helper()
	ctx := context.Background()
	key := domain.SessionKey{OrganizationID: "org", Channel: domain.ChannelWebsite, CustomerAddress: "visitor-1"}

	t.Run("Unknown_Address", func(t *testing.T) {
		seen, err := registry.SeenBefore(ctx, key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen {
			t.Error("expected unknown address to be unseen")
		}
	})

	t.Run("MarkSeen", func(t *testing.T) {
		if err := registry.MarkSeen(ctx, key, time.Now()); err != nil {
			t.Fatalf("unexpected error marking seen: %v", err)
		}
		seen, err := registry.SeenBefore(ctx, key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !seen {
			t.Error("expected address to be seen after MarkSeen")
		}
	})

	t.Run("Scoped_By_Channel", func(t *testing.T) {
		other := key
		other.Channel = domain.ChannelMessenger
		seen, err := registry.SeenBefore(ctx, other)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen {
			t.Error("seen flag leaked across channels")
		}
	})
}

// TurnLogContractTest verifies ordering and bounds of a ports.TurnLog.
func TurnLogContractTest(t *testing.T, log ports.TurnLog) {
	t.Helper()
	ctx := context.Background()
	key := domain.SessionKey{OrganizationID: "org", Channel: domain.ChannelWhatsApp, CustomerAddress: "+100"}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Empty", func(t *testing.T) {
		turns, err := log.Recent(ctx, key, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("expected no turns, got %d", len(turns))
		}
	})

	t.Run("Recent_Oldest_First", func(t *testing.T) {
		for i, text := range []string{"one", "two", "three", "four"} {
			turn := domain.Turn{Role: domain.RoleCustomer, Text: text, At: base.Add(time.Duration(i) * time.Second)}
			if err := log.Append(ctx, key, turn); err != nil {
				t.Fatalf("append %q: %v", text, err)
			}
		}

		turns, err := log.Recent(ctx, key, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(turns))
		}
		if turns[0].Text != "three" || turns[1].Text != "four" {
			t.Errorf("got %q,%q want three,four", turns[0].Text, turns[1].Text)
		}
	})
}
