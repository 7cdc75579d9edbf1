package matcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/menuflow/internal/matcher"
	"github.com/aretw0/menuflow/pkg/adapters/memory"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func automation(id string, priority int, triggers ...domain.Trigger) *domain.Automation {
	return &domain.Automation{
		ID:             id,
		OrganizationID: "acme",
		Active:         true,
		Priority:       priority,
		Triggers:       triggers,
		Menus: []domain.Menu{
			{ID: "M-hours", Type: domain.MenuText, Body: "hours"},
			{ID: "M-welcome", Type: domain.MenuText, Body: "welcome"},
		},
	}
}

func keyword(menu string, caseSensitive bool, kws ...string) domain.Trigger {
	return domain.Trigger{Type: domain.TriggerKeyword, Keywords: kws, CaseSensitive: caseSensitive, MenuID: menu}
}

func text(s string) matcher.Input {
	return matcher.Input{Channel: domain.ChannelWhatsApp, Kind: domain.InputText, Text: s}
}

func TestSelect_KeywordSubstring(t *testing.T) {
	all := []*domain.Automation{automation("a1", 1, keyword("M-hours", false, "hours"))}

	m, ok := matcher.Select(all, text("what are your HOURS?"))
	require.True(t, ok)
	assert.Equal(t, "a1", m.Automation.ID)
	assert.Equal(t, "M-hours", m.MenuID)
	assert.Equal(t, domain.TriggerKeyword, m.Trigger)

	_, ok = matcher.Select(all, text("opening times"))
	assert.False(t, ok)
}

func TestSelect_CaseSensitive(t *testing.T) {
	all := []*domain.Automation{automation("a1", 1, keyword("M-hours", true, "VIP"))}

	_, ok := matcher.Select(all, text("vip please"))
	assert.False(t, ok)
	_, ok = matcher.Select(all, text("VIP please"))
	assert.True(t, ok)
}

func TestSelect_PriorityThenID(t *testing.T) {
	all := []*domain.Automation{
		automation("zeta", 1, keyword("M-welcome", false, "hi")),
		automation("late", 5, keyword("M-hours", false, "hi")),
		automation("alpha", 1, keyword("M-hours", false, "hi")),
	}

	m, ok := matcher.Select(all, text("hi"))
	require.True(t, ok)
	assert.Equal(t, "alpha", m.Automation.ID, "ties on priority break by id")

	// Deterministic regardless of input order.
	reversed := []*domain.Automation{all[2], all[1], all[0]}
	for i := 0; i < 5; i++ {
		again, ok := matcher.Select(reversed, text("hi"))
		require.True(t, ok)
		assert.Equal(t, m.Automation.ID, again.Automation.ID)
		assert.Equal(t, m.MenuID, again.MenuID)
	}
}

func TestSelect_DeclarationOrderWithinAutomation(t *testing.T) {
	all := []*domain.Automation{automation("a1", 1,
		keyword("M-welcome", false, "hello"),
		keyword("M-hours", false, "hello hours"),
	)}

	m, ok := matcher.Select(all, text("hello hours"))
	require.True(t, ok)
	assert.Equal(t, "M-welcome", m.MenuID)
}

func TestSelect_SkipsInactiveAndOutOfScope(t *testing.T) {
	inactive := automation("a1", 1, keyword("M-hours", false, "hours"))
	inactive.Active = false
	scoped := automation("a2", 2, keyword("M-hours", false, "hours"))
	scoped.Channels = []string{"website"}

	_, ok := matcher.Select([]*domain.Automation{inactive, scoped}, text("hours"))
	assert.False(t, ok)
}

func TestSelect_ButtonClickNeedsPayload(t *testing.T) {
	all := []*domain.Automation{automation("a1", 1,
		domain.Trigger{Type: domain.TriggerButtonClick, PayloadID: "promo-2026", MenuID: "M-hours"},
	)}

	_, ok := matcher.Select(all, text("promo-2026"))
	assert.False(t, ok, "button triggers never match plain text")

	m, ok := matcher.Select(all, matcher.Input{Channel: domain.ChannelWhatsApp, Kind: domain.InputButtonClick, SelectionID: "promo-2026"})
	require.True(t, ok)
	assert.Equal(t, domain.TriggerButtonClick, m.Trigger)
}

func TestSelect_FirstMessageAndWelcome(t *testing.T) {
	first := automation("a1", 1, domain.Trigger{Type: domain.TriggerFirstMessage, MenuID: "M-welcome"})
	in := text("anything")

	_, ok := matcher.Select([]*domain.Automation{first}, in)
	assert.False(t, ok)

	in.FirstContact = true
	m, ok := matcher.Select([]*domain.Automation{first}, in)
	require.True(t, ok)
	assert.Equal(t, "M-welcome", m.MenuID)

	welcome := automation("a2", 1, keyword("M-hours", false, "hours"))
	welcome.Settings.WelcomeOnFirstContact = true
	welcome.Settings.WelcomeMenuID = "M-welcome"

	m, ok = matcher.Select([]*domain.Automation{welcome}, in)
	require.True(t, ok)
	assert.Equal(t, "M-welcome", m.MenuID)

	in.Text = "hours?"
	m, ok = matcher.Select([]*domain.Automation{welcome}, in)
	require.True(t, ok)
	assert.Equal(t, "M-hours", m.MenuID, "declared triggers run before the welcome menu")
}

func TestSelect_SkipsTriggerWithUnknownMenu(t *testing.T) {
	broken := automation("a1", 1,
		keyword("deleted-menu", false, "hours"),
		keyword("M-hours", false, "hours"),
	)

	m, ok := matcher.Select([]*domain.Automation{broken}, text("hours"))
	require.True(t, ok)
	assert.Equal(t, "M-hours", m.MenuID)
}

type failingConfig struct{ err error }

func (f failingConfig) List(context.Context, string) ([]*domain.Automation, error) {
	return nil, f.err
}

func (f failingConfig) Get(context.Context, string, string) (*domain.Automation, error) {
	return nil, f.err
}

func event(text string) domain.InboundEvent {
	return domain.InboundEvent{
		OrganizationID:  "acme",
		Channel:         domain.ChannelWhatsApp,
		CustomerAddress: "+1",
		Kind:            domain.InputText,
		Text:            text,
	}
}

func TestMatcher_Match(t *testing.T) {
	first := automation("a1", 1, domain.Trigger{Type: domain.TriggerFirstMessage, MenuID: "M-welcome"})
	store, err := memory.NewConfigStore(first)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("session absence counts as first contact", func(t *testing.T) {
		m, ok, err := matcher.New(store).Match(ctx, event("hi"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "M-welcome", m.MenuID)
	})

	t.Run("registry remembers returning contacts", func(t *testing.T) {
		history := memory.NewHistory(0)
		require.NoError(t, history.MarkSeen(ctx, event("").Key(), time.Now()))

		_, ok, err := matcher.New(store, matcher.WithContactRegistry(history)).Match(ctx, event("hi"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing config is no match", func(t *testing.T) {
		_, ok, err := matcher.New(failingConfig{domain.ErrConfigNotFound}).Match(ctx, event("hi"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store errors surface", func(t *testing.T) {
		_, _, err := matcher.New(failingConfig{domain.ErrStoreTimeout}).Match(ctx, event("hi"))
		assert.True(t, errors.Is(err, domain.ErrStoreTimeout))
	})
}
