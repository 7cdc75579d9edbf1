package runtime_test

import (
	"testing"
	"time"

	"github.com/aretw0/menuflow/internal/runtime"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	key = domain.SessionKey{OrganizationID: "acme", Channel: domain.ChannelWhatsApp, CustomerAddress: "+5511"}
)

func hoursAutomation() *domain.Automation {
	return &domain.Automation{
		ID:             "hours",
		OrganizationID: "acme",
		Active:         true,
		Triggers:       []domain.Trigger{{Type: domain.TriggerKeyword, Keywords: []string{"hours"}, MenuID: "M-hours"}},
		Menus: []domain.Menu{
			{
				ID:   "M-hours",
				Type: domain.MenuButtons,
				Body: "When?",
				Options: []domain.Option{
					{ID: "today", Title: "Today", Action: domain.SendMessage{Text: "We're open 9-5"}},
					{ID: "tomorrow", Title: "Tomorrow", Action: domain.SendMessage{Text: "Also 9-5"}},
					{ID: "more", Title: "More", Action: domain.ShowMenu{MenuID: "M-name"}},
				},
			},
			{
				ID:       "M-name",
				Type:     domain.MenuText,
				Body:     "Your name?",
				Variable: "name",
				Next:     domain.ShowMenu{MenuID: "M-topic"},
			},
			{
				ID:   "M-topic",
				Type: domain.MenuText,
				Body: "Topic?",
				Options: []domain.Option{
					{ID: "billing", Title: "Billing", Action: domain.End{Text: "Bye"}},
					{ID: "ai", Title: "Something else", Action: domain.FallbackAI{}},
				},
			},
		},
		Settings: domain.Settings{SessionTTLMinutes: 30},
	}
}

func click(selection string) runtime.Input {
	return runtime.Input{Kind: domain.InputButtonClick, SelectionID: selection}
}

func text(s string) runtime.Input {
	return runtime.Input{Kind: domain.InputText, Text: s}
}

func sessionAt(menuID string) *domain.Session {
	s := domain.NewSession("s1", key, "hours", menuID, now.Add(-time.Minute), 30*time.Minute)
	s.Version = 3
	return s
}

func TestEnter(t *testing.T) {
	step := runtime.Enter(hoursAutomation(), key, "s1", "M-hours", now)

	require.False(t, step.Terminal())
	assert.Equal(t, "M-hours", step.Session.MenuID)
	assert.Equal(t, now.Add(30*time.Minute), step.Session.ExpiresAt)
	require.Len(t, step.Emissions, 1)
	assert.Equal(t, "M-hours", step.Emissions[0].Menu.ID)
}

func TestAdvance_SendMessageStaysPut(t *testing.T) {
	s := sessionAt("M-hours")
	step := runtime.Advance(hoursAutomation(), s, click("M-hours::today"), now)

	assert.Equal(t, domain.StatusActive, step.Status)
	assert.Equal(t, "M-hours", step.Session.MenuID)
	assert.Equal(t, now.Add(30*time.Minute), step.Session.ExpiresAt, "expiry slides")
	require.Len(t, step.Emissions, 1)
	assert.Equal(t, "We're open 9-5", step.Emissions[0].Message.Text)
	assert.Equal(t, "M-hours", s.MenuID, "input session untouched")
}

func TestAdvance_BareSelectionID(t *testing.T) {
	step := runtime.Advance(hoursAutomation(), sessionAt("M-hours"), click("tomorrow"), now)
	require.Len(t, step.Emissions, 1)
	assert.Equal(t, "Also 9-5", step.Emissions[0].Message.Text)
}

func TestAdvance_ShowMenuThenCapture(t *testing.T) {
	a := hoursAutomation()

	step := runtime.Advance(a, sessionAt("M-hours"), click("M-hours::more"), now)
	assert.Equal(t, "M-name", step.Session.MenuID)
	assert.Equal(t, "M-name", step.Emissions[0].Menu.ID)

	step = runtime.Advance(a, step.Session, text("  Ana Souza "), now)
	assert.Equal(t, "name", step.Captured)
	assert.Equal(t, "Ana Souza", step.Session.Variables["name"])
	assert.Equal(t, "M-topic", step.Session.MenuID)
}

func TestAdvance_CaptureMediaKeepsReference(t *testing.T) {
	a := hoursAutomation()
	in := runtime.Input{
		Kind:  domain.InputMedia,
		Text:  "my receipt",
		Media: &domain.Media{Type: domain.MediaImage, URL: "media:123", Caption: "my receipt"},
	}

	step := runtime.Advance(a, sessionAt("M-name"), in, now)
	assert.Equal(t, "name", step.Captured)
	assert.Equal(t, "media:123", step.Session.Variables["name"])
	assert.Equal(t, "my receipt", step.Session.Variables["name_caption"])
}

func TestAdvance_TextMenuWithOptions(t *testing.T) {
	a := hoursAutomation()
	for _, answer := range []string{"billing", "1", "1.", "BILLING"} {
		step := runtime.Advance(a, sessionAt("M-topic"), text(answer), now)
		assert.Equal(t, domain.StatusCompleted, step.Status, answer)
		require.Len(t, step.Emissions, 1)
		assert.Equal(t, "Bye", step.Emissions[0].Text)
	}
}

func TestAdvance_FallbackAction(t *testing.T) {
	step := runtime.Advance(hoursAutomation(), sessionAt("M-topic"), text("2"), now)

	assert.Equal(t, domain.StatusFallback, step.Status)
	assert.Equal(t, domain.ReasonFallbackAction, step.Reason)
	assert.Empty(t, step.Emissions, "the assistant answers explicit handoffs")
	assert.Equal(t, "M-topic", step.Session.MenuID)
}

func TestAdvance_StaleSelection(t *testing.T) {
	step := runtime.Advance(hoursAutomation(), sessionAt("M-name"), click("M-hours::more"), now)
	assert.True(t, step.Stale)
	assert.Empty(t, step.Emissions)
}

func TestAdvance_TypedTextOnButtonsMenuIsUnknown(t *testing.T) {
	step := runtime.Advance(hoursAutomation(), sessionAt("M-hours"), text("today"), now)
	assert.Equal(t, domain.StatusActive, step.Status)
	assert.Equal(t, 1, step.Session.Attempts)
}

func TestAdvance_RepeatMenuCap(t *testing.T) {
	a := hoursAutomation()
	a.Settings.FallbackMessage = "Please pick a button."
	s := sessionAt("M-hours")

	step := runtime.Advance(a, s, text("huh"), now)
	require.Equal(t, domain.StatusActive, step.Status)
	assert.Equal(t, 1, step.Session.Attempts)
	require.Len(t, step.Emissions, 2)
	assert.Equal(t, "Please pick a button.", step.Emissions[0].Text)
	assert.Equal(t, "M-hours", step.Emissions[1].Menu.ID)
	assert.Equal(t, s.Variables, step.Session.Variables)

	step = runtime.Advance(a, step.Session, text("what"), now)
	require.Equal(t, domain.StatusActive, step.Status)
	assert.Equal(t, 2, step.Session.Attempts)

	step = runtime.Advance(a, step.Session, text("???"), now)
	assert.Equal(t, domain.StatusFallback, step.Status)
	assert.Equal(t, domain.ReasonAttemptsExhausted, step.Reason)
	require.Len(t, step.Emissions, 1)
	assert.Equal(t, "Please pick a button.", step.Emissions[0].Text)
}

func TestAdvance_MatchResetsAttempts(t *testing.T) {
	a := hoursAutomation()
	step := runtime.Advance(a, sessionAt("M-hours"), text("huh"), now)
	step = runtime.Advance(a, step.Session, click("M-hours::today"), now)
	assert.Equal(t, 0, step.Session.Attempts)
}

func TestAdvance_FallbackAIPolicy(t *testing.T) {
	a := hoursAutomation()
	a.Settings.UnknownInputBehavior = domain.FallbackToAIPolicy

	step := runtime.Advance(a, sessionAt("M-hours"), text("huh"), now)
	assert.Equal(t, domain.StatusFallback, step.Status)
	assert.Equal(t, domain.ReasonUnknownInput, step.Reason)
	require.Len(t, step.Emissions, 1)
	assert.Equal(t, domain.DefaultFallbackMessage, step.Emissions[0].Text)
}

func TestAdvance_InvalidTransition(t *testing.T) {
	a := hoursAutomation()

	step := runtime.Advance(a, sessionAt("deleted"), text("hi"), now)
	assert.Equal(t, domain.StatusFallback, step.Status)
	assert.Equal(t, domain.ReasonInvalidTransition, step.Reason)

	a.Menus[0].Options[2].Action = domain.ShowMenu{MenuID: "gone"}
	step = runtime.Advance(a, sessionAt("M-hours"), click("M-hours::more"), now)
	assert.Equal(t, domain.ReasonInvalidTransition, step.Reason)
	assert.Equal(t, "M-hours", step.Session.MenuID, "session never points at a missing menu")
}

func TestAdvance_CancelKeyword(t *testing.T) {
	a := hoursAutomation()
	a.Settings.CancelKeywords = []string{"stop"}

	step := runtime.Advance(a, sessionAt("M-name"), text("please STOP"), now)
	assert.Equal(t, domain.StatusCompleted, step.Status)
	assert.Empty(t, step.Session.Variables)
}

func TestAdvance_SendMessageChainedToEnd(t *testing.T) {
	a := hoursAutomation()
	a.Menus[0].Options[0].Action = domain.SendMessage{Text: "Bye", End: true}

	step := runtime.Advance(a, sessionAt("M-hours"), click("M-hours::today"), now)
	assert.Equal(t, domain.StatusCompleted, step.Status)
	require.Len(t, step.Emissions, 1)
}

func TestFallback_ReplacesEmissions(t *testing.T) {
	a := hoursAutomation()
	step := runtime.Advance(a, sessionAt("M-hours"), click("M-hours::more"), now)

	step = runtime.Fallback(a, step, domain.ReasonRenderOverflow, now)
	assert.Equal(t, domain.StatusFallback, step.Status)
	assert.Equal(t, domain.ReasonRenderOverflow, step.Reason)
	require.Len(t, step.Emissions, 1)
	assert.Equal(t, domain.DefaultFallbackMessage, step.Emissions[0].Text)
}
