package fallback_test

import (
	"testing"
	"time"

	"github.com/aretw0/menuflow/internal/fallback"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(settings domain.Settings, reason domain.FallbackReason) fallback.Request {
	key := domain.SessionKey{OrganizationID: "acme", Channel: domain.ChannelWhatsApp, CustomerAddress: "+1"}
	s := domain.NewSession("s1", key, "support", "M-topic", time.Now(), time.Minute)
	s.Variables["name"] = "Ana"
	return fallback.Request{
		Automation: &domain.Automation{ID: "support", OrganizationID: "acme", Settings: settings},
		Session:    s,
		Reason:     reason,
		Turns:      []domain.Turn{{Role: domain.RoleCustomer, Text: "help"}},
	}
}

func TestDecide_ExplicitChoiceAlwaysReachesAssistant(t *testing.T) {
	d := fallback.Decide(request(domain.Settings{Escalation: domain.EscalateToHuman}, domain.ReasonFallbackAction))

	require.NotNil(t, d.Handoff)
	assert.Nil(t, d.Escalation)
	assert.Equal(t, "+1", d.Handoff.CustomerAddress)
	assert.Equal(t, map[string]string{"name": "Ana"}, d.Handoff.Variables)
	assert.Len(t, d.Handoff.RecentTurns, 1)
}

func TestDecide_HumanEscalation(t *testing.T) {
	d := fallback.Decide(request(domain.Settings{}, domain.ReasonAttemptsExhausted))

	require.NotNil(t, d.Escalation)
	assert.Nil(t, d.Handoff)
	assert.Equal(t, domain.EscalateToHuman, d.Target)
	assert.Equal(t, "M-topic", d.Escalation.MenuIDAtFailure)
	assert.Equal(t, domain.ChannelWhatsApp, d.Escalation.Channel)
	assert.Equal(t, domain.ReasonAttemptsExhausted, d.Escalation.Reason)
}

func TestDecide_FollowsUnknownInputPolicy(t *testing.T) {
	d := fallback.Decide(request(domain.Settings{UnknownInputBehavior: domain.FallbackToAIPolicy}, domain.ReasonUnknownInput))
	require.NotNil(t, d.Handoff)
	assert.Equal(t, domain.ReasonUnknownInput, d.Handoff.Reason)
}

func TestDecide_CopiesVariables(t *testing.T) {
	req := request(domain.Settings{}, domain.ReasonInvalidTransition)
	d := fallback.Decide(req)
	req.Session.Variables["name"] = "changed"
	assert.Equal(t, "Ana", d.Escalation.Variables["name"])
}
