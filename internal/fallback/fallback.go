// Package fallback translates "the flow gave up" into what happens next:
// an AI handoff or a human escalation. It owns no state.
package fallback

import (
	"github.com/aretw0/menuflow/pkg/domain"
)

// Request describes a flow that gave up.
type Request struct {
	Automation *domain.Automation
	Session    *domain.Session
	Reason     domain.FallbackReason

	// Turns is the recent history, oldest first. Optional.
	Turns []domain.Turn
}

// Decision carries exactly one of Handoff or Escalation.
type Decision struct {
	Target     domain.EscalationTarget
	Handoff    *domain.AIHandoff
	Escalation *domain.Escalation
}

// Decide picks the target. A customer who chose a fallback_ai option always
// reaches the assistant; every other reason follows the automation settings.
func Decide(req Request) Decision {
	target := req.Automation.Settings.EscalationTarget()
	if req.Reason == domain.ReasonFallbackAction {
		target = domain.EscalateToAI
	}

	s := req.Session
	vars := make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		vars[k] = v
	}

	if target == domain.EscalateToAI {
		return Decision{
			Target: target,
			Handoff: &domain.AIHandoff{
				CustomerAddress: s.Key.CustomerAddress,
				OrganizationID:  s.Key.OrganizationID,
				Channel:         s.Key.Channel,
				AutomationID:    req.Automation.ID,
				Reason:          req.Reason,
				Variables:       vars,
				RecentTurns:     req.Turns,
			},
		}
	}
	return Decision{
		Target: domain.EscalateToHuman,
		Escalation: &domain.Escalation{
			CustomerAddress: s.Key.CustomerAddress,
			Channel:         s.Key.Channel,
			OrganizationID:  s.Key.OrganizationID,
			AutomationID:    req.Automation.ID,
			MenuIDAtFailure: s.MenuID,
			Variables:       vars,
			Reason:          req.Reason,
		},
	}
}
