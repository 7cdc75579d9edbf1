package ports

import (
	"context"

	"github.com/aretw0/menuflow/pkg/domain"
)

// Sender delivers outbound messages on one channel.
type Sender interface {
	Send(ctx context.Context, to domain.Recipient, msg domain.OutboundMessage) error
}

// Assistant receives AI handoffs. Its reply contract is its own business.
type Assistant interface {
	Handoff(ctx context.Context, h domain.AIHandoff) error
}

// EscalationSink raises human escalations (tickets, notifications).
type EscalationSink interface {
	Escalate(ctx context.Context, e domain.Escalation) error
}

// IssueReporter tells automation owners about configuration problems.
type IssueReporter interface {
	Report(ctx context.Context, issue domain.ConfigIssue) error
}

// EventHandler is the engine as seen by webhook adapters.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.InboundEvent) (domain.Result, error)
}
