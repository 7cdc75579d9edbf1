package domain

import (
	"context"
	"time"
)

// FallbackReason explains why a flow gave up.
type FallbackReason string

const (
	ReasonFallbackAction    FallbackReason = "fallback_action"    // Customer picked a fallback_ai option
	ReasonUnknownInput      FallbackReason = "unknown_input"      // Policy is fallback_ai and input matched nothing
	ReasonAttemptsExhausted FallbackReason = "attempts_exhausted" // repeat_menu cap reached
	ReasonInvalidTransition FallbackReason = "invalid_transition" // Menu vanished from the configuration
	ReasonRenderOverflow    FallbackReason = "render_overflow"    // Menu cannot be rendered on the channel
)

// TurnRole tells who produced a turn.
type TurnRole string

const (
	RoleCustomer TurnRole = "customer"
	RoleBot      TurnRole = "bot"
)

// Turn is one line of conversation history.
type Turn struct {
	Role   TurnRole  `json:"role"`
	Text   string    `json:"text"`
	MenuID string    `json:"menu_id,omitempty"`
	At     time.Time `json:"at"`
}

// AIHandoff is the context given to the AI assistant collaborator.
type AIHandoff struct {
	CustomerAddress string            `json:"customer_address"`
	OrganizationID  string            `json:"organization_id"`
	Channel         Channel           `json:"channel"`
	AutomationID    string            `json:"automation_id"`
	Reason          FallbackReason    `json:"reason"`
	Variables       map[string]string `json:"variables"`
	RecentTurns     []Turn            `json:"recent_turns,omitempty"`
}

// Escalation is raised to a human notification or ticket collaborator.
type Escalation struct {
	CustomerAddress string            `json:"customer_address"`
	Channel         Channel           `json:"channel"`
	OrganizationID  string            `json:"organization_id"`
	AutomationID    string            `json:"automation_id"`
	MenuIDAtFailure string            `json:"menu_id_at_failure"`
	Variables       map[string]string `json:"variables"`
	Reason          FallbackReason    `json:"reason"`
}

// ConfigIssue reports a configuration problem to the automation owner.
type ConfigIssue struct {
	OrganizationID string         `json:"organization_id"`
	AutomationID   string         `json:"automation_id"`
	MenuID         string         `json:"menu_id"`
	Channel        Channel        `json:"channel"`
	Reason         FallbackReason `json:"reason"`
	Detail         string         `json:"detail"`
}

// TransitionEvent describes one committed turn of the state machine.
type TransitionEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	SessionID    string         `json:"session_id"`
	AutomationID string         `json:"automation_id"`
	FromMenuID   string         `json:"from_menu_id,omitempty"`
	ToMenuID     string         `json:"to_menu_id,omitempty"`
	Status       SessionStatus  `json:"status"`
	Reason       FallbackReason `json:"reason,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *TransitionEvent)
	OnTransition   func(context.Context, *TransitionEvent)
	OnFallback     func(context.Context, *TransitionEvent)
	OnConflict     func(context.Context, SessionKey)
}

// Outcome classifies what Handle did with an inbound event.
type Outcome string

const (
	OutcomeStarted    Outcome = "started"    // A trigger matched and a session was created
	OutcomeAdvanced   Outcome = "advanced"   // An active session moved or replied
	OutcomeCompleted  Outcome = "completed"  // The flow reached an end action
	OutcomeFallback   Outcome = "fallback"   // The flow gave up
	OutcomeNoMatch    Outcome = "no_match"   // No session and no trigger matched
	OutcomeDuplicate  Outcome = "duplicate"  // The event id was already applied
	OutcomeStale      Outcome = "stale"      // A selection from an older menu
	OutcomeSuperseded Outcome = "superseded" // Another instance advanced the session first
)

// Result is returned to the webhook layer for every handled event.
type Result struct {
	Outcome      Outcome           `json:"outcome"`
	SessionID    string            `json:"session_id,omitempty"`
	AutomationID string            `json:"automation_id,omitempty"`
	MenuID       string            `json:"menu_id,omitempty"`
	Reason       FallbackReason    `json:"reason,omitempty"`
	Messages     []OutboundMessage `json:"messages,omitempty"`
}
