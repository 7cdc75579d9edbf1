package domain

import (
	"time"
)

// SessionStatus describes the lifecycle of a Session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"    // Customer is inside a flow
	StatusCompleted SessionStatus = "completed" // Flow reached an end action
	StatusFallback  SessionStatus = "fallback"  // Flow gave up; AI or a human takes over
)

// Terminal reports whether the status destroys the session.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFallback
}

// SessionKey addresses the single session a customer may have on a channel
// of an organization.
type SessionKey struct {
	OrganizationID  string  `json:"organization_id"`
	Channel         Channel `json:"channel"`
	CustomerAddress string  `json:"customer_address"`
}

// String returns the canonical storage key.
func (k SessionKey) String() string {
	return k.OrganizationID + ":" + string(k.Channel) + ":" + k.CustomerAddress
}

// Valid reports whether every component of the key is set.
func (k SessionKey) Valid() bool {
	return k.OrganizationID != "" && k.Channel != "" && k.CustomerAddress != ""
}

// Session is the per-customer conversational state.
type Session struct {
	ID           string            `json:"id"`
	AutomationID string            `json:"automation_id"`
	Key          SessionKey        `json:"key"`
	MenuID       string            `json:"menu_id"`
	Variables    map[string]string `json:"variables"`

	// Attempts counts consecutive inputs that resolved to no option.
	Attempts int `json:"attempts"`

	// LastEventID is the provider id of the last applied inbound event.
	LastEventID string `json:"last_event_id,omitempty"`

	// Version is the compare-and-swap token. Zero means "not stored".
	Version uint64 `json:"version"`

	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// NewSession creates an active session positioned at menuID.
func NewSession(id string, key SessionKey, automationID, menuID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:           id,
		AutomationID: automationID,
		Key:          key,
		MenuID:       menuID,
		Variables:    make(map[string]string),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// Expired is the single staleness rule shared by every store: a session
// whose expiry instant is not after now is gone.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	next := *s
	next.Variables = make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		next.Variables[k] = v
	}
	return &next
}

// Touch slides the expiry window.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}
