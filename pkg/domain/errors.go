package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when no live session exists for a key.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionConflict is returned when a compare-and-swap loses a race.
var ErrSessionConflict = errors.New("session conflict")

// ErrConfigNotFound is returned when no automation exists for a scope or id.
var ErrConfigNotFound = errors.New("automation not found")

// ErrInvalidTransition is returned when a session points at a menu that no
// longer exists, or an action targets a missing menu.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrRenderOverflow is returned when a menu violates a channel capability
// and cannot be demoted.
var ErrRenderOverflow = errors.New("render overflow")

// ErrStoreTimeout is returned when the session or config store did not
// answer in time. Callers should retry.
var ErrStoreTimeout = errors.New("store timeout")

// ErrInvalidEvent is returned for inbound events missing required fields.
var ErrInvalidEvent = errors.New("invalid inbound event")

// RenderError carries the details of a RenderOverflow.
type RenderError struct {
	MenuID  string
	Channel Channel
	Options int
	Reason  string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("menu %q on %s: %s (%d options)", e.MenuID, e.Channel, e.Reason, e.Options)
}

func (e *RenderError) Unwrap() error { return ErrRenderOverflow }
