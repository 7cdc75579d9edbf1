package domain

import (
	"strings"
	"time"
)

// TriggerType defines how an inbound signal selects an entry menu.
type TriggerType string

const (
	TriggerKeyword      TriggerType = "keyword"
	TriggerFirstMessage TriggerType = "first_message"
	TriggerButtonClick  TriggerType = "button_click"
)

// MenuType defines how a menu is presented.
type MenuType string

const (
	MenuText    MenuType = "text"
	MenuButtons MenuType = "buttons"
	MenuList    MenuType = "list"
)

// HeaderType is the kind of header shown above a menu body.
type HeaderType string

const (
	HeaderText     HeaderType = "text"
	HeaderImage    HeaderType = "image"
	HeaderVideo    HeaderType = "video"
	HeaderDocument HeaderType = "document"
)

// UnknownInputBehavior selects what happens when input resolves to no option.
type UnknownInputBehavior string

const (
	RepeatMenu         UnknownInputBehavior = "repeat_menu"
	FallbackToAIPolicy UnknownInputBehavior = "fallback_ai"
)

// EscalationTarget selects who receives a fallback that was not explicitly
// requested by a fallback_ai option.
type EscalationTarget string

const (
	EscalateToAI    EscalationTarget = "ai"
	EscalateToHuman EscalationTarget = "human"
)

// Defaults applied when Settings leave a field empty.
const (
	DefaultSessionTTL            = 30 * time.Minute
	DefaultMaxUnresolvedAttempts = 3
	DefaultFallbackMessage       = "Sorry, I couldn't understand that. Let me get someone to help you."
)

// Automation is one configuration unit of an organization.
type Automation struct {
	ID             string   `json:"id" yaml:"id" mapstructure:"id"`
	OrganizationID string   `json:"organization_id" yaml:"organization_id" mapstructure:"organization_id"`
	Channels       []string `json:"channels,omitempty" yaml:"channels,omitempty" mapstructure:"channels"`
	Name           string   `json:"name" yaml:"name" mapstructure:"name"`
	Active         bool     `json:"active" yaml:"active" mapstructure:"active"`

	// Priority orders evaluation; lower values are evaluated first.
	// Ties are broken by ID.
	Priority int `json:"priority" yaml:"priority" mapstructure:"priority"`

	Triggers []Trigger `json:"triggers" yaml:"triggers" mapstructure:"triggers"`
	Menus    []Menu    `json:"menus" yaml:"menus" mapstructure:"menus"`
	Settings Settings  `json:"settings" yaml:"settings" mapstructure:"settings"`
}

// Menu returns the menu with the given id.
func (a *Automation) Menu(id string) (*Menu, bool) {
	for i := range a.Menus {
		if a.Menus[i].ID == id {
			return &a.Menus[i], true
		}
	}
	return nil, false
}

// HasMenu reports whether id names a menu of this automation.
func (a *Automation) HasMenu(id string) bool {
	_, ok := a.Menu(id)
	return ok
}

// Covers reports whether the automation is scoped to the given channel.
// An empty scope covers every channel of the organization. Scope entries
// are either a channel name ("whatsapp") or a channel identity
// ("whatsapp:+15550001").
func (a *Automation) Covers(channel Channel, identity string) bool {
	if len(a.Channels) == 0 {
		return true
	}
	qualified := string(channel) + ":" + identity
	for _, scope := range a.Channels {
		if scope == string(channel) || (identity != "" && scope == qualified) {
			return true
		}
	}
	return false
}

// Trigger maps an inbound signal to an entry menu.
type Trigger struct {
	Type          TriggerType `json:"type" yaml:"type" mapstructure:"type"`
	Keywords      []string    `json:"keywords,omitempty" yaml:"keywords,omitempty" mapstructure:"keywords"`
	CaseSensitive bool        `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty" mapstructure:"case_sensitive"`
	PayloadID     string      `json:"payload_id,omitempty" yaml:"payload_id,omitempty" mapstructure:"payload_id"`
	MenuID        string      `json:"menu_id" yaml:"menu_id" mapstructure:"menu_id"`
}

// Header is an optional decoration above the menu body.
type Header struct {
	Type HeaderType `json:"type" yaml:"type" mapstructure:"type"`
	Text string     `json:"text,omitempty" yaml:"text,omitempty" mapstructure:"text"`
	URL  string     `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
}

// Menu is one conversational state.
type Menu struct {
	ID     string   `json:"id" yaml:"id" mapstructure:"id"`
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Type   MenuType `json:"type" yaml:"type" mapstructure:"type"`
	Header *Header  `json:"header,omitempty" yaml:"header,omitempty" mapstructure:"header"`
	Body   string   `json:"body" yaml:"body" mapstructure:"body"`
	Footer string   `json:"footer,omitempty" yaml:"footer,omitempty" mapstructure:"footer"`

	// ButtonLabel is the label of the control that opens a list.
	ButtonLabel string `json:"button_label,omitempty" yaml:"button_label,omitempty" mapstructure:"button_label"`

	Options []Option `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`

	// Variable is the capture key for free-text menus. Defaults to the menu ID.
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty" mapstructure:"variable"`

	// Next is dispatched after a free-text capture.
	Next Action `json:"-" yaml:"-" mapstructure:"next"`
}

// IsFreeText reports whether the menu captures whatever the customer types.
func (m *Menu) IsFreeText() bool {
	return m.Type == MenuText && len(m.Options) == 0
}

// CaptureKey returns the variable name used for free-text capture.
func (m *Menu) CaptureKey() string {
	if m.Variable != "" {
		return m.Variable
	}
	return m.ID
}

// Option returns the option with the given id.
func (m *Menu) Option(id string) (*Option, bool) {
	for i := range m.Options {
		if m.Options[i].ID == id {
			return &m.Options[i], true
		}
	}
	return nil, false
}

// Option is a selectable choice of a menu.
type Option struct {
	ID          string `json:"id" yaml:"id" mapstructure:"id"`
	Title       string `json:"title" yaml:"title" mapstructure:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Action      Action `json:"-" yaml:"-" mapstructure:"action"`
}

// Settings tune the behavior of one automation.
type Settings struct {
	WelcomeOnFirstContact bool                 `json:"welcome_on_first_contact,omitempty" yaml:"welcome_on_first_contact,omitempty" mapstructure:"welcome_on_first_contact"`
	WelcomeMenuID         string               `json:"welcome_menu_id,omitempty" yaml:"welcome_menu_id,omitempty" mapstructure:"welcome_menu_id"`
	SessionTTLMinutes     int                  `json:"session_ttl_minutes,omitempty" yaml:"session_ttl_minutes,omitempty" mapstructure:"session_ttl_minutes"`
	FallbackMessage       string               `json:"fallback_message,omitempty" yaml:"fallback_message,omitempty" mapstructure:"fallback_message"`
	UnknownInputBehavior  UnknownInputBehavior `json:"unknown_input_behavior,omitempty" yaml:"unknown_input_behavior,omitempty" mapstructure:"unknown_input_behavior"`
	MaxUnresolvedAttempts int                  `json:"max_unresolved_attempts,omitempty" yaml:"max_unresolved_attempts,omitempty" mapstructure:"max_unresolved_attempts"`
	Escalation            EscalationTarget     `json:"escalation,omitempty" yaml:"escalation,omitempty" mapstructure:"escalation"`
	CancelKeywords        []string             `json:"cancel_keywords,omitempty" yaml:"cancel_keywords,omitempty" mapstructure:"cancel_keywords"`
}

// SessionTTL returns the sliding expiry window.
func (s Settings) SessionTTL() time.Duration {
	if s.SessionTTLMinutes <= 0 {
		return DefaultSessionTTL
	}
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

// UnknownInput returns the effective unknown-input policy.
func (s Settings) UnknownInput() UnknownInputBehavior {
	if s.UnknownInputBehavior == "" {
		return RepeatMenu
	}
	return s.UnknownInputBehavior
}

// AttemptCap returns the maximum number of consecutive unresolved inputs.
func (s Settings) AttemptCap() int {
	if s.MaxUnresolvedAttempts <= 0 {
		return DefaultMaxUnresolvedAttempts
	}
	return s.MaxUnresolvedAttempts
}

// FallbackText returns the generic message shown when the flow gives up.
func (s Settings) FallbackText() string {
	if strings.TrimSpace(s.FallbackMessage) == "" {
		return DefaultFallbackMessage
	}
	return s.FallbackMessage
}

// EscalationTarget returns who receives fallbacks. When unset it follows
// the unknown-input policy: fallback_ai hands off to AI, otherwise a human.
func (s Settings) EscalationTarget() EscalationTarget {
	if s.Escalation != "" {
		return s.Escalation
	}
	if s.UnknownInput() == FallbackToAIPolicy {
		return EscalateToAI
	}
	return EscalateToHuman
}
