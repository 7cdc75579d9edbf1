package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single automation validation failure.
type ValidationError struct {
	Path   string // e.g. menus[main].options[2]
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

// Validate checks the referential integrity of an automation: every trigger,
// option and next action must point at an existing menu, ids must be unique
// and enumerations must hold known values.
func Validate(a *Automation) error {
	var errs []error
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)})
	}

	if a.ID == "" {
		add("id", "required")
	}
	if a.OrganizationID == "" {
		add("organization_id", "required")
	}

	menus := make(map[string]bool, len(a.Menus))
	for i, m := range a.Menus {
		path := fmt.Sprintf("menus[%d]", i)
		if m.ID == "" {
			add(path+".id", "required")
			continue
		}
		if menus[m.ID] {
			add(path+".id", "duplicate menu id %q", m.ID)
		}
		menus[m.ID] = true
	}

	checkAction := func(path string, act Action) {
		switch v := act.(type) {
		case nil:
			add(path, "action required")
		case ShowMenu:
			if !menus[v.MenuID] {
				add(path, "unknown menu %q", v.MenuID)
			}
		case SendMessage:
			if v.Text == "" && v.Media == nil {
				add(path, "send_message requires text or media")
			}
		case FallbackAI, End:
		}
	}

	for i, t := range a.Triggers {
		path := fmt.Sprintf("triggers[%d]", i)
		switch t.Type {
		case TriggerKeyword:
			if len(t.Keywords) == 0 {
				add(path+".keywords", "keyword trigger requires at least one keyword")
			}
		case TriggerButtonClick:
			if t.PayloadID == "" {
				add(path+".payload_id", "button_click trigger requires payload_id")
			}
		case TriggerFirstMessage:
		default:
			add(path+".type", "unknown trigger type %q", t.Type)
		}
		if !menus[t.MenuID] {
			add(path+".menu_id", "unknown menu %q", t.MenuID)
		}
	}

	for _, m := range a.Menus {
		path := fmt.Sprintf("menus[%s]", m.ID)
		switch m.Type {
		case MenuText, MenuButtons, MenuList:
		default:
			add(path+".type", "unknown menu type %q", m.Type)
		}
		if strings.TrimSpace(m.Body) == "" {
			add(path+".body", "required")
		}
		if m.Header != nil {
			switch m.Header.Type {
			case HeaderText:
				if m.Header.Text == "" {
					add(path+".header.text", "text header requires text")
				}
			case HeaderImage, HeaderVideo, HeaderDocument:
				if m.Header.URL == "" {
					add(path+".header.url", "media header requires url")
				}
			default:
				add(path+".header.type", "unknown header type %q", m.Header.Type)
			}
		}
		if (m.Type == MenuButtons || m.Type == MenuList) && len(m.Options) == 0 {
			add(path+".options", "%s menu requires options", m.Type)
		}
		seen := make(map[string]bool, len(m.Options))
		for j, o := range m.Options {
			opath := fmt.Sprintf("%s.options[%d]", path, j)
			if o.ID == "" {
				add(opath+".id", "required")
			} else if seen[o.ID] {
				add(opath+".id", "duplicate option id %q", o.ID)
			}
			seen[o.ID] = true
			if o.Title == "" {
				add(opath+".title", "required")
			}
			checkAction(opath+".action", o.Action)
		}
		if m.Next != nil {
			checkAction(path+".next", m.Next)
		}
	}

	s := a.Settings
	if s.WelcomeOnFirstContact && !menus[s.WelcomeMenuID] {
		add("settings.welcome_menu_id", "unknown menu %q", s.WelcomeMenuID)
	}
	switch s.UnknownInputBehavior {
	case "", RepeatMenu, FallbackToAIPolicy:
	default:
		add("settings.unknown_input_behavior", "unknown policy %q", s.UnknownInputBehavior)
	}
	switch s.Escalation {
	case "", EscalateToAI, EscalateToHuman:
	default:
		add("settings.escalation", "unknown target %q", s.Escalation)
	}
	if s.SessionTTLMinutes < 0 {
		add("settings.session_ttl_minutes", "must not be negative")
	}
	if s.MaxUnresolvedAttempts < 0 {
		add("settings.max_unresolved_attempts", "must not be negative")
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
