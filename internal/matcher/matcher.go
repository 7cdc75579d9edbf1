// Package matcher decides which automation and entry menu a fresh
// conversation starts in.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

// Input is the part of an inbound event the matcher looks at.
type Input struct {
	Channel         domain.Channel
	ChannelIdentity string
	Kind            domain.InputKind
	Text            string
	SelectionID     string

	// FirstContact reports that the address never wrote in before.
	FirstContact bool
}

// InputFrom extracts matcher input from an event.
func InputFrom(ev domain.InboundEvent, firstContact bool) Input {
	return Input{
		Channel:         ev.Channel,
		ChannelIdentity: ev.ChannelIdentity,
		Kind:            ev.Kind,
		Text:            ev.Text,
		SelectionID:     ev.SelectionID,
		FirstContact:    firstContact,
	}
}

// Match is the winning automation and entry menu.
type Match struct {
	Automation *domain.Automation
	MenuID     string
	Trigger    domain.TriggerType
}

// SkipFunc is told about triggers ignored because their menu does not exist.
type SkipFunc func(a *domain.Automation, trigger int)

// Select scans automations in (priority, id) order and their triggers in
// declaration order. The first matching trigger wins.
func Select(automations []*domain.Automation, in Input) (Match, bool) {
	return selectWith(automations, in, nil)
}

func selectWith(automations []*domain.Automation, in Input, skip SkipFunc) (Match, bool) {
	candidates := make([]*domain.Automation, 0, len(automations))
	for _, a := range automations {
		if a != nil && a.Active && a.Covers(in.Channel, in.ChannelIdentity) {
			candidates = append(candidates, a)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, a := range candidates {
		for i, t := range a.Triggers {
			if !a.HasMenu(t.MenuID) {
				if skip != nil {
					skip(a, i)
				}
				continue
			}
			if triggerMatches(t, in) {
				return Match{Automation: a, MenuID: t.MenuID, Trigger: t.Type}, true
			}
		}
		if s := a.Settings; s.WelcomeOnFirstContact && in.FirstContact && a.HasMenu(s.WelcomeMenuID) {
			return Match{Automation: a, MenuID: s.WelcomeMenuID, Trigger: domain.TriggerFirstMessage}, true
		}
	}
	return Match{}, false
}

func triggerMatches(t domain.Trigger, in Input) bool {
	switch t.Type {
	case domain.TriggerFirstMessage:
		return in.FirstContact
	case domain.TriggerButtonClick:
		return in.Kind == domain.InputButtonClick && in.SelectionID != "" && in.SelectionID == t.PayloadID
	case domain.TriggerKeyword:
		if in.Kind != domain.InputText {
			return false
		}
		return containsKeyword(in.Text, t.Keywords, t.CaseSensitive)
	default:
		return false
	}
}

func containsKeyword(text string, keywords []string, caseSensitive bool) bool {
	if !caseSensitive {
		text = strings.ToLower(text)
	}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if !caseSensitive {
			kw = strings.ToLower(kw)
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Matcher runs Select against the configuration of an organization.
type Matcher struct {
	config   ports.ConfigReader
	contacts ports.ContactRegistry
	logger   *slog.Logger
}

type Option func(*Matcher)

// WithContactRegistry makes first-contact detection durable. Without one,
// any address without a live session counts as a first contact.
func WithContactRegistry(r ports.ContactRegistry) Option {
	return func(m *Matcher) {
		m.contacts = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

func New(config ports.ConfigReader, opts ...Option) *Matcher {
	m := &Matcher{config: config, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FirstContact reports whether the event's address is new.
// A failing registry answers false so welcome menus are not repeated.
func (m *Matcher) FirstContact(ctx context.Context, ev domain.InboundEvent) bool {
	if m.contacts == nil {
		return true
	}
	seen, err := m.contacts.SeenBefore(ctx, ev.Key())
	if err != nil {
		m.logger.Warn("contact registry unavailable", "org", ev.OrganizationID, "customer", ev.CustomerAddress, "err", err)
		return false
	}
	return !seen
}

// Match finds the entry point for an event that has no live session.
func (m *Matcher) Match(ctx context.Context, ev domain.InboundEvent) (Match, bool, error) {
	automations, err := m.config.List(ctx, ev.OrganizationID)
	if err != nil {
		if errors.Is(err, domain.ErrConfigNotFound) {
			return Match{}, false, nil
		}
		return Match{}, false, fmt.Errorf("list automations: %w", err)
	}

	in := InputFrom(ev, m.FirstContact(ctx, ev))
	match, ok := selectWith(automations, in, func(a *domain.Automation, i int) {
		m.logger.Warn("skipping trigger with unknown menu",
			"org", a.OrganizationID,
			"automation_id", a.ID,
			"trigger", i,
			"menu_id", a.Triggers[i].MenuID,
		)
	})
	return match, ok, nil
}
