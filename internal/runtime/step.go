// Package runtime is the menu state machine: given an automation, the
// current session and one customer input it computes the next session and
// what to say. It performs no I/O.
package runtime

import (
	"github.com/aretw0/menuflow/pkg/domain"
)

// Input is one customer message as seen by the machine.
type Input struct {
	Kind        domain.InputKind
	Text        string
	SelectionID string
	Media       *domain.Media
}

// InputFrom extracts machine input from an event.
func InputFrom(ev domain.InboundEvent) Input {
	return Input{Kind: ev.Kind, Text: ev.Text, SelectionID: ev.SelectionID, Media: ev.Media}
}

// Emission is one thing to say. Exactly one field is set.
type Emission struct {
	Menu    *domain.Menu
	Message *domain.SendMessage
	Text    string
}

// Step is the outcome of one transition.
type Step struct {
	// Session is the next state. For terminal steps it carries the final
	// variables and the menu where the flow stopped; the caller deletes it.
	Session *domain.Session

	Status    domain.SessionStatus
	Reason    domain.FallbackReason
	Emissions []Emission

	FromMenuID string

	// Stale marks a selection from an older message: nothing changes and
	// nothing is said.
	Stale bool

	// Captured names the variable written by a free-text menu, if any.
	Captured string
}

// Terminal reports whether the step ends the session.
func (s Step) Terminal() bool {
	return s.Status.Terminal()
}

func (s *Step) emitMenu(m *domain.Menu) {
	s.Emissions = append(s.Emissions, Emission{Menu: m})
}

func (s *Step) emitMessage(m domain.SendMessage) {
	s.Emissions = append(s.Emissions, Emission{Message: &m})
}

func (s *Step) emitText(text string) {
	if text != "" {
		s.Emissions = append(s.Emissions, Emission{Text: text})
	}
}
