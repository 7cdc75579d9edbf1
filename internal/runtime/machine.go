package runtime

import (
	"strings"
	"time"

	"github.com/aretw0/menuflow/internal/render"
	"github.com/aretw0/menuflow/pkg/domain"
)

// Enter starts a session at menuID and shows that menu.
func Enter(a *domain.Automation, key domain.SessionKey, sessionID, menuID string, now time.Time) Step {
	sess := domain.NewSession(sessionID, key, a.ID, menuID, now, a.Settings.SessionTTL())
	step := Step{Session: sess, Status: domain.StatusActive}

	menu, ok := a.Menu(menuID)
	if !ok {
		return step.fail(a, domain.ReasonInvalidTransition, now)
	}
	step.emitMenu(menu)
	return step
}

// Advance applies one input to an active session.
// The input session is never mutated.
func Advance(a *domain.Automation, s *domain.Session, in Input, now time.Time) Step {
	step := Step{
		Session:    s.Clone(),
		Status:     domain.StatusActive,
		FromMenuID: s.MenuID,
	}

	menu, ok := a.Menu(s.MenuID)
	if !ok {
		// The menu was edited away mid-conversation.
		return step.fail(a, domain.ReasonInvalidTransition, now)
	}

	if in.Kind == domain.InputText && isCancel(a.Settings.CancelKeywords, in.Text) {
		return step.complete(now)
	}

	if in.Kind == domain.InputButtonClick {
		if menuID, _ := render.ParseSelection(in.SelectionID); menuID != "" && menuID != menu.ID {
			step.Stale = true
			return step
		}
	}

	if menu.IsFreeText() {
		key := menu.CaptureKey()
		capture(step.Session.Variables, key, in)
		step.Session.Attempts = 0
		step.Captured = key
		if menu.Next == nil {
			return step.complete(now)
		}
		return step.dispatch(a, menu.Next, now)
	}

	if opt, ok := resolveOption(menu, in); ok {
		step.Session.Attempts = 0
		return step.dispatch(a, opt.Action, now)
	}
	return step.unknown(a, menu, now)
}

func (s Step) dispatch(a *domain.Automation, act domain.Action, now time.Time) Step {
	switch v := act.(type) {
	case domain.ShowMenu:
		target, ok := a.Menu(v.MenuID)
		if !ok {
			return s.fail(a, domain.ReasonInvalidTransition, now)
		}
		s.Session.MenuID = target.ID
		s.emitMenu(target)
		return s.stay(a, now)
	case domain.SendMessage:
		s.emitMessage(v)
		if v.End {
			return s.complete(now)
		}
		return s.stay(a, now)
	case domain.FallbackAI:
		return s.fail(a, domain.ReasonFallbackAction, now)
	case domain.End:
		s.emitText(v.Text)
		return s.complete(now)
	default:
		return s.complete(now)
	}
}

func (s Step) unknown(a *domain.Automation, menu *domain.Menu, now time.Time) Step {
	settings := a.Settings
	if settings.UnknownInput() == domain.FallbackToAIPolicy {
		return s.fail(a, domain.ReasonUnknownInput, now)
	}

	s.Session.Attempts++
	if s.Session.Attempts >= settings.AttemptCap() {
		return s.fail(a, domain.ReasonAttemptsExhausted, now)
	}
	s.emitText(settings.FallbackMessage)
	s.emitMenu(menu)
	return s.stay(a, now)
}

func (s Step) stay(a *domain.Automation, now time.Time) Step {
	s.Status = domain.StatusActive
	s.Session.Status = domain.StatusActive
	s.Session.Touch(now, a.Settings.SessionTTL())
	return s
}

func (s Step) complete(now time.Time) Step {
	s.Status = domain.StatusCompleted
	s.Session.Status = domain.StatusCompleted
	s.Session.UpdatedAt = now
	return s
}

// fail ends the flow in the fallback state. The customer hears the generic
// fallback message unless they asked for the assistant themselves.
func (s Step) fail(a *domain.Automation, reason domain.FallbackReason, now time.Time) Step {
	s.Status = domain.StatusFallback
	s.Reason = reason
	s.Session.Status = domain.StatusFallback
	s.Session.UpdatedAt = now
	if reason != domain.ReasonFallbackAction {
		s.Emissions = nil
		s.emitText(a.Settings.FallbackText())
	}
	return s
}

// Fallback converts a step into a fallback with reason, keeping the
// session it carried. Used when a later stage (rendering) gives up.
func Fallback(a *domain.Automation, step Step, reason domain.FallbackReason, now time.Time) Step {
	step.Emissions = nil
	return step.fail(a, reason, now)
}

func isCancel(keywords []string, text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
