package domain

import (
	"encoding/json"
	"fmt"
)

// ActionType names the variants of Action.
type ActionType string

const (
	ActionShowMenu    ActionType = "show_menu"
	ActionSendMessage ActionType = "send_message"
	ActionFallbackAI  ActionType = "fallback_ai"
	ActionEnd         ActionType = "end"
)

// Action is the effect of selecting an Option.
// The set of variants is closed: ShowMenu, SendMessage, FallbackAI and End.
type Action interface {
	Type() ActionType
	isAction()
}

// ShowMenu moves the session to another menu.
type ShowMenu struct {
	MenuID string
}

// SendMessage replies with literal content and keeps the session where it is,
// unless End chains the reply to completion.
type SendMessage struct {
	Text  string
	Media *Media
	End   bool
}

// FallbackAI hands the conversation to the AI assistant.
type FallbackAI struct{}

// End completes the flow, optionally with a farewell.
type End struct {
	Text string
}

func (ShowMenu) Type() ActionType    { return ActionShowMenu }
func (SendMessage) Type() ActionType { return ActionSendMessage }
func (FallbackAI) Type() ActionType  { return ActionFallbackAI }
func (End) Type() ActionType         { return ActionEnd }

func (ShowMenu) isAction()    {}
func (SendMessage) isAction() {}
func (FallbackAI) isAction()  {}
func (End) isAction()         {}

// ActionDoc is the serialized form of an Action, shared by JSON, YAML and
// mapstructure decoding.
type ActionDoc struct {
	Type   ActionType `json:"type" yaml:"type" mapstructure:"type"`
	MenuID string     `json:"menu_id,omitempty" yaml:"menu_id,omitempty" mapstructure:"menu_id"`
	Text   string     `json:"text,omitempty" yaml:"text,omitempty" mapstructure:"text"`
	Media  *Media     `json:"media,omitempty" yaml:"media,omitempty" mapstructure:"media"`
	End    bool       `json:"end,omitempty" yaml:"end,omitempty" mapstructure:"end"`
}

// Action converts the document into its typed variant.
func (d ActionDoc) Action() (Action, error) {
	switch d.Type {
	case ActionShowMenu:
		if d.MenuID == "" {
			return nil, fmt.Errorf("show_menu action requires menu_id")
		}
		return ShowMenu{MenuID: d.MenuID}, nil
	case ActionSendMessage:
		if d.Text == "" && d.Media == nil {
			return nil, fmt.Errorf("send_message action requires text or media")
		}
		return SendMessage{Text: d.Text, Media: d.Media, End: d.End}, nil
	case ActionFallbackAI:
		return FallbackAI{}, nil
	case ActionEnd:
		return End{Text: d.Text}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", d.Type)
	}
}

// DocOf converts a typed Action into its serialized form.
// It returns nil for a nil action.
func DocOf(a Action) *ActionDoc {
	switch v := a.(type) {
	case ShowMenu:
		return &ActionDoc{Type: ActionShowMenu, MenuID: v.MenuID}
	case SendMessage:
		return &ActionDoc{Type: ActionSendMessage, Text: v.Text, Media: v.Media, End: v.End}
	case FallbackAI:
		return &ActionDoc{Type: ActionFallbackAI}
	case End:
		return &ActionDoc{Type: ActionEnd, Text: v.Text}
	default:
		return nil
	}
}

func decodeDoc(d *ActionDoc) (Action, error) {
	if d == nil {
		return nil, nil
	}
	return d.Action()
}

// MarshalJSON encodes the option with its action document.
func (o Option) MarshalJSON() ([]byte, error) {
	type alias Option
	return json.Marshal(struct {
		alias
		Action *ActionDoc `json:"action,omitempty"`
	}{alias: alias(o), Action: DocOf(o.Action)})
}

// UnmarshalJSON decodes the option and its action document.
func (o *Option) UnmarshalJSON(data []byte) error {
	type alias Option
	aux := struct {
		*alias
		Action *ActionDoc `json:"action,omitempty"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	action, err := decodeDoc(aux.Action)
	if err != nil {
		return fmt.Errorf("option %q: %w", o.ID, err)
	}
	o.Action = action
	return nil
}

// MarshalJSON encodes the menu with its implicit next action.
func (m Menu) MarshalJSON() ([]byte, error) {
	type alias Menu
	return json.Marshal(struct {
		alias
		Next *ActionDoc `json:"next,omitempty"`
	}{alias: alias(m), Next: DocOf(m.Next)})
}

// UnmarshalJSON decodes the menu and its implicit next action.
func (m *Menu) UnmarshalJSON(data []byte) error {
	type alias Menu
	aux := struct {
		*alias
		Next *ActionDoc `json:"next,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	next, err := decodeDoc(aux.Next)
	if err != nil {
		return fmt.Errorf("menu %q next: %w", m.ID, err)
	}
	m.Next = next
	return nil
}
