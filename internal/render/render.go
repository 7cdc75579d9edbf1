// Package render turns menus and actions into channel-neutral outbound
// messages that respect a channel's limits. Every function is pure.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/menuflow/pkg/domain"
)

const (
	ellipsis           = "…"
	selectionSeparator = "::"
	defaultListLabel   = "Options"
)

// Truncate cuts s to at most max runes, replacing the tail with an ellipsis.
// A non-positive max leaves s untouched.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}

// SelectionID is the payload id of an option rendered as a button or row.
func SelectionID(menuID, optionID string) string {
	return menuID + selectionSeparator + optionID
}

// ParseSelection splits a payload id. Bare option ids come back with an
// empty menuID.
func ParseSelection(id string) (menuID, optionID string) {
	if m, o, ok := strings.Cut(id, selectionSeparator); ok {
		return m, o
	}
	return "", id
}

// Render builds the tightest legal representation of menu on a channel.
// Options are never dropped: a menu that fits neither buttons nor a list
// fails with a *domain.RenderError.
func Render(menu *domain.Menu, caps Capabilities) (domain.OutboundMessage, error) {
	n := len(menu.Options)
	if menu.Type == domain.MenuText || n == 0 {
		return renderText(menu, caps), nil
	}

	fitsButtons := n <= caps.MaxButtons
	fitsList := caps.SupportsList && n <= caps.MaxListRows

	switch {
	case menu.Type == domain.MenuButtons && fitsButtons:
		return renderButtons(menu, caps), nil
	case menu.Type == domain.MenuButtons && fitsList:
		return renderList(menu, caps), nil
	case menu.Type == domain.MenuList && fitsList:
		return renderList(menu, caps), nil
	case menu.Type == domain.MenuList && fitsButtons:
		return renderButtons(menu, caps), nil
	}

	return domain.OutboundMessage{}, &domain.RenderError{
		MenuID:  menu.ID,
		Channel: caps.Channel,
		Options: n,
		Reason:  overflowReason(caps),
	}
}

func overflowReason(caps Capabilities) string {
	if caps.SupportsList {
		return fmt.Sprintf("exceeds %d buttons and %d list rows", caps.MaxButtons, caps.MaxListRows)
	}
	return fmt.Sprintf("exceeds %d buttons and the channel has no lists", caps.MaxButtons)
}

// frame fills header, body and footer. Unsupported text headers are folded
// into the body; unsupported media headers are dropped.
func frame(menu *domain.Menu, caps Capabilities) domain.OutboundMessage {
	msg := domain.OutboundMessage{
		Body:   menu.Body,
		Footer: Truncate(menu.Footer, caps.MaxFooter),
	}
	if h := menu.Header; h != nil {
		switch {
		case caps.SupportsHeader(h.Type):
			header := *h
			header.Text = Truncate(header.Text, caps.MaxHeaderText)
			msg.Header = &header
		case h.Type == domain.HeaderText && h.Text != "":
			msg.Body = h.Text + "\n\n" + msg.Body
		}
	}
	msg.Body = Truncate(msg.Body, caps.MaxBody)
	return msg
}

func renderButtons(menu *domain.Menu, caps Capabilities) domain.OutboundMessage {
	msg := frame(menu, caps)
	msg.Type = domain.OutboundButtons
	msg.Buttons = make([]domain.Button, 0, len(menu.Options))
	for _, o := range menu.Options {
		msg.Buttons = append(msg.Buttons, domain.Button{
			ID:    SelectionID(menu.ID, o.ID),
			Title: Truncate(o.Title, caps.MaxButtonTitle),
		})
	}
	return msg
}

func renderList(menu *domain.Menu, caps Capabilities) domain.OutboundMessage {
	msg := frame(menu, caps)
	msg.Type = domain.OutboundList

	label := menu.ButtonLabel
	if label == "" {
		label = defaultListLabel
	}
	msg.ButtonLabel = Truncate(label, caps.MaxListButtonLabel)

	rows := make([]domain.Row, 0, len(menu.Options))
	for _, o := range menu.Options {
		rows = append(rows, domain.Row{
			ID:          SelectionID(menu.ID, o.ID),
			Title:       Truncate(o.Title, caps.MaxRowTitle),
			Description: Truncate(o.Description, caps.MaxRowDescription),
		})
	}
	msg.Sections = []domain.Section{{
		Title: Truncate(menu.Name, caps.MaxSectionTitle),
		Rows:  rows,
	}}
	return msg
}

// renderText lists options as numbered lines; customers answer with the
// number, the option id or its title.
func renderText(menu *domain.Menu, caps Capabilities) domain.OutboundMessage {
	var b strings.Builder
	if h := menu.Header; h != nil && h.Type == domain.HeaderText && h.Text != "" {
		b.WriteString(h.Text)
		b.WriteString("\n\n")
	}
	b.WriteString(menu.Body)
	for i, o := range menu.Options {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(o.Title)
	}
	if menu.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(menu.Footer)
	}
	return Text(b.String(), caps)
}

// Text renders a plain text message.
func Text(text string, caps Capabilities) domain.OutboundMessage {
	return domain.OutboundMessage{Type: domain.OutboundText, Text: Truncate(text, caps.MaxBody)}
}

// Message renders a send_message action. Attached media become a media
// message with the text as caption, whatever the enclosing menu looks like.
func Message(act domain.SendMessage, caps Capabilities) domain.OutboundMessage {
	if act.Media == nil {
		return Text(act.Text, caps)
	}
	caption := act.Media.Caption
	if caption == "" {
		caption = act.Text
	}
	return domain.OutboundMessage{
		Type:      domain.OutboundMedia,
		MediaType: act.Media.Type,
		URL:       act.Media.URL,
		Caption:   Truncate(caption, caps.MaxBody),
	}
}
