package render_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/menuflow/internal/render"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuWith(typ domain.MenuType, n int) *domain.Menu {
	m := &domain.Menu{ID: "M1", Name: "Main", Type: typ, Body: "Pick one"}
	for i := 1; i <= n; i++ {
		m.Options = append(m.Options, domain.Option{
			ID:     fmt.Sprintf("o%d", i),
			Title:  fmt.Sprintf("Option %d", i),
			Action: domain.End{},
		})
	}
	return m
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Today", 20, "Today"},
		{"exactly-twenty-chars", 20, "exactly-twenty-chars"},
		{"twenty-one-characters", 20, "twenty-one-characte…"},
		{"Horário de atendimento", 10, "Horário d…"},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, render.Truncate(tt.in, tt.max), tt.in)
	}
}

func TestRender_ButtonCapBoundary(t *testing.T) {
	wa := render.CapabilitiesFor(domain.ChannelWhatsApp)

	msg, err := render.Render(menuWith(domain.MenuButtons, 3), wa)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboundButtons, msg.Type)
	assert.Len(t, msg.Buttons, 3)

	msg, err = render.Render(menuWith(domain.MenuButtons, 4), wa)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboundList, msg.Type, "max+1 demotes to a list")
	require.Len(t, msg.Sections, 1)
	assert.Len(t, msg.Sections[0].Rows, 4, "no option is dropped")
}

func TestRender_Overflow(t *testing.T) {
	_, err := render.Render(menuWith(domain.MenuButtons, 11), render.CapabilitiesFor(domain.ChannelWhatsApp))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRenderOverflow)

	var rerr *domain.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "M1", rerr.MenuID)
	assert.Equal(t, 11, rerr.Options)

	_, err = render.Render(menuWith(domain.MenuList, 14), render.CapabilitiesFor(domain.ChannelMessenger))
	assert.ErrorIs(t, err, domain.ErrRenderOverflow)
}

func TestRender_ListDemotesToButtonsWithoutListSupport(t *testing.T) {
	msg, err := render.Render(menuWith(domain.MenuList, 5), render.CapabilitiesFor(domain.ChannelInstagram))
	require.NoError(t, err)
	assert.Equal(t, domain.OutboundButtons, msg.Type)
	assert.Len(t, msg.Buttons, 5)
}

func TestRender_ListTitlesAndLabel(t *testing.T) {
	m := menuWith(domain.MenuList, 2)
	m.Options[0].Title = "A very long list row title here"
	m.Options[0].Description = "short"

	msg, err := render.Render(m, render.CapabilitiesFor(domain.ChannelWhatsApp))
	require.NoError(t, err)
	assert.Equal(t, "Options", msg.ButtonLabel)
	row := msg.Sections[0].Rows[0]
	assert.Equal(t, "A very long list row ti…", row.Title)
	assert.Equal(t, "short", row.Description)
	assert.Equal(t, "M1::o1", row.ID)
}

func TestRender_SelectionRoundTrip(t *testing.T) {
	m := menuWith(domain.MenuButtons, 3)
	msg, err := render.Render(m, render.CapabilitiesFor(domain.ChannelWhatsApp))
	require.NoError(t, err)

	for i, b := range msg.Buttons {
		menuID, optionID := render.ParseSelection(b.ID)
		assert.Equal(t, m.ID, menuID)
		opt, ok := m.Option(optionID)
		require.True(t, ok)
		assert.Equal(t, &m.Options[i], opt)
	}

	menuID, optionID := render.ParseSelection("bare")
	assert.Empty(t, menuID)
	assert.Equal(t, "bare", optionID)
}

func TestRender_TextMenu(t *testing.T) {
	m := menuWith(domain.MenuText, 2)
	m.Header = &domain.Header{Type: domain.HeaderText, Text: "Welcome"}
	m.Footer = "Reply with a number"

	msg, err := render.Render(m, render.CapabilitiesFor(domain.ChannelWebsite))
	require.NoError(t, err)
	assert.Equal(t, domain.OutboundText, msg.Type)
	assert.Equal(t, "Welcome\n\nPick one\n1. Option 1\n2. Option 2\n\nReply with a number", msg.Text)
}

func TestRender_Headers(t *testing.T) {
	m := menuWith(domain.MenuButtons, 2)
	m.Header = &domain.Header{Type: domain.HeaderImage, URL: "https://cdn/x.png"}

	msg, err := render.Render(m, render.CapabilitiesFor(domain.ChannelWhatsApp))
	require.NoError(t, err)
	require.NotNil(t, msg.Header)
	assert.Equal(t, domain.HeaderImage, msg.Header.Type)

	msg, err = render.Render(m, render.CapabilitiesFor(domain.ChannelMessenger))
	require.NoError(t, err)
	assert.Nil(t, msg.Header, "unsupported media headers are dropped")
	assert.Len(t, msg.Buttons, 2)

	m.Header = &domain.Header{Type: domain.HeaderText, Text: "Hi"}
	msg, err = render.Render(m, render.CapabilitiesFor(domain.ChannelMessenger))
	require.NoError(t, err)
	assert.Equal(t, "Hi\n\nPick one", msg.Body)
}

func TestMessage(t *testing.T) {
	wa := render.CapabilitiesFor(domain.ChannelWhatsApp)

	assert.Equal(t, domain.OutboundMessage{Type: domain.OutboundText, Text: "We're open 9-5"},
		render.Message(domain.SendMessage{Text: "We're open 9-5"}, wa))

	media := render.Message(domain.SendMessage{
		Text:  "Our menu",
		Media: &domain.Media{Type: domain.MediaDocument, URL: "https://cdn/menu.pdf"},
	}, wa)
	assert.Equal(t, domain.OutboundMedia, media.Type)
	assert.Equal(t, domain.MediaDocument, media.MediaType)
	assert.Equal(t, "Our menu", media.Caption)
}
