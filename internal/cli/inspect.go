package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/menuflow/internal/render"
	"github.com/aretw0/menuflow/pkg/adapters/file"
	"github.com/aretw0/menuflow/pkg/domain"
)

var allChannels = []domain.Channel{
	domain.ChannelWhatsApp,
	domain.ChannelMessenger,
	domain.ChannelInstagram,
	domain.ChannelWebsite,
}

// Validate loads every automation under path and writes a report to w.
// Menus that overflow a channel the automation runs on are reported as
// warnings; they fall back at runtime rather than fail to load.
func Validate(path string, w io.Writer) error {
	automations, err := file.Load(path)
	if err != nil {
		for _, e := range domain.ValidationErrors(err) {
			fmt.Fprintf(w, "  ✗ %s\n", e)
		}
		return err
	}

	warnings := 0
	for _, a := range automations {
		fmt.Fprintf(w, "%s/%s: %d menus, %d triggers\n", a.OrganizationID, a.ID, len(a.Menus), len(a.Triggers))
		for _, ch := range channelsOf(a) {
			caps := render.CapabilitiesFor(ch)
			for i := range a.Menus {
				if _, err := render.Render(&a.Menus[i], caps); err != nil {
					warnings++
					fmt.Fprintf(w, "  ! %s\n", err)
				}
			}
		}
	}
	fmt.Fprintf(w, "%d automations, %d warnings\n", len(automations), warnings)
	return nil
}

// channelsOf lists the channels an automation can receive events on.
func channelsOf(a *domain.Automation) []domain.Channel {
	var out []domain.Channel
	for _, ch := range allChannels {
		if a.Covers(ch, "") || coversAnyIdentity(a, ch) {
			out = append(out, ch)
		}
	}
	return out
}

func coversAnyIdentity(a *domain.Automation, ch domain.Channel) bool {
	prefix := string(ch) + ":"
	for _, scope := range a.Channels {
		if strings.HasPrefix(scope, prefix) {
			return true
		}
	}
	return false
}

// Preview renders one menu of an automation the way a channel would get it.
func Preview(path, automationID, menuID string, ch domain.Channel) (domain.OutboundMessage, error) {
	automations, err := file.Load(path)
	if err != nil {
		return domain.OutboundMessage{}, err
	}
	for _, a := range automations {
		if a.ID != automationID {
			continue
		}
		menu, ok := a.Menu(menuID)
		if !ok {
			return domain.OutboundMessage{}, fmt.Errorf("automation %q has no menu %q", automationID, menuID)
		}
		return render.Render(menu, render.CapabilitiesFor(ch))
	}
	return domain.OutboundMessage{}, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, automationID)
}
