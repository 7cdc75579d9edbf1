package render

import "github.com/aretw0/menuflow/pkg/domain"

// Capabilities describes what a channel can display.
type Capabilities struct {
	Channel domain.Channel

	MaxButtons     int
	MaxButtonTitle int

	SupportsList       bool
	MaxListRows        int
	MaxRowTitle        int
	MaxRowDescription  int
	MaxSectionTitle    int
	MaxListButtonLabel int

	MaxBody       int
	MaxFooter     int
	MaxHeaderText int
	HeaderTypes   []domain.HeaderType
}

// SupportsHeader reports whether t can be shown as a header.
func (c Capabilities) SupportsHeader(t domain.HeaderType) bool {
	for _, h := range c.HeaderTypes {
		if h == t {
			return true
		}
	}
	return false
}

var allHeaders = []domain.HeaderType{domain.HeaderText, domain.HeaderImage, domain.HeaderVideo, domain.HeaderDocument}

// CapabilitiesFor returns the limits of a channel. Unknown channels get the
// most conservative profile.
func CapabilitiesFor(ch domain.Channel) Capabilities {
	switch ch {
	case domain.ChannelWhatsApp:
		return Capabilities{
			Channel:            ch,
			MaxButtons:         3,
			MaxButtonTitle:     20,
			SupportsList:       true,
			MaxListRows:        10,
			MaxRowTitle:        24,
			MaxRowDescription:  72,
			MaxSectionTitle:    24,
			MaxListButtonLabel: 20,
			MaxBody:            1024,
			MaxFooter:          60,
			MaxHeaderText:      60,
			HeaderTypes:        allHeaders,
		}
	case domain.ChannelMessenger, domain.ChannelInstagram:
		// Quick replies; no list template and no media headers.
		return Capabilities{
			Channel:        ch,
			MaxButtons:     13,
			MaxButtonTitle: 20,
			MaxBody:        1000,
		}
	case domain.ChannelWebsite:
		return Capabilities{
			Channel:            ch,
			MaxButtons:         10,
			MaxButtonTitle:     40,
			SupportsList:       true,
			MaxListRows:        50,
			MaxRowTitle:        60,
			MaxRowDescription:  120,
			MaxSectionTitle:    60,
			MaxListButtonLabel: 40,
			MaxBody:            4096,
			MaxFooter:          200,
			MaxHeaderText:      120,
			HeaderTypes:        allHeaders,
		}
	default:
		return Capabilities{
			Channel:        ch,
			MaxButtons:     3,
			MaxButtonTitle: 20,
			MaxBody:        1000,
		}
	}
}
