package domain

import "time"

// Channel identifies a messaging surface.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelWebsite   Channel = "website"
	ChannelMessenger Channel = "messenger"
	ChannelInstagram Channel = "instagram"
)

// InputKind describes what the customer sent.
type InputKind string

const (
	InputText        InputKind = "text"
	InputButtonClick InputKind = "button_click"
	InputMedia       InputKind = "media"
)

// MediaType is the kind of an attachment.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
)

// Media is an attachment reference.
type Media struct {
	Type    MediaType `json:"type" yaml:"type" mapstructure:"type"`
	URL     string    `json:"url" yaml:"url" mapstructure:"url"`
	Caption string    `json:"caption,omitempty" yaml:"caption,omitempty" mapstructure:"caption"`
}

// InboundEvent is one customer message delivered by a channel webhook.
type InboundEvent struct {
	// ID is the provider message id, used to drop redelivered events.
	ID string `json:"id,omitempty" mapstructure:"id"`

	OrganizationID string  `json:"organization_id" mapstructure:"organization_id"`
	Channel        Channel `json:"channel" mapstructure:"channel"`

	// ChannelIdentity is the business-side identity that received the
	// message, e.g. a WhatsApp phone number id.
	ChannelIdentity string `json:"channel_identity,omitempty" mapstructure:"channel_identity"`

	CustomerAddress string    `json:"customer_address" mapstructure:"customer_address"`
	Kind            InputKind `json:"kind" mapstructure:"kind"`

	Text        string `json:"text,omitempty" mapstructure:"text"`
	SelectionID string `json:"selection_id,omitempty" mapstructure:"selection_id"`
	Media       *Media `json:"media,omitempty" mapstructure:"media"`

	ReceivedAt time.Time `json:"received_at,omitempty" mapstructure:"received_at"`
}

// Key returns the session key the event belongs to.
func (e InboundEvent) Key() SessionKey {
	return SessionKey{
		OrganizationID:  e.OrganizationID,
		Channel:         e.Channel,
		CustomerAddress: e.CustomerAddress,
	}
}

// OutboundType is the shape of an outbound message.
type OutboundType string

const (
	OutboundText    OutboundType = "text"
	OutboundButtons OutboundType = "buttons"
	OutboundList    OutboundType = "list"
	OutboundMedia   OutboundType = "media"
)

// Button is one interactive reply button.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Row is one selectable entry of a list section.
type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Section groups list rows.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// OutboundMessage is a channel-neutral payload handed to a channel sender.
type OutboundMessage struct {
	Type OutboundType `json:"type"`

	// Text carries the full body of a text message.
	Text string `json:"text,omitempty"`

	Header *Header `json:"header,omitempty"`
	Body   string  `json:"body,omitempty"`
	Footer string  `json:"footer,omitempty"`

	Buttons     []Button  `json:"buttons,omitempty"`
	ButtonLabel string    `json:"button_label,omitempty"`
	Sections    []Section `json:"sections,omitempty"`

	MediaType MediaType `json:"media_type,omitempty"`
	URL       string    `json:"url,omitempty"`
	Caption   string    `json:"caption,omitempty"`
}

// Preview returns a short human-readable rendition used for turn logs.
func (m OutboundMessage) Preview() string {
	switch m.Type {
	case OutboundText:
		return m.Text
	case OutboundMedia:
		if m.Caption != "" {
			return m.Caption
		}
		return "[" + string(m.MediaType) + "]"
	default:
		return m.Body
	}
}

// Recipient addresses an outbound message.
type Recipient struct {
	OrganizationID  string  `json:"organization_id"`
	Channel         Channel `json:"channel"`
	ChannelIdentity string  `json:"channel_identity,omitempty"`
	Address         string  `json:"address"`
}

// Recipient returns who a reply to this event goes to.
func (e InboundEvent) Recipient() Recipient {
	return Recipient{
		OrganizationID:  e.OrganizationID,
		Channel:         e.Channel,
		ChannelIdentity: e.ChannelIdentity,
		Address:         e.CustomerAddress,
	}
}
