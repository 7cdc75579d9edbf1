package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
)

// DefaultAPIBase is the Graph API version the client speaks.
const DefaultAPIBase = "https://graph.facebook.com/v21.0"

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	phoneNumberID string
	accessToken   string
	apiBase       string
	http          *http.Client
	logger        *slog.Logger
}

type Option func(*Client)

// WithAPIBase points the client at another Graph API root.
func WithAPIBase(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBase = strings.TrimRight(base, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(phoneNumberID, accessToken string, opts ...Option) *Client {
	c := &Client{
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		apiBase:       DefaultAPIBase,
		http:          &http.Client{Timeout: 15 * time.Second},
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers msg to the recipient. The recipient's channel identity,
// when set, selects the sending phone number.
func (c *Client) Send(ctx context.Context, to domain.Recipient, msg domain.OutboundMessage) error {
	req, err := Request(to.Address, msg)
	if err != nil {
		return err
	}
	from := c.phoneNumberID
	if to.ChannelIdentity != "" {
		from = to.ChannelIdentity
	}
	return c.send(ctx, from, req)
}

// Request maps a channel-neutral message to a Cloud API request.
func Request(to string, msg domain.OutboundMessage) (SendMessageRequest, error) {
	req := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}
	switch msg.Type {
	case domain.OutboundText:
		req.Type = "text"
		req.Text = &SendText{Body: msg.Text}
	case domain.OutboundButtons:
		buttons := make([]Button, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			buttons = append(buttons, Button{Type: "reply", Reply: ButtonReply{ID: b.ID, Title: b.Title}})
		}
		req.Type = "interactive"
		req.Interactive = interactive("button", msg)
		req.Interactive.Action = InteractiveAction{Buttons: buttons}
	case domain.OutboundList:
		sections := make([]Section, 0, len(msg.Sections))
		for _, s := range msg.Sections {
			rows := make([]SectionRow, 0, len(s.Rows))
			for _, r := range s.Rows {
				rows = append(rows, SectionRow{ID: r.ID, Title: r.Title, Description: r.Description})
			}
			sections = append(sections, Section{Title: s.Title, Rows: rows})
		}
		req.Type = "interactive"
		req.Interactive = interactive("list", msg)
		req.Interactive.Action = InteractiveAction{Button: msg.ButtonLabel, Sections: sections}
	case domain.OutboundMedia:
		media := &SendMedia{Link: msg.URL, Caption: msg.Caption}
		req.Type = string(msg.MediaType)
		switch msg.MediaType {
		case domain.MediaImage:
			req.Image = media
		case domain.MediaVideo:
			req.Video = media
		case domain.MediaAudio:
			media.Caption = ""
			req.Audio = media
		case domain.MediaDocument:
			req.Document = media
		default:
			return req, fmt.Errorf("whatsapp: unsupported media type %q", msg.MediaType)
		}
	default:
		return req, fmt.Errorf("whatsapp: unsupported message type %q", msg.Type)
	}
	return req, nil
}

func interactive(kind string, msg domain.OutboundMessage) *Interactive {
	in := &Interactive{Type: kind, Body: InteractiveBody{Text: msg.Body}}
	if msg.Footer != "" {
		in.Footer = &InteractiveFooter{Text: msg.Footer}
	}
	if h := msg.Header; h != nil {
		switch h.Type {
		case domain.HeaderText:
			in.Header = &InteractiveHeader{Type: "text", Text: h.Text}
		case domain.HeaderImage:
			in.Header = &InteractiveHeader{Type: "image", Image: &SendMedia{Link: h.URL}}
		case domain.HeaderVideo:
			in.Header = &InteractiveHeader{Type: "video", Video: &SendMedia{Link: h.URL}}
		case domain.HeaderDocument:
			in.Header = &InteractiveHeader{Type: "document", Document: &SendMedia{Link: h.URL}}
		}
	}
	return in
}

func (c *Client) send(ctx context.Context, from string, msg SendMessageRequest) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiBase, from)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("whatsapp API status %d: %s (code %d)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("whatsapp API status %d: %s", resp.StatusCode, respBody)
	}
	c.logger.Debug("whatsapp message sent", "to", msg.To, "type", msg.Type)
	return nil
}
