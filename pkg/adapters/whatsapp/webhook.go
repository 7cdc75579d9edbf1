package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
)

const maxWebhookBody = 1 << 20

// EventFunc receives each customer message parsed from a webhook post.
// It must not block: Meta expects a quick 200.
type EventFunc func(ctx context.Context, ev domain.InboundEvent)

type WebhookHandler struct {
	verifyToken    string
	appSecret      string
	organizationID string
	onEvent        EventFunc
	logger         *slog.Logger
}

type WebhookOption func(*WebhookHandler)

// WithAppSecret enables X-Hub-Signature-256 verification.
func WithAppSecret(secret string) WebhookOption {
	return func(h *WebhookHandler) {
		h.appSecret = secret
	}
}

func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		h.logger = logger
	}
}

// NewWebhookHandler builds the webhook endpoints. Every event is attributed
// to organizationID.
func NewWebhookHandler(verifyToken, organizationID string, onEvent EventFunc, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		verifyToken:    verifyToken,
		organizationID: organizationID,
		onEvent:        onEvent,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleVerify handles the GET webhook verification from Meta.
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/get-started#webhook-verification
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleIncoming processes incoming webhook POST notifications.
// Malformed payloads are acknowledged so Meta does not redeliver them.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if h.appSecret != "" && !validSignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("webhook: failed to decode payload", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, ev := range Events(payload, h.organizationID) {
		h.onEvent(r.Context(), ev)
	}
	w.WriteHeader(http.StatusOK)
}

func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Events flattens a webhook payload into inbound events. Status updates
// and unsupported message types are skipped.
func Events(payload WebhookPayload, organizationID string) []domain.InboundEvent {
	var events []domain.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				ev := domain.InboundEvent{
					ID:              msg.ID,
					OrganizationID:  organizationID,
					Channel:         domain.ChannelWhatsApp,
					ChannelIdentity: change.Value.Metadata.PhoneNumberID,
					CustomerAddress: msg.From,
					ReceivedAt:      timestamp(msg.Timestamp),
				}
				if !fill(&ev, msg) {
					continue
				}
				events = append(events, ev)
			}
		}
	}
	return events
}

func fill(ev *domain.InboundEvent, msg Message) bool {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return false
		}
		ev.Kind = domain.InputText
		ev.Text = msg.Text.Body
	case "interactive":
		if msg.Interactive == nil {
			return false
		}
		switch msg.Interactive.Type {
		case "button_reply":
			if msg.Interactive.ButtonReply == nil {
				return false
			}
			ev.Kind = domain.InputButtonClick
			ev.SelectionID = msg.Interactive.ButtonReply.ID
			ev.Text = msg.Interactive.ButtonReply.Title
		case "list_reply":
			if msg.Interactive.ListReply == nil {
				return false
			}
			ev.Kind = domain.InputButtonClick
			ev.SelectionID = msg.Interactive.ListReply.ID
			ev.Text = msg.Interactive.ListReply.Title
		default:
			return false
		}
	case "button":
		if msg.Button == nil {
			return false
		}
		ev.Kind = domain.InputButtonClick
		ev.SelectionID = msg.Button.Payload
		ev.Text = msg.Button.Text
	case "image":
		return media(ev, domain.MediaImage, msg.Image)
	case "video":
		return media(ev, domain.MediaVideo, msg.Video)
	case "audio":
		return media(ev, domain.MediaAudio, msg.Audio)
	case "document":
		return media(ev, domain.MediaDocument, msg.Document)
	default:
		return false
	}
	return true
}

// media references the attachment by its Cloud API media id; fetching the
// bytes is left to whoever consumes the variable.
func media(ev *domain.InboundEvent, t domain.MediaType, c *MediaContent) bool {
	if c == nil {
		return false
	}
	ev.Kind = domain.InputMedia
	ev.Text = c.Caption
	ev.Media = &domain.Media{Type: t, URL: "media:" + c.ID, Caption: c.Caption}
	return true
}

func timestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
