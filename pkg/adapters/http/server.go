package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/adapters/whatsapp"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

const maxEventBody = 256 << 10

// Server exposes the engine over HTTP.
type Server struct {
	Engine     ports.EventHandler
	Dispatcher *Dispatcher

	whatsapp *whatsapp.WebhookHandler
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDispatcher replaces the default background dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Server) {
		s.Dispatcher = d
	}
}

// WithMetrics serves the gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithWhatsApp mounts the WhatsApp Cloud webhook at /webhooks/whatsapp.
// Events are handed to the dispatcher without waiting for a slot so Meta
// gets its 200 right away.
func WithWhatsApp(verifyToken, organizationID string, opts ...whatsapp.WebhookOption) Option {
	return func(s *Server) {
		s.whatsapp = whatsapp.NewWebhookHandler(verifyToken, organizationID, s.submit, opts...)
	}
}

// NewServer builds a server. Options run after the default dispatcher is
// created so webhook handlers can submit to it.
func NewServer(engine ports.EventHandler, opts ...Option) *Server {
	s := &Server{
		Engine:     engine,
		Dispatcher: NewDispatcher(engine),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.EventHandler, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Handler()
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.GetHealth)
	r.Post("/v1/events", s.PostEvent)

	if s.whatsapp != nil {
		r.Get("/webhooks/whatsapp", s.whatsapp.HandleVerify)
		r.Post("/webhooks/whatsapp", s.whatsapp.HandleIncoming)
	}
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

// enableCORS lets the website widget post events from the browser.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) submit(ctx context.Context, ev domain.InboundEvent) {
	if err := s.Dispatcher.TrySubmit(ctx, ev); err != nil {
		s.logger.Warn("event not queued", "org", ev.OrganizationID, "customer", ev.CustomerAddress, "err", err)
	}
}

// PostEvent handles POST /v1/events. By default the event is queued and
// 202 returned; with ?sync=true the engine result is returned inline.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.logger.Warn("PostEvent: invalid request body", "err", err)
		return
	}
	ev, err := DecodeEvent(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	if !sync {
		if err := s.Dispatcher.TrySubmit(r.Context(), ev); err != nil {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "busy")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	res, err := s.Engine.Handle(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("PostEvent: handle failed", "org", ev.OrganizationID, "customer", ev.CustomerAddress, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

var timeType = reflect.TypeOf(time.Time{})

// DecodeEvent maps a generic JSON document onto an InboundEvent. Unknown
// fields are rejected and received_at accepts RFC 3339 strings or unix
// seconds.
func DecodeEvent(raw map[string]any) (domain.InboundEvent, error) {
	var ev domain.InboundEvent
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			unixTimeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		ErrorUnused: true,
		Result:      &ev,
	})
	if err != nil {
		return ev, err
	}
	if err := dec.Decode(raw); err != nil {
		return ev, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return ev, nil
}

func unixTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	if f, ok := data.(float64); ok {
		return time.Unix(int64(f), 0).UTC(), nil
	}
	return data, nil
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
