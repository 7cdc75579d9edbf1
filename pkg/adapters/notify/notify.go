// Package notify delivers fallbacks and configuration issues to external
// collaborators as JSON webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
)

// Defaults for a Client created without options.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRate    = 20
	DefaultBurst   = 40
)

// Client posts JSON documents to one URL. It implements ports.Assistant,
// ports.EscalationSink and ports.IssueReporter; wire one client per URL.
type Client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
	logger  *slog.Logger
}

type Option func(*Client)

// WithTimeout bounds each delivery, including the wait for the limiter.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRate limits deliveries to r per second with the given burst.
func WithRate(r float64, burst int) Option {
	return func(c *Client) {
		if r > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
		}
	}
}

// WithHeader adds a static header, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
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

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(DefaultRate, DefaultBurst),
		headers: make(map[string]string),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handoff posts an AI handoff.
func (c *Client) Handoff(ctx context.Context, h domain.AIHandoff) error {
	return c.post(ctx, "handoff", h)
}

// Escalate posts a human escalation.
func (c *Client) Escalate(ctx context.Context, e domain.Escalation) error {
	return c.post(ctx, "escalation", e)
}

// Report posts a configuration issue.
func (c *Client) Report(ctx context.Context, issue domain.ConfigIssue) error {
	return c.post(ctx, "config_issue", issue)
}

func (c *Client) post(ctx context.Context, kind string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify %s: rate limit: %w", kind, err)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("notify %s: marshal: %w", kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Menuflow-Event", kind)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify %s: status %d", kind, resp.StatusCode)
	}
	c.logger.Debug("notification delivered", "kind", kind, "url", c.url)
	return nil
}
