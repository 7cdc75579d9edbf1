// Package configcache keeps automations close to the hot path.
//
// Entries are refreshed at most once per refresh interval per organization.
// When a refresh fails the previous entry keeps being served, so a config
// store outage degrades to stale reads instead of blocked turns.
package configcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefresh = 30 * time.Second
	DefaultTimeout = 2 * time.Second

	// retention bounds how long a stale entry may be served during an outage.
	retention = 24 * time.Hour
)

type entry struct {
	FetchedAt   time.Time            `json:"fetched_at"`
	Automations []*domain.Automation `json:"automations"`
}

// Cache implements ports.ConfigReader on top of another ConfigReader.
type Cache struct {
	source  ports.ConfigReader
	entries *bigcache.BigCache
	group   singleflight.Group

	refresh time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Cache)

func WithRefreshInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.refresh = d
	}
}

// WithTimeout bounds each source read.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache in front of source.
func New(ctx context.Context, source ports.ConfigReader, opts ...Option) (*Cache, error) {
	c := &Cache{
		source:  source,
		refresh: DefaultRefresh,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := bigcache.DefaultConfig(retention)
	cfg.Shards = 64
	cfg.Verbose = false
	entries, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init config cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) load(org string) (*entry, error) {
	raw, err := c.entries.Get(org)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode cached automations: %w", err)
	}
	return &e, nil
}

// fetch reads the source once for all concurrent callers of org.
func (c *Cache) fetch(org string) (*entry, error) {
	v, err, _ := c.group.Do(org, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		list, err := c.source.List(ctx, org)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: config store: %v", domain.ErrStoreTimeout, err)
			}
			return nil, err
		}

		e := &entry{FetchedAt: c.now(), Automations: list}
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		if err := c.entries.Set(org, raw); err != nil {
			return nil, fmt.Errorf("store cached automations: %w", err)
		}
		// Hand out a decoded copy so callers never share the cached value.
		return c.load(org)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// List returns the organization's automations, fresh within the refresh interval.
func (c *Cache) List(ctx context.Context, organizationID string) ([]*domain.Automation, error) {
	cached, err := c.load(organizationID)
	if err != nil {
		c.logger.Warn("config cache unreadable", "org", organizationID, "err", err)
		cached = nil
	}
	if cached != nil && c.now().Sub(cached.FetchedAt) < c.refresh {
		return cached.Automations, nil
	}

	fresh, err := c.fetch(organizationID)
	if err != nil {
		if cached != nil {
			c.logger.Warn("config refresh failed, serving stale automations",
				"org", organizationID,
				"age", c.now().Sub(cached.FetchedAt).String(),
				"err", err,
			)
			return cached.Automations, nil
		}
		return nil, err
	}
	return fresh.Automations, nil
}

// Get finds one automation in the organization's cached list.
func (c *Cache) Get(ctx context.Context, organizationID, automationID string) (*domain.Automation, error) {
	list, err := c.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		if a.ID == automationID {
			return a, nil
		}
	}
	return nil, domain.ErrConfigNotFound
}

// Invalidate drops one organization so the next read goes to the source.
func (c *Cache) Invalidate(organizationID string) {
	_ = c.entries.Delete(organizationID)
}

// InvalidateAll drops every cached organization.
func (c *Cache) InvalidateAll() {
	_ = c.entries.Reset()
}

func (c *Cache) Close() error {
	return c.entries.Close()
}
