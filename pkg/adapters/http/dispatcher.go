package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

// ErrBusy is returned by TrySubmit when every slot is taken.
var ErrBusy = errors.New("dispatcher busy")

// Defaults for the background dispatcher.
const (
	DefaultMaxInFlight  = 64
	DefaultRetries      = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Dispatcher runs events in the background, one goroutine each, with at most
// maxInFlight handled at once. Events that hit a store timeout are retried
// with exponential backoff.
type Dispatcher struct {
	handler     ports.EventHandler
	sem         *semaphore.Weighted
	maxInFlight int64
	retries     int
	backoff     time.Duration
	logger      *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithMaxInFlight(n int64) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxInFlight = n
		}
	}
}

// WithRetry sets how often and how patiently a timed-out event is retried.
func WithRetry(retries int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.retries = retries
		d.backoff = backoff
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func NewDispatcher(handler ports.EventHandler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handler:     handler,
		maxInFlight: DefaultMaxInFlight,
		retries:     DefaultRetries,
		backoff:     DefaultRetryBackoff,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = semaphore.NewWeighted(d.maxInFlight)
	return d
}

// TrySubmit handles ev in the background if a slot is free right now and
// returns ErrBusy otherwise.
func (d *Dispatcher) TrySubmit(ctx context.Context, ev domain.InboundEvent) error {
	if !d.sem.TryAcquire(1) {
		return ErrBusy
	}
	// The handling itself is detached from ctx.
	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.sem.Release(1)
		d.run(bg, ev)
	}()
	return nil
}

func (d *Dispatcher) run(ctx context.Context, ev domain.InboundEvent) {
	logger := d.logger.With("org", ev.OrganizationID, "channel", ev.Channel, "customer", ev.CustomerAddress, "event_id", ev.ID)
	wait := d.backoff
	for attempt := 0; ; attempt++ {
		res, err := d.handler.Handle(ctx, ev)
		if err == nil {
			logger.Debug("event handled", "outcome", res.Outcome, "session_id", res.SessionID)
			return
		}
		if !errors.Is(err, domain.ErrStoreTimeout) || attempt >= d.retries {
			logger.Error("event dropped", "attempts", attempt+1, "err", err)
			return
		}
		logger.Warn("store timeout, retrying", "attempt", attempt+1, "backoff", wait.String())
		time.Sleep(wait)
		wait *= 2
	}
}

// Wait blocks until every submitted event finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if err := d.sem.Acquire(ctx, d.maxInFlight); err != nil {
		return err
	}
	d.sem.Release(d.maxInFlight)
	return nil
}
