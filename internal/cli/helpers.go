package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/menuflow/internal/config"
	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
				// Context cancelled elsewhere
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// NewLogger configures the application logger from cfg.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(level, cfg.LogFormat), nil
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("Session Start", "session_id", e.SessionID, "automation", e.AutomationID, "menu", e.ToMenuID)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("Transition", "session_id", e.SessionID, "from", e.FromMenuID, "to", e.ToMenuID, "status", e.Status)
		},
		OnFallback: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("Fallback", "session_id", e.SessionID, "menu", e.FromMenuID, "reason", e.Reason)
		},
		OnConflict: func(ctx context.Context, key domain.SessionKey) {
			logger.Debug("Version Conflict", "org", key.OrganizationID, "customer", key.CustomerAddress)
		},
	}
}

// combineHooks calls every non-nil hook of each set in order.
func combineHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnSessionStart = chainTransition(out.OnSessionStart, h.OnSessionStart)
		out.OnTransition = chainTransition(out.OnTransition, h.OnTransition)
		out.OnFallback = chainTransition(out.OnFallback, h.OnFallback)
		if prev, next := out.OnConflict, h.OnConflict; next != nil {
			if prev == nil {
				out.OnConflict = next
			} else {
				out.OnConflict = func(ctx context.Context, key domain.SessionKey) {
					prev(ctx, key)
					next(ctx, key)
				}
			}
		}
	}
	return out
}

func chainTransition(prev, next func(context.Context, *domain.TransitionEvent)) func(context.Context, *domain.TransitionEvent) {
	switch {
	case next == nil:
		return prev
	case prev == nil:
		return next
	}
	return func(ctx context.Context, e *domain.TransitionEvent) {
		prev(ctx, e)
		next(ctx, e)
	}
}
