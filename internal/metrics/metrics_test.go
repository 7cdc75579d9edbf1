package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestMetrics_Hooks(t *testing.T) {
	m := New(prometheus.NewRegistry())
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnSessionStart(ctx, &domain.TransitionEvent{Status: domain.StatusActive})
	hooks.OnTransition(ctx, &domain.TransitionEvent{Status: domain.StatusCompleted})
	hooks.OnFallback(ctx, &domain.TransitionEvent{Reason: domain.ReasonAttemptsExhausted})
	hooks.OnConflict(ctx, domain.SessionKey{})
	hooks.OnConflict(ctx, domain.SessionKey{})

	assert.Equal(t, 1.0, value(t, m.transitions.WithLabelValues("started")))
	assert.Equal(t, 1.0, value(t, m.transitions.WithLabelValues("completed")))
	assert.Equal(t, 1.0, value(t, m.fallbacks.WithLabelValues("attempts_exhausted")))
	assert.Equal(t, 2.0, value(t, m.conflicts))
}

func TestMetrics_ObserveHandle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveHandle(domain.OutcomeAdvanced, nil, 10*time.Millisecond)
	m.ObserveHandle(domain.OutcomeAdvanced, nil, 10*time.Millisecond)
	m.ObserveHandle("", errors.New("store down"), time.Second)
	m.Delivery("assistant", nil)
	m.RenderOverflow(domain.ChannelWhatsApp)

	assert.Equal(t, 2.0, value(t, m.events.WithLabelValues("advanced")))
	assert.Equal(t, 1.0, value(t, m.events.WithLabelValues("error")))
	assert.Equal(t, 1.0, value(t, m.deliveries.WithLabelValues("assistant", "ok")))
	assert.Equal(t, 1.0, value(t, m.renderOverflows.WithLabelValues("whatsapp")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHandle(domain.OutcomeNoMatch, nil, time.Millisecond)
		m.Delivery("sender", errors.New("x"))
		m.RenderOverflow(domain.ChannelWebsite)
		_ = m.Hooks()
	})
}
