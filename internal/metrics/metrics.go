// Package metrics exposes engine activity as Prometheus collectors.
// Every method is safe on a nil *Metrics so callers can leave metrics off.
package metrics

import (
	"context"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "menuflow"

type Metrics struct {
	events          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	conflicts       prometheus.Counter
	renderOverflows *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events handled, by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed session transitions, by resulting status.",
		}, []string{"status"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_conflicts_total",
			Help:      "Compare-and-swap conflicts on session writes.",
		}),
		renderOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_overflows_total",
			Help:      "Menus that could not be rendered on a channel.",
		}, []string{"channel"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Flows that gave up, by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound deliveries to collaborators, by target and result.",
		}, []string{"target", "result"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.events, m.transitions, m.conflicts, m.renderOverflows, m.fallbacks, m.deliveries, m.handleDuration)
	return m
}

// Hooks returns lifecycle hooks that feed the transition collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	if m == nil {
		return domain.LifecycleHooks{}
	}
	return domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues("started").Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(string(e.Status)).Inc()
		},
		OnFallback: func(_ context.Context, e *domain.TransitionEvent) {
			m.fallbacks.WithLabelValues(string(e.Reason)).Inc()
		},
		OnConflict: func(_ context.Context, _ domain.SessionKey) {
			m.conflicts.Inc()
		},
	}
}

// ObserveHandle records the outcome and latency of one Handle call.
// A failed call is recorded with outcome "error".
func (m *Metrics) ObserveHandle(outcome domain.Outcome, err error, d time.Duration) {
	if m == nil {
		return
	}
	label := string(outcome)
	if err != nil {
		label = "error"
	}
	m.events.WithLabelValues(label).Inc()
	m.handleDuration.WithLabelValues(label).Observe(d.Seconds())
}

func (m *Metrics) RenderOverflow(channel domain.Channel) {
	if m == nil {
		return
	}
	m.renderOverflows.WithLabelValues(string(channel)).Inc()
}

// Delivery records one send/handoff/escalation attempt.
func (m *Metrics) Delivery(target string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(target, result).Inc()
}
