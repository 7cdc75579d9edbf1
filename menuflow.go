package menuflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/menuflow/internal/fallback"
	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/internal/matcher"
	"github.com/aretw0/menuflow/internal/metrics"
	"github.com/aretw0/menuflow/internal/render"
	"github.com/aretw0/menuflow/internal/runtime"
	"github.com/aretw0/menuflow/internal/sanitize"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
	"github.com/aretw0/menuflow/pkg/session"
)

// DefaultRecentTurns is how much history an AI handoff carries.
const DefaultRecentTurns = 10

// DefaultDeliveryTimeout bounds each send, handoff and escalation.
const DefaultDeliveryTimeout = 10 * time.Second

// Engine turns inbound customer messages into menu flow replies.
// It is safe for concurrent use; events of the same customer are
// serialized by compare-and-swap on the session store.
type Engine struct {
	sessions *session.Manager
	config   ports.ConfigReader
	matcher  *matcher.Matcher

	senders     map[domain.Channel]ports.Sender
	assistant   ports.Assistant
	escalations ports.EscalationSink
	issues      ports.IssueReporter
	contacts    ports.ContactRegistry
	turns       ports.TurnLog

	sessionOpts     []session.Option
	recentTurns     int
	deliveryTimeout time.Duration
	maxInput        int

	hooks   domain.LifecycleHooks
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	background sync.WaitGroup
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithSender registers the sender for one channel. Messages for channels
// without a sender are dropped with a warning.
func WithSender(channel domain.Channel, s ports.Sender) Option {
	return func(e *Engine) {
		e.senders[channel] = s
	}
}

// WithAssistant sets the AI collaborator that receives handoffs.
func WithAssistant(a ports.Assistant) Option {
	return func(e *Engine) {
		e.assistant = a
	}
}

// WithEscalationSink sets where human escalations go.
func WithEscalationSink(s ports.EscalationSink) Option {
	return func(e *Engine) {
		e.escalations = s
	}
}

// WithIssueReporter sets who hears about broken automations.
func WithIssueReporter(r ports.IssueReporter) Option {
	return func(e *Engine) {
		e.issues = r
	}
}

// WithContactRegistry enables durable first-contact detection.
func WithContactRegistry(r ports.ContactRegistry) Option {
	return func(e *Engine) {
		e.contacts = r
	}
}

// WithTurnLog records conversation history for AI handoffs.
func WithTurnLog(l ports.TurnLog) Option {
	return func(e *Engine) {
		e.turns = l
	}
}

// WithRecentTurns sets how many turns an AI handoff carries.
func WithRecentTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.recentTurns = n
		}
	}
}

// WithStoreTimeout bounds every session store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.sessionOpts = append(e.sessionOpts, session.WithTimeout(d))
	}
}

// WithDeliveryTimeout bounds every outbound call.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.deliveryTimeout = d
		}
	}
}

// WithMaxInputSize caps customer text in bytes. Larger events are rejected
// as invalid.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		e.maxInput = n
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMetrics records outcomes, latency and deliveries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the session id generator (uuid v4).
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// New wires an Engine over a session store and a configuration source.
// The configuration source is usually a config cache.
func New(store ports.SessionStore, config ports.ConfigReader, opts ...Option) *Engine {
	e := &Engine{
		config:          config,
		senders:         make(map[domain.Channel]ports.Sender),
		recentTurns:     DefaultRecentTurns,
		deliveryTimeout: DefaultDeliveryTimeout,
		logger:          logging.NewNop(),
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.sessions = session.NewManager(store, append([]session.Option{session.WithLogger(e.logger)}, e.sessionOpts...)...)

	matcherOpts := []matcher.Option{matcher.WithLogger(e.logger)}
	if e.contacts != nil {
		matcherOpts = append(matcherOpts, matcher.WithContactRegistry(e.contacts))
	}
	e.matcher = matcher.New(config, matcherOpts...)
	return e
}

// Sessions exposes the session manager, e.g. for sweeping.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// turn is one applied event, ready for delivery.
type turn struct {
	result     domain.Result
	automation *domain.Automation
	step       runtime.Step
	messages   []domain.OutboundMessage
	started    bool
	committed  bool
}

// Handle processes one inbound event end to end: match or advance, render,
// commit, then send. It returns ErrStoreTimeout when the session store did
// not answer; the caller may retry the same event.
func (e *Engine) Handle(ctx context.Context, ev domain.InboundEvent) (res domain.Result, err error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveHandle(res.Outcome, err, time.Since(start))
	}()

	if err := validateEvent(ev); err != nil {
		return domain.Result{}, err
	}
	if ev.Text, err = sanitize.Input(ev.Text, e.maxInput); err != nil {
		return domain.Result{}, err
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = e.now()
	}
	logger := e.logger.With("org", ev.OrganizationID, "channel", ev.Channel, "customer", ev.CustomerAddress)

	for attempt := 0; ; attempt++ {
		t, err := e.apply(ctx, ev)
		if errors.Is(err, domain.ErrSessionConflict) {
			if e.hooks.OnConflict != nil {
				e.hooks.OnConflict(ctx, ev.Key())
			}
			if attempt == 0 {
				logger.Debug("session conflict, retrying")
				continue
			}
			logger.Info("event superseded by a concurrent update", "event_id", ev.ID)
			return domain.Result{Outcome: domain.OutcomeSuperseded}, nil
		}
		if err != nil {
			return domain.Result{}, err
		}

		if t.committed {
			e.deliver(ctx, logger, ev, t)
		}
		e.markSeen(ctx, logger, ev, t.result.Outcome)
		return t.result, nil
	}
}

func validateEvent(ev domain.InboundEvent) error {
	if !ev.Key().Valid() {
		return fmt.Errorf("%w: organization_id, channel and customer_address are required", domain.ErrInvalidEvent)
	}
	switch ev.Kind {
	case domain.InputText:
	case domain.InputButtonClick:
		if ev.SelectionID == "" {
			return fmt.Errorf("%w: button_click requires selection_id", domain.ErrInvalidEvent)
		}
	case domain.InputMedia:
		if ev.Media == nil {
			return fmt.Errorf("%w: media input requires media", domain.ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidEvent, ev.Kind)
	}
	return nil
}

// apply computes and commits one transition. It returns ErrSessionConflict
// when another writer got there first.
func (e *Engine) apply(ctx context.Context, ev domain.InboundEvent) (turn, error) {
	now := e.now()
	key := ev.Key()

	sess, err := e.sessions.Get(ctx, key)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return e.start(ctx, ev, now)
	}
	if err != nil {
		return turn{}, fmt.Errorf("load session: %w", err)
	}

	if ev.ID != "" && sess.LastEventID == ev.ID {
		return turn{result: domain.Result{
			Outcome:      domain.OutcomeDuplicate,
			SessionID:    sess.ID,
			AutomationID: sess.AutomationID,
			MenuID:       sess.MenuID,
		}}, nil
	}

	a, err := e.config.Get(ctx, key.OrganizationID, sess.AutomationID)
	if errors.Is(err, domain.ErrConfigNotFound) || (err == nil && !a.Active) {
		// The automation was removed or switched off under a live session.
		e.logger.Info("automation gone, ending session",
			"session_id", sess.ID,
			"automation_id", sess.AutomationID,
		)
		if err := e.sessions.Finish(ctx, key, sess.ID, sess.Version); err != nil {
			return turn{}, err
		}
		return e.start(ctx, ev, now)
	}
	if err != nil {
		return turn{}, fmt.Errorf("load automation: %w", err)
	}

	step := runtime.Advance(a, sess, runtime.InputFrom(ev), now)
	if step.Stale {
		return turn{result: domain.Result{
			Outcome:      domain.OutcomeStale,
			SessionID:    sess.ID,
			AutomationID: a.ID,
			MenuID:       sess.MenuID,
		}}, nil
	}
	return e.commit(ctx, ev, a, sess.Version, step, now, false)
}

func (e *Engine) start(ctx context.Context, ev domain.InboundEvent, now time.Time) (turn, error) {
	m, ok, err := e.matcher.Match(ctx, ev)
	if err != nil {
		return turn{}, fmt.Errorf("match triggers: %w", err)
	}
	if !ok {
		return turn{result: domain.Result{Outcome: domain.OutcomeNoMatch}}, nil
	}
	step := runtime.Enter(m.Automation, ev.Key(), e.newID(), m.MenuID, now)
	return e.commit(ctx, ev, m.Automation, 0, step, now, true)
}

// commit renders the step and writes it. Rendering happens first so a menu
// that cannot be shown never becomes the stored position.
func (e *Engine) commit(ctx context.Context, ev domain.InboundEvent, a *domain.Automation, expected uint64, step runtime.Step, now time.Time, started bool) (turn, error) {
	step, messages := e.render(ctx, ev, a, step, now)

	next := step.Session
	next.LastEventID = ev.ID
	key := ev.Key()

	var err error
	switch {
	case step.Terminal() && expected == 0:
		// Never stored; nothing to delete.
	case step.Terminal():
		err = e.sessions.Finish(ctx, key, next.ID, expected)
	case started:
		err = e.sessions.Create(ctx, next)
	default:
		err = e.sessions.Commit(ctx, expected, next)
	}
	if err != nil {
		return turn{}, err
	}

	return turn{
		result: domain.Result{
			Outcome:      outcome(step, started),
			SessionID:    next.ID,
			AutomationID: a.ID,
			MenuID:       next.MenuID,
			Reason:       step.Reason,
			Messages:     messages,
		},
		automation: a,
		step:       step,
		messages:   messages,
		started:    started,
		committed:  true,
	}, nil
}

func outcome(step runtime.Step, started bool) domain.Outcome {
	switch {
	case step.Status == domain.StatusFallback:
		return domain.OutcomeFallback
	case step.Status == domain.StatusCompleted:
		return domain.OutcomeCompleted
	case started:
		return domain.OutcomeStarted
	default:
		return domain.OutcomeAdvanced
	}
}

// render turns emissions into channel messages. A menu the channel cannot
// show converts the step into a render_overflow fallback and notifies the
// automation owner.
func (e *Engine) render(ctx context.Context, ev domain.InboundEvent, a *domain.Automation, step runtime.Step, now time.Time) (runtime.Step, []domain.OutboundMessage) {
	caps := render.CapabilitiesFor(ev.Channel)
	messages := make([]domain.OutboundMessage, 0, len(step.Emissions))
	for _, em := range step.Emissions {
		switch {
		case em.Menu != nil:
			msg, err := render.Render(em.Menu, caps)
			if err != nil {
				e.overflow(ctx, ev, a, em.Menu, err)
				step = runtime.Fallback(a, step, domain.ReasonRenderOverflow, now)
				return step, e.plain(step, caps)
			}
			messages = append(messages, msg)
		case em.Message != nil:
			messages = append(messages, render.Message(*em.Message, caps))
		default:
			messages = append(messages, render.Text(em.Text, caps))
		}
	}
	return step, messages
}

// plain renders a step that only carries text.
func (e *Engine) plain(step runtime.Step, caps render.Capabilities) []domain.OutboundMessage {
	out := make([]domain.OutboundMessage, 0, len(step.Emissions))
	for _, em := range step.Emissions {
		if em.Text != "" {
			out = append(out, render.Text(em.Text, caps))
		}
	}
	return out
}

func (e *Engine) overflow(ctx context.Context, ev domain.InboundEvent, a *domain.Automation, menu *domain.Menu, err error) {
	e.metrics.RenderOverflow(ev.Channel)
	e.logger.Warn("menu cannot be rendered",
		"org", ev.OrganizationID,
		"channel", ev.Channel,
		"automation_id", a.ID,
		"menu_id", menu.ID,
		"err", err,
	)
	if e.issues == nil {
		return
	}
	issue := domain.ConfigIssue{
		OrganizationID: a.OrganizationID,
		AutomationID:   a.ID,
		MenuID:         menu.ID,
		Channel:        ev.Channel,
		Reason:         domain.ReasonRenderOverflow,
		Detail:         err.Error(),
	}
	e.async(ctx, "issue", func(ctx context.Context) error {
		return e.issues.Report(ctx, issue)
	})
}

// deliver runs the side effects of a committed turn.
func (e *Engine) deliver(ctx context.Context, logger *slog.Logger, ev domain.InboundEvent, t turn) {
	step := t.step
	logger = logger.With("session_id", step.Session.ID, "automation_id", t.automation.ID)

	e.send(ctx, logger, ev, t.messages)
	e.notify(ctx, ev, t)

	if e.turns != nil {
		turns := make([]domain.Turn, 0, 1+len(t.messages))
		turns = append(turns, domain.Turn{Role: domain.RoleCustomer, Text: customerText(ev), MenuID: step.FromMenuID, At: ev.ReceivedAt})
		for _, msg := range t.messages {
			turns = append(turns, domain.Turn{Role: domain.RoleBot, Text: msg.Preview(), MenuID: step.Session.MenuID, At: e.now()})
		}
		if err := e.turns.Append(context.WithoutCancel(ctx), ev.Key(), turns...); err != nil {
			logger.Warn("turn log append failed", "err", err)
		}
	}

	if step.Status == domain.StatusFallback {
		e.dispatch(ctx, logger, t)
	}
}

func (e *Engine) send(ctx context.Context, logger *slog.Logger, ev domain.InboundEvent, messages []domain.OutboundMessage) {
	if len(messages) == 0 {
		return
	}
	sender, ok := e.senders[ev.Channel]
	if !ok {
		logger.Warn("no sender for channel, dropping replies", "count", len(messages))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.deliveryTimeout)
	defer cancel()

	to := ev.Recipient()
	for _, msg := range messages {
		err := sender.Send(ctx, to, msg)
		e.metrics.Delivery("sender", err)
		if err != nil {
			// Later messages depend on earlier ones; stop at the first failure.
			logger.Error("send failed", "type", msg.Type, "err", err)
			return
		}
	}
}

func (e *Engine) notify(ctx context.Context, ev domain.InboundEvent, t turn) {
	step := t.step
	te := &domain.TransitionEvent{
		Timestamp:    e.now(),
		SessionID:    step.Session.ID,
		AutomationID: t.automation.ID,
		FromMenuID:   step.FromMenuID,
		ToMenuID:     step.Session.MenuID,
		Status:       step.Status,
		Reason:       step.Reason,
	}
	if t.started && e.hooks.OnSessionStart != nil {
		e.hooks.OnSessionStart(ctx, te)
	}
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(ctx, te)
	}
	if step.Status == domain.StatusFallback && e.hooks.OnFallback != nil {
		e.hooks.OnFallback(ctx, te)
	}
}

// dispatch hands a fallback to the assistant or a human without waiting.
func (e *Engine) dispatch(ctx context.Context, logger *slog.Logger, t turn) {
	var history []domain.Turn
	if e.turns != nil {
		recent, err := e.turns.Recent(context.WithoutCancel(ctx), t.step.Session.Key, e.recentTurns)
		if err != nil {
			logger.Warn("turn log read failed", "err", err)
		}
		history = recent
	}

	d := fallback.Decide(fallback.Request{
		Automation: t.automation,
		Session:    t.step.Session,
		Reason:     t.step.Reason,
		Turns:      history,
	})
	logger.Info("flow fell back", "reason", t.step.Reason, "target", d.Target, "menu_id", t.step.Session.MenuID)

	switch {
	case d.Handoff != nil:
		if e.assistant == nil {
			logger.Warn("no assistant configured, handoff dropped")
			return
		}
		h := *d.Handoff
		e.async(ctx, "assistant", func(ctx context.Context) error {
			return e.assistant.Handoff(ctx, h)
		})
	case d.Escalation != nil:
		if e.escalations == nil {
			logger.Warn("no escalation sink configured, escalation dropped")
			return
		}
		esc := *d.Escalation
		e.async(ctx, "escalation", func(ctx context.Context) error {
			return e.escalations.Escalate(ctx, esc)
		})
	}
}

// async runs fn in the background with its own deadline. Close waits for
// every call started this way.
func (e *Engine) async(ctx context.Context, target string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
		defer cancel()

		err := fn(ctx)
		e.metrics.Delivery(target, err)
		if err != nil {
			e.logger.Error("background delivery failed", "target", target, "err", err)
		}
	}()
}

func (e *Engine) markSeen(ctx context.Context, logger *slog.Logger, ev domain.InboundEvent, o domain.Outcome) {
	if e.contacts == nil || o == domain.OutcomeDuplicate || o == domain.OutcomeSuperseded {
		return
	}
	if err := e.contacts.MarkSeen(context.WithoutCancel(ctx), ev.Key(), ev.ReceivedAt); err != nil {
		logger.Warn("contact registry write failed", "err", err)
	}
}

func customerText(ev domain.InboundEvent) string {
	switch {
	case ev.Text != "":
		return ev.Text
	case ev.SelectionID != "":
		_, option := render.ParseSelection(ev.SelectionID)
		return option
	case ev.Media != nil:
		return "[" + string(ev.Media.Type) + "]"
	}
	return ""
}

// Close waits for background deliveries to finish.
func (e *Engine) Close() error {
	e.background.Wait()
	return nil
}
