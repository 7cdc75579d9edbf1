package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/aretw0/menuflow"
	"github.com/aretw0/menuflow/internal/config"
	"github.com/aretw0/menuflow/internal/configcache"
	"github.com/aretw0/menuflow/internal/metrics"
	"github.com/aretw0/menuflow/pkg/adapters/bolt"
	"github.com/aretw0/menuflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/menuflow/pkg/adapters/http"
	"github.com/aretw0/menuflow/pkg/adapters/memory"
	"github.com/aretw0/menuflow/pkg/adapters/notify"
	"github.com/aretw0/menuflow/pkg/adapters/redis"
	"github.com/aretw0/menuflow/pkg/adapters/whatsapp"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/persistence/middleware"
	"github.com/aretw0/menuflow/pkg/ports"
)

// Service is a fully wired menuflow server.
type Service struct {
	Config   *config.Config
	Engine   *menuflow.Engine
	Cache    *configcache.Cache
	Server   *httpAdapter.Server
	Registry *prometheus.Registry

	source  ports.ConfigReader
	logger  *slog.Logger
	closers []func() error
}

// Build wires every component named by cfg. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	svc := &Service{Config: cfg, logger: logger, Registry: prometheus.NewRegistry()}
	built := false
	defer func() {
		if !built {
			_ = svc.Close()
		}
	}()

	svc.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(svc.Registry)

	var db *bolt.Store
	var err error
	if cfg.BoltPath != "" {
		db, err = bolt.Open(cfg.BoltPath, bolt.DefaultMaxTurns)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, db.Close)
	}

	switch {
	case cfg.AutomationsPath != "":
		src, err := file.NewSource(cfg.AutomationsPath, file.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		svc.source = src
	case db != nil:
		svc.source = db
	default:
		return nil, fmt.Errorf("no automation source: set %sAUTOMATIONS or %sBOLT_PATH", config.Prefix, config.Prefix)
	}

	svc.Cache, err = configcache.New(ctx, svc.source,
		configcache.WithRefreshInterval(cfg.ConfigRefresh),
		configcache.WithTimeout(cfg.StoreTimeout),
		configcache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, svc.Cache.Close)

	store, err := sessionStore(cfg.Sessions)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		svc.closers = append(svc.closers, c.Close)
	}
	if store, err = secureSessions(store, cfg.Sessions); err != nil {
		return nil, err
	}

	opts := []menuflow.Option{
		menuflow.WithLogger(logger),
		menuflow.WithMetrics(m),
		menuflow.WithLifecycleHooks(combineHooks(m.Hooks(), createDebugHooks(logger))),
		menuflow.WithStoreTimeout(cfg.StoreTimeout),
		menuflow.WithDeliveryTimeout(cfg.Notify.Timeout),
		menuflow.WithRecentTurns(cfg.RecentTurns),
		menuflow.WithMaxInputSize(cfg.MaxInputSize),
	}
	history, err := historyOptions(cfg, db)
	if err != nil {
		return nil, err
	}
	opts = append(opts, history...)
	opts = append(opts, notifyOptions(cfg.Notify, logger)...)

	if wa := cfg.WhatsApp; wa.AccessToken != "" {
		client := whatsapp.NewClient(wa.PhoneNumberID, wa.AccessToken,
			whatsapp.WithAPIBase(wa.APIBase),
			whatsapp.WithLogger(logger),
		)
		opts = append(opts, menuflow.WithSender(domain.ChannelWhatsApp, client))
	}

	svc.Engine = menuflow.New(store, svc.Cache, opts...)
	svc.closers = append(svc.closers, svc.Engine.Close)

	serverOpts := []httpAdapter.Option{
		httpAdapter.WithLogger(logger),
		httpAdapter.WithMetrics(svc.Registry),
		httpAdapter.WithDispatcher(httpAdapter.NewDispatcher(svc.Engine,
			httpAdapter.WithMaxInFlight(cfg.MaxInFlight),
			httpAdapter.WithDispatcherLogger(logger),
		)),
	}
	if wa := cfg.WhatsApp; wa.VerifyToken != "" {
		serverOpts = append(serverOpts, httpAdapter.WithWhatsApp(wa.VerifyToken, wa.OrganizationID,
			whatsapp.WithAppSecret(wa.AppSecret),
			whatsapp.WithWebhookLogger(logger),
		))
	}
	svc.Server = httpAdapter.NewServer(svc.Engine, serverOpts...)
	built = true
	return svc, nil
}

func sessionStore(cfg config.SessionConfig) (ports.SessionStore, error) {
	switch cfg.Backend {
	case "redis":
		return redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redis.WithPrefix(cfg.RedisPrefix)), nil
	case "memory", "":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// secureSessions wraps store with variable encryption when a key is set.
func secureSessions(store ports.SessionStore, cfg config.SessionConfig) (ports.SessionStore, error) {
	if cfg.EncryptionKey == "" {
		return store, nil
	}
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback %w", err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	return middleware.Chain(store, middleware.NewEncryptionMiddleware(enc)), nil
}

// historyOptions prefers the durable bolt registry and turn log, falling
// back to process memory.
func historyOptions(cfg *config.Config, db *bolt.Store) ([]menuflow.Option, error) {
	var contacts ports.ContactRegistry
	var turns ports.TurnLog
	if db != nil {
		contacts, turns = db, db
	} else {
		h := memory.NewHistory(memory.DefaultMaxTurns)
		contacts, turns = h, h
	}
	if len(cfg.PIIPatterns) > 0 {
		masked, err := middleware.NewPIITurnLog(turns, cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		turns = masked
	}
	opts := []menuflow.Option{menuflow.WithTurnLog(turns)}
	if cfg.FirstContactDB {
		opts = append(opts, menuflow.WithContactRegistry(contacts))
	}
	return opts, nil
}

func notifyOptions(cfg config.NotifyConfig, logger *slog.Logger) []menuflow.Option {
	client := func(url string) *notify.Client {
		return notify.New(url,
			notify.WithTimeout(cfg.Timeout),
			notify.WithRate(cfg.RatePerSecond, cfg.Burst),
			notify.WithLogger(logger),
		)
	}
	var opts []menuflow.Option
	if cfg.AssistantURL != "" {
		opts = append(opts, menuflow.WithAssistant(client(cfg.AssistantURL)))
	}
	if cfg.EscalationURL != "" {
		opts = append(opts, menuflow.WithEscalationSink(client(cfg.EscalationURL)))
	}
	if cfg.IssuesURL != "" {
		opts = append(opts, menuflow.WithIssueReporter(client(cfg.IssuesURL)))
	}
	return opts
}

// Run serves HTTP until ctx is cancelled, then drains in-flight events.
func (s *Service) Run(ctx context.Context) error {
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(s.Config.SweepSchedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.Config.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	if w, ok := s.source.(ports.Watchable); ok {
		if err := s.watch(ctx, w); err != nil {
			s.logger.Warn("hot reload disabled", "err", err)
		}
	}

	srv := &http.Server{
		Addr:         s.Config.Addr,
		Handler:      s.Server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("menuflow listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown did not complete", "err", err)
		_ = srv.Close()
	}
	if err := s.Server.Dispatcher.Wait(shutdownCtx); err != nil {
		s.logger.Error("in-flight events abandoned", "err", err)
	}
	return nil
}

func (s *Service) sweep(ctx context.Context) {
	n, err := s.Engine.Sessions().Sweep(ctx, time.Now())
	if err != nil {
		s.logger.Warn("session sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions swept", "count", n)
	}
}

// watch reloads the automation source on change and drops the cache so the
// next event sees the new configuration.
func (s *Service) watch(ctx context.Context, w ports.Watchable) error {
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	reloader, _ := s.source.(interface{ Reload() error })
	go func() {
		for range changes {
			if reloader != nil {
				if err := reloader.Reload(); err != nil {
					s.logger.Error("automation reload failed, keeping previous", "err", err)
					continue
				}
			}
			s.Cache.InvalidateAll()
			s.logger.Info("automations reloaded")
		}
	}()
	return nil
}

// Close releases every resource in reverse order of creation.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
