// Package app wires all Pitchline subsystems into a running server.
//
// The App struct owns the full lifecycle: New connects the record store,
// builds the coaching flow and the call manager, and assembles the HTTP
// surface; Run serves until the context is cancelled; Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pitchline-ai/pitchline/internal/coach"
	"github.com/pitchline-ai/pitchline/internal/config"
	"github.com/pitchline-ai/pitchline/internal/health"
	"github.com/pitchline-ai/pitchline/internal/observe"
	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	"github.com/pitchline-ai/pitchline/pkg/record"
	"github.com/pitchline-ai/pitchline/pkg/record/postgres"
)

// Providers holds the external backends built by main.go via the config
// registry. Voice clients are dialed per call; the analyzer is shared.
type Providers struct {
	// Analyzer scores finished calls. Required.
	Analyzer analysis.Provider

	// AnalyzerName labels the analyzer in metrics and logs.
	AnalyzerName string

	// DialVoice opens a voice event stream for a vendor call id. Required.
	DialVoice DialFunc
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store   record.Store
	guard   *record.Guard
	coach   *coach.Coach
	calls   *CallManager
	metrics *observe.Metrics
	logger  *slog.Logger

	srv *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a record store instead of connecting from config.
func WithStore(s record.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics sink instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Analyzer == nil {
		return nil, errors.New("app: an analysis provider is required")
	}
	if providers.DialVoice == nil {
		return nil, errors.New("app: a voice dialer is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.coach = coach.New(providers.Analyzer, a.guard,
		coach.WithScenario(cfg.Coach.Scenario),
		coach.WithTags(cfg.Coach.Tags),
		coach.WithProviderName(providers.AnalyzerName),
		coach.WithRetry(cfg.Coach.RetryAttempts, cfg.Coach.RetryBase.Std()),
		coach.WithLogger(a.logger),
		coach.WithMetrics(a.metrics),
	)

	a.calls = NewCallManager(providers.DialVoice, a.coach, a.guard, cfg.Session, a.logger, a.metrics)

	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initStore connects PostgreSQL when a DSN is configured, unless a store
// was injected. Running without a store is allowed; calls are then
// analyzed but not persisted.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Storage.PostgresDSN
		if dsn == "" {
			a.logger.Warn("no storage configured, call records will not be persisted")
			return nil
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}
	a.guard = record.NewGuard(a.store)
	return nil
}

// buildHandler assembles the HTTP mux: call control, stored records,
// health probes and the Prometheus scrape endpoint, all wrapped in the
// request-duration middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	a.registerCallRoutes(mux)

	checks := []health.Check{}
	if pinger, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.Database(pinger))
	}
	if a.guard != nil {
		checks = append(checks, health.RecordGuard(a.guard))
	}
	health.New(checks...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Calls returns the call manager, the programmatic entry point for call
// lifecycle control.
func (a *App) Calls() *CallManager {
	return a.calls
}

// ApplyConfig applies a hot-reloaded config diff. Only session tuning and
// coach settings are applied live; everything else needs a restart.
func (a *App) ApplyConfig(d config.ConfigDiff, cfg *config.Config) {
	if d.SessionChanged {
		a.calls.SetTuning(cfg.Session)
		a.logger.Info("session tuning updated")
	}
	if d.CoachChanged {
		a.logger.Warn("coach settings changed, applies after restart")
	}
}

// Run serves HTTP until ctx is cancelled, then returns ctx.Err(). Serving
// errors other than graceful close are returned immediately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Info("server listening", "addr", a.cfg.Server.ListenAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown ends any running call, stops the HTTP server, and closes all
// subsystems in reverse-init order. Respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.calls.Shutdown(ctx); err != nil {
			a.logger.Warn("call shutdown error", "err", err)
		}

		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
