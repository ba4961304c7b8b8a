// Package app wires the MockFlow subsystems into a running server.
//
// The App struct owns the full lifecycle: New opens the archive and builds
// the session registry and HTTP surface, Run serves until its context is
// cancelled, and Shutdown archives the interviews still running and tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mockflow/internal/archive"
	"github.com/MrWong99/mockflow/internal/archive/postgres"
	"github.com/MrWong99/mockflow/internal/archive/sqlite"
	"github.com/MrWong99/mockflow/internal/config"
	"github.com/MrWong99/mockflow/internal/feedback"
	"github.com/MrWong99/mockflow/internal/health"
	"github.com/MrWong99/mockflow/internal/interview/controller"
	"github.com/MrWong99/mockflow/internal/observe"
	"github.com/MrWong99/mockflow/pkg/provider/llm"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds the configured LLM. A nil LLM runs the server without the
// built-in turn driver and without feedback. Populated by main.go via the
// config registry.
type Providers struct {
	LLM llm.Provider

	// LLMName labels the primary provider in logs.
	LLMName string
}

// App owns all subsystem lifetimes of the interview server.
type App struct {
	cfg       *config.Config
	providers *Providers

	store          archive.Store
	registry       *Registry
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	handler        http.Handler
	server         *http.Server
	listener       net.Listener

	level      *slog.LevelVar
	configPath string
	watchOpts  []config.WatcherOption
	watcher    *config.Watcher

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an archive store instead of opening one from config.
func WithStore(s archive.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at observe.metrics_path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets configuration reloads change the level of the process
// logger.
func WithLogLevel(l *slog.LevelVar) Option {
	return func(a *App) { a.level = l }
}

// WithConfigWatch watches the config file at path while running. Interview
// settings and the log level are applied on change; everything else needs a
// restart.
func WithConfigWatch(path string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.configPath = path
		a.watchOpts = opts
	}
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 0. Config watch ──────────────────────────────────────────────────
	// Diff against cfg, not whatever the file says when Run starts.
	if a.configPath != "" {
		wopts := append([]config.WatcherOption{config.WithBaseline(cfg)}, a.watchOpts...)
		w, err := config.NewWatcher(a.configPath, a.applyConfig, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
	}

	// ── 1. Archive ───────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Session registry ──────────────────────────────────────────────
	var gen *feedback.Generator
	if cfg.LLM.Feedback && providers.LLM != nil {
		gen = feedback.NewGenerator(providers.LLM, feedback.WithMetrics(a.metrics))
	}
	a.registry = NewRegistry(RegistryConfig{
		Interview:   cfg.Interview,
		LLM:         cfg.LLM,
		Provider:    providers.LLM,
		Store:       a.store,
		Feedback:    gen,
		MaxSessions: cfg.Server.MaxSessions,
		Metrics:     a.metrics,
	})

	// ── 3. Health ────────────────────────────────────────────────────────
	a.health = health.New(
		health.PingChecker("archive", a.store),
		health.CapacityChecker("capacity", a.registry.Len, cfg.Server.MaxSessions),
	)

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	mux := http.NewServeMux()
	NewAPI(a.registry, a.store).Register(mux)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET "+cfg.Observe.MetricsPath, a.metricsHandler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	slog.Info("app initialised",
		"store", cfg.Store.Backend,
		"llm", providers.LLMName,
		"feedback", gen != nil,
		"max_sessions", cfg.Server.MaxSessions,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured archive backend or uses an injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		s, closeFn, err := postgres.Open(ctx, a.cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, func() error {
			closeFn()
			return nil
		})
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, a.cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	case config.StoreMemory, "":
		a.store = archive.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
	return nil
}

// Registry returns the session registry.
func (a *App) Registry() *Registry { return a.registry }

// Handler returns the HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and watches the config file until ctx is cancelled or the
// server fails. It does not stop running sessions; call [App.Shutdown]
// afterwards.
func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		err := a.serve()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if a.watcher != nil {
		eg.Go(func() error { return a.watcher.Run(egCtx) })
	}

	eg.Go(func() error {
		<-egCtx.Done()
		a.health.SetDraining(true)
		// Hijacked websocket streams survive this; they end when Shutdown
		// stops their sessions.
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	slog.Info("server listening", "addr", a.addr(), "tls", a.cfg.Server.TLS != nil)
	return eg.Wait()
}

func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	switch {
	case a.listener != nil && tls != nil:
		return a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
	case a.listener != nil:
		return a.server.Serve(a.listener)
	case tls != nil:
		return a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	default:
		return a.server.ListenAndServe()
	}
}

func (a *App) addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

// applyConfig is the config watcher callback.
func (a *App) applyConfig(rl config.Reload) {
	d := rl.Diff

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LevelOf(d.NewLogLevel))
		slog.Info("config reload: log level changed", "level", d.NewLogLevel)
	}
	if d.InterviewChanged() {
		a.registry.SetInterview(rl.New.Interview)
		slog.Info("config reload: interview settings apply to new sessions",
			"stages_changed", d.StagesChanged,
			"stage_changes", len(d.StageChanges),
			"fallback_changed", d.FallbackChanged,
			"duplicates_changed", d.DuplicatesChanged,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: changes need a restart", "sections", d.RestartRequired)
	}
}

// LevelOf maps a config log level to its slog level.
func LevelOf(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends every running interview (archiving each one), stops the
// HTTP server and runs the closers in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.registry.Len(), "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.registry.StopAll(ctx, controller.EndedTerminated); err != nil {
			slog.Warn("stopping sessions failed", "err", err)
			shutdownErr = err
		}

		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = errors.Join(shutdownErr, ctx.Err())
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
