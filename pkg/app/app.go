// Package app assembles the swipe-sync components from a Config: storage,
// the action queue, the optimistic state store and its reconciler, the
// swipe controller, the connectivity monitor and the local API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdziat/swipe-sync/pkg/api"
	"github.com/jdziat/swipe-sync/pkg/backend"
	"github.com/jdziat/swipe-sync/pkg/config"
	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/online"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/reconcile"
	"github.com/jdziat/swipe-sync/pkg/state"
	"github.com/jdziat/swipe-sync/pkg/storage"
	"github.com/jdziat/swipe-sync/pkg/swipe"
)

const shutdownTimeout = 10 * time.Second

// Option configures an App.
type Option func(*App)

// WithLogger overrides the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.Logger = l }
}

// WithStorage uses s instead of opening the configured storage driver.
// The caller keeps ownership of s.
func WithStorage(s core.Storage) Option {
	return func(a *App) { a.Storage = s }
}

// WithHTTPClient sets the HTTP client used to reach the backend.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

// App is a fully wired swipe-sync instance.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Storage    core.Storage
	Backend    *backend.Client
	Queue      *queue.Queue
	Store      *state.Store
	Reconciler *reconcile.Reconciler
	Controller *swipe.Controller
	Monitor    *online.Monitor
	API        *api.Server

	httpClient *http.Client

	mu      sync.Mutex
	cleanup []func()
	closers []io.Closer
}

// New builds an App from cfg. ctx bounds background queue processing.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}

	if a.Storage == nil {
		s, closer, err := OpenStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.Storage = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	clientOpts := []backend.Option{
		backend.WithToken(cfg.APIToken),
		backend.WithTimeout(cfg.Timeout),
		backend.WithLogger(a.Logger.With("component", "backend")),
	}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(a.httpClient))
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		clientOpts = append(clientOpts, backend.WithRateLimit(rate.Limit(cfg.RateLimit), burst))
	}
	client, err := backend.New(cfg.APIURL, clientOpts...)
	if err != nil {
		a.closeStorage()
		return nil, err
	}
	a.Backend = client

	sched, err := cfg.ProbeSchedule()
	if err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("probe schedule: %w", err)
	}
	a.Monitor = online.New(
		online.WithProbe(client.Ping),
		online.WithSchedule(sched),
		online.WithLogger(a.Logger.With("component", "online")),
	)

	a.Queue = queue.New(a.Storage,
		queue.StorageKey(cfg.Queue.StorageKey),
		queue.WithRetry(cfg.Retry()),
		queue.WithConnectivity(a.Monitor.Online),
		queue.WithContext(ctx),
		queue.WithLogger(a.Logger.With("component", "queue")),
	)
	a.Queue.RegisterAll(client.Transports())

	a.Store = state.NewStore(
		state.WithStorage(a.Storage),
		state.WithLogger(a.Logger.With("component", "state")),
	)
	a.Reconciler = reconcile.New(a.Store,
		reconcile.WithReader(client),
		reconcile.WithPending(a.Queue),
		reconcile.WithLogger(a.Logger.With("component", "reconcile")),
	)
	a.Controller = swipe.New(a.Store, a.Queue, a.Reconciler,
		swipe.WithJobSource(client),
		swipe.WithLogger(a.Logger.With("component", "swipe")),
	)
	a.API = api.NewServer(a.Queue, a.Controller, a.Monitor, a.Logger.With("component", "api"))

	return a, nil
}

// OpenStorage opens the storage driver named in sc. The returned closer is
// nil for drivers without resources to release.
func OpenStorage(ctx context.Context, sc config.StorageConfig) (core.Storage, io.Closer, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		s, err := storage.OpenSQLite(ctx, sc.Path, storage.MaxOpenConns(1))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverBadger:
		s, err := storage.OpenBadger(sc.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverMemory, "":
		return storage.NewMemoryStorage(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

// Start restores persisted state, hooks the reconciler and the monitor to
// the queue and kicks off processing of anything restored.
func (a *App) Start(ctx context.Context) {
	restored := a.Queue.Restore(ctx)
	loaded := a.Store.Load(ctx)
	a.Logger.Info("restored", "actions", restored, "snapshot", loaded)

	a.mu.Lock()
	a.cleanup = append(a.cleanup, a.Reconciler.Attach(a.Queue), a.Monitor.Drive(a.Queue))
	a.mu.Unlock()

	a.Queue.Trigger()
}

// Run starts the App, serves the API on the configured address and probes
// connectivity until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)

	srv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           a.API.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go a.Monitor.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("api shutdown", "error", err)
	}
	return nil
}

// Close detaches components, waits for in-flight processing and releases
// storage opened by New.
func (a *App) Close() error {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	for _, fn := range cleanup {
		fn()
	}
	a.Queue.Wait()
	return a.closeStorage()
}

func (a *App) closeStorage() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds a text logger at the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}
