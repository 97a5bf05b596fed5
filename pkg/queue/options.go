package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/idempotency"
	"github.com/jdziat/swipe-sync/pkg/retry"
	"github.com/jdziat/swipe-sync/pkg/security"
)

// DefaultStorageKey is the storage key holding the persisted queue record.
const DefaultStorageKey = "actionQueue"

// Options holds queue configuration.
type Options struct {
	StorageKey  string
	Retry       retry.Scheduler
	Keys        *idempotency.Factory
	Logger      *slog.Logger
	Now         func() time.Time
	Sleep       func(context.Context, time.Duration) error
	Context     context.Context
	AutoProcess bool
	Online      func() bool
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		StorageKey:  DefaultStorageKey,
		Retry:       retry.DefaultScheduler(),
		Keys:        idempotency.NewFactory(),
		Logger:      slog.Default(),
		Now:         time.Now,
		Sleep:       retry.Sleep,
		Context:     context.Background(),
		AutoProcess: true,
		Online:      func() bool { return true },
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// StorageKey sets the key the queue record is persisted under.
// Invalid keys are ignored.
func StorageKey(key string) Option {
	return optionFunc(func(o *Options) {
		if security.ValidStorageKey(key) {
			o.StorageKey = key
		}
	})
}

// WithRetry sets the backoff and eviction policy.
// MaxRetries is clamped to [1, security.MaxRetries].
func WithRetry(s retry.Scheduler) Option {
	return optionFunc(func(o *Options) {
		s.MaxRetries = security.ClampRetries(s.MaxRetries)
		o.Retry = s
	})
}

// WithKeyFactory sets the idempotency key factory.
func WithKeyFactory(f *idempotency.Factory) Option {
	return optionFunc(func(o *Options) {
		o.Keys = f
	})
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		o.Logger = l
	})
}

// WithClock sets the time source used for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *Options) {
		o.Now = now
	})
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return optionFunc(func(o *Options) {
		o.Sleep = sleep
	})
}

// WithContext sets the context used by background processing started from
// Enqueue and Trigger. Cancelling it stops those loops.
func WithContext(ctx context.Context) Option {
	return optionFunc(func(o *Options) {
		o.Context = ctx
	})
}

// AutoProcess controls whether Enqueue starts background processing.
func AutoProcess(enabled bool) Option {
	return optionFunc(func(o *Options) {
		o.AutoProcess = enabled
	})
}

// WithConnectivity gates processing: while online reports false the loop
// stops without attempting delivery.
func WithConnectivity(online func() bool) Option {
	return optionFunc(func(o *Options) {
		o.Online = online
	})
}

// Callbacks are invoked once when a single enqueued action settles.
// They are held in memory only and do not survive a restart; use the
// queue hooks for behaviour that must apply to restored actions.
type Callbacks struct {
	OnSuccess func(action *core.QueuedAction, record *core.Record)
	OnFailure func(action *core.QueuedAction, err error)
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*Callbacks)

// OnSuccess sets the success callback for one action.
func OnSuccess(fn func(*core.QueuedAction, *core.Record)) EnqueueOption {
	return func(c *Callbacks) { c.OnSuccess = fn }
}

// OnFailure sets the permanent-failure callback for one action.
func OnFailure(fn func(*core.QueuedAction, error)) EnqueueOption {
	return func(c *Callbacks) { c.OnFailure = fn }
}
