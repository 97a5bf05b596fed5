// Package online tracks connectivity to the backend and drives the action
// queue when it is regained.
package online

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/schedule"
)

// DefaultProbeInterval is how often Run probes the backend.
const DefaultProbeInterval = 15 * time.Second

// ProbeFunc checks whether the backend is reachable.
type ProbeFunc func(ctx context.Context) error

// Driver is the part of the action queue the monitor drives.
type Driver interface {
	Trigger()
	Emit(core.Event)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProbe sets the reachability check used by Check and Run.
func WithProbe(p ProbeFunc) Option {
	return func(m *Monitor) { m.probe = p }
}

// WithSchedule sets when Run probes.
func WithSchedule(s schedule.Schedule) Option {
	return func(m *Monitor) { m.schedule = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// StartOffline makes the monitor report offline until the first
// successful probe or Set(true).
func StartOffline() Option {
	return func(m *Monitor) { m.online = false }
}

// Monitor reports connectivity and notifies listeners on transitions.
type Monitor struct {
	probe    ProbeFunc
	schedule schedule.Schedule
	logger   *slog.Logger

	mu     sync.RWMutex
	online bool

	listenersMu  sync.RWMutex
	listeners    map[int]func(bool)
	tickers      map[int]func(context.Context)
	nextListener int
}

// New creates a Monitor that starts online.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		schedule:  schedule.Every(DefaultProbeInterval),
		logger:    slog.Default(),
		online:    true,
		listeners: make(map[int]func(bool)),
		tickers:   make(map[int]func(context.Context)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the last known connectivity.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set records the connectivity and notifies listeners if it changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.logger.Info("connectivity regained")
	} else {
		m.logger.Warn("connectivity lost")
	}

	m.listenersMu.RLock()
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(online)
	}
}

// OnChange registers fn for connectivity transitions. The returned
// function removes it.
func (m *Monitor) OnChange(fn func(online bool)) (unsubscribe func()) {
	m.listenersMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// OnTick registers fn to run after every scheduled probe.
func (m *Monitor) OnTick(fn func(ctx context.Context)) (unsubscribe func()) {
	m.listenersMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.tickers[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.tickers, id)
		m.listenersMu.Unlock()
	}
}

// Check probes the backend once and records the result. Without a probe
// the current state is returned unchanged.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probe == nil {
		return m.Online()
	}
	err := m.probe(ctx)
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.logger.Debug("backend probe failed", "error", err)
	}
	m.Set(err == nil)
	return err == nil
}

// Run probes on the monitor's schedule until ctx is done, running tick
// callbacks after each probe.
func (m *Monitor) Run(ctx context.Context) {
	schedule.Run(ctx, m.schedule, m.tick)
}

func (m *Monitor) tick(ctx context.Context) {
	m.Check(ctx)

	m.listenersMu.RLock()
	fns := make([]func(context.Context), 0, len(m.tickers))
	for _, fn := range m.tickers {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(ctx)
	}
}

// Drive wires d to the monitor: transitions are emitted as events,
// regaining connectivity triggers processing, and every scheduled tick
// while online triggers a flush of anything left queued.
func (m *Monitor) Drive(d Driver) (stop func()) {
	offChange := m.OnChange(func(online bool) {
		d.Emit(&core.ConnectivityChanged{Online: online, Timestamp: time.Now()})
		if online {
			d.Trigger()
		}
	})
	offTick := m.OnTick(func(context.Context) {
		if m.Online() {
			d.Trigger()
		}
	})
	return func() {
		offChange()
		offTick()
	}
}
