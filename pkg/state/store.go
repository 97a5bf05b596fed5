package state

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/security"
)

// DefaultStorageKey is the key the snapshot is persisted under.
const DefaultStorageKey = "stateSnapshot"

// Option configures a Store.
type Option func(*Store)

// WithStorage enables snapshot persistence to s after every dispatch.
func WithStorage(s core.Storage) Option {
	return func(st *Store) { st.storage = s }
}

// WithStorageKey sets the snapshot storage key. Invalid keys are ignored.
func WithStorageKey(key string) Option {
	return func(st *Store) {
		if security.ValidStorageKey(key) {
			st.key = key
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(st *Store) { st.logger = l }
}

// WithInitial sets the starting snapshot.
func WithInitial(s Snapshot) Option {
	return func(st *Store) { st.state = s.normalized() }
}

// Store owns the current snapshot. Every change goes through Reduce.
type Store struct {
	storage core.Storage
	key     string
	logger  *slog.Logger

	mu    sync.Mutex
	state Snapshot

	subsMu  sync.RWMutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// NewStore creates a Store holding the initial snapshot.
func NewStore(opts ...Option) *Store {
	s := &Store{
		key:    DefaultStorageKey,
		logger: slog.Default(),
		state:  Initial(),
		subs:   make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch applies actions as one batch: subscribers and storage observe
// only the state after the last action.
func (s *Store) Dispatch(ctx context.Context, actions ...Action) Snapshot {
	s.mu.Lock()
	next := ReduceAll(s.state, actions...)
	s.state = next
	s.persistLocked(ctx)
	s.mu.Unlock()

	out := next.Clone()
	s.notify(out)
	return out
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn to receive the state after every dispatch. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subsMu.RLock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Load replaces the state with the persisted snapshot. Transient fields
// (loading, queue status, in-progress markers) are reset. A missing or
// unreadable snapshot leaves the state unchanged; Load reports whether a
// snapshot was applied.
func (s *Store) Load(ctx context.Context) bool {
	if s.storage == nil {
		return false
	}

	data, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, core.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn("failed to read state snapshot", "key", s.key, "error", err)
		return false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("discarding unreadable state snapshot", "key", s.key, "error", err)
		return false
	}
	snap.Loading = false
	snap.QueueStatus = core.QueueStatus{}
	snap.SavingJob = ""
	snap.ReportingJob = ""
	snap = snap.normalized()

	s.mu.Lock()
	s.state = snap
	s.mu.Unlock()

	s.notify(snap.Clone())
	return true
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.storage == nil {
		return
	}
	data, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Warn("failed to encode state snapshot", "error", err)
		return
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		s.logger.Warn("failed to persist state snapshot", "key", s.key, "error", err)
	}
}
