package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/idempotency"
	"github.com/jdziat/swipe-sync/pkg/retry"
	"github.com/jdziat/swipe-sync/pkg/security"
)

// TransportFunc delivers one action to the backend. It must return an error
// for any non-2xx outcome. The same IdempotencyKey is passed on every attempt
// of an action.
type TransportFunc func(ctx context.Context, payload core.Payload, opts core.DeliveryOptions) (*core.Record, error)

// persistedQueue is the record stored under the queue's storage key.
type persistedQueue struct {
	Queue      []*core.QueuedAction `json:"queue"`
	SequenceID int64                `json:"sequenceId"`
}

// Queue is a persisted FIFO of pending actions. Only one processing loop
// runs at a time; a failing head blocks the actions behind it until it
// succeeds or fails permanently.
type Queue struct {
	store      core.Storage
	key        string
	retry      retry.Scheduler
	keys       *idempotency.Factory
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
	baseCtx    context.Context
	auto       bool
	online     func() bool
	transports map[core.ActionType]TransportFunc

	mu         sync.Mutex
	items      []*core.QueuedAction
	sequenceID int64
	processing bool
	callbacks  map[string]Callbacks

	// Hooks
	hooksMu   sync.RWMutex
	onSuccess []func(context.Context, *core.QueuedAction, *core.Record)
	onFailure []func(context.Context, *core.QueuedAction, error)
	onRetry   []func(context.Context, *core.QueuedAction, int, error)

	// Listeners and event stream
	listenersMu  sync.RWMutex
	listeners    map[int]func(core.QueueStatus)
	nextListener int
	eventSubs    []chan core.Event

	wg sync.WaitGroup
}

// New creates a Queue backed by s. Call Restore to load previously
// persisted actions.
func New(s core.Storage, opts ...Option) *Queue {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}

	return &Queue{
		store:      s,
		key:        o.StorageKey,
		retry:      o.Retry,
		keys:       o.Keys,
		logger:     o.Logger,
		now:        o.Now,
		sleep:      o.Sleep,
		baseCtx:    o.Context,
		auto:       o.AutoProcess,
		online:     o.Online,
		transports: make(map[core.ActionType]TransportFunc),
		callbacks:  make(map[string]Callbacks),
		listeners:  make(map[int]func(core.QueueStatus)),
	}
}

// Register sets the transport used for actions of type t.
// It panics on an unknown action type.
func (q *Queue) Register(t core.ActionType, fn TransportFunc) {
	if err := security.ValidateActionType(t); err != nil {
		panic(fmt.Sprintf("swipesync: register transport %q: %v", t, err))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.transports[t] = fn
}

// RegisterAll registers every transport in m.
func (q *Queue) RegisterAll(m map[core.ActionType]TransportFunc) {
	for t, fn := range m {
		q.Register(t, fn)
	}
}

// HasTransport reports whether a transport is registered for t.
func (q *Queue) HasTransport(t core.ActionType) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.transports[t]
	return ok
}

// Enqueue appends an action to the tail of the queue, persists it, notifies
// listeners and starts processing if the queue is idle. It returns the new
// action's ID.
func (q *Queue) Enqueue(ctx context.Context, t core.ActionType, payload core.Payload, opts ...EnqueueOption) (string, error) {
	if err := security.ValidateActionType(t); err != nil {
		return "", err
	}
	if err := security.ValidateJobID(payload.JobID); err != nil {
		return "", err
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("swipesync: failed to marshal payload: %w", err)
	}
	if err := security.ValidatePayloadSize(payloadBytes); err != nil {
		return "", err
	}

	var cb Callbacks
	for _, opt := range opts {
		opt(&cb)
	}

	now := q.now()

	q.mu.Lock()
	q.sequenceID++
	action := &core.QueuedAction{
		ID:             fmt.Sprintf("action_%d_%d", q.sequenceID, now.UnixMilli()),
		Type:           t,
		Payload:        payload,
		IdempotencyKey: q.keys.Create(t, payload.JobID),
		Timestamp:      now.UnixMilli(),
		Retries:        0,
		PendingSync:    true,
	}
	q.items = append(q.items, action)
	if cb.OnSuccess != nil || cb.OnFailure != nil {
		q.callbacks[action.ID] = cb
	}
	q.persistLocked(ctx)
	status := q.statusLocked()
	snapshot := action.Clone()
	q.mu.Unlock()

	q.logger.Debug("action enqueued", "action_id", action.ID, "type", t, "job_id", payload.JobID)
	q.notify(status)
	q.Emit(&core.ActionEnqueued{Action: snapshot, Timestamp: q.now()})

	if q.auto {
		q.Trigger()
	}
	return action.ID, nil
}

// Trigger starts a background processing loop on the queue's context
// unless one is already running.
func (q *Queue) Trigger() {
	q.mu.Lock()
	busy := q.processing
	q.mu.Unlock()
	if busy {
		return
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.Process(q.baseCtx)
	}()
}

// Wait blocks until every background loop started by Trigger has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Process delivers queued actions in FIFO order until the queue is empty,
// ctx is done, or connectivity is lost. Calling it while another loop is
// running is a no-op.
func (q *Queue) Process(ctx context.Context) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	status := q.statusLocked()
	q.mu.Unlock()
	q.notify(status)

	for {
		if ctx.Err() != nil {
			q.stopProcessing()
			return
		}
		if !q.online() {
			q.logger.Info("offline, pausing action queue", "pending", q.Len())
			q.stopProcessing()
			return
		}

		head, ok := q.headOrStop()
		if !ok {
			return
		}

		if !q.deliver(ctx, head) {
			q.stopProcessing()
			return
		}
	}
}

// headOrStop returns a copy of the head action. When the queue is empty it
// clears the processing flag under the same lock so a concurrent Enqueue
// either sees the loop running or starts a new one.
func (q *Queue) headOrStop() (*core.QueuedAction, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.processing = false
		status := q.statusLocked()
		q.mu.Unlock()
		q.notify(status)
		return nil, false
	}
	head := q.items[0].Clone()
	q.mu.Unlock()
	return head, true
}

func (q *Queue) stopProcessing() {
	q.mu.Lock()
	q.processing = false
	status := q.statusLocked()
	q.mu.Unlock()
	q.notify(status)
}

// deliver makes one attempt at head. It returns false when the loop must stop.
func (q *Queue) deliver(ctx context.Context, head *core.QueuedAction) bool {
	q.mu.Lock()
	transport, ok := q.transports[head.Type]
	q.mu.Unlock()

	attempt := head.Retries + 1
	start := q.now()

	var (
		record *core.Record
		err    error
	)
	if ok {
		record, err = transport(ctx, head.Payload, core.DeliveryOptions{
			IdempotencyKey: head.IdempotencyKey,
			Attempt:        attempt,
		})
	} else {
		err = core.NoRetry(fmt.Errorf("%w: %s", core.ErrNoTransport, head.Type))
	}

	if err == nil {
		q.complete(ctx, head, record, q.now().Sub(start))
		return true
	}

	// The loop was cancelled while the request was in flight; the attempt
	// does not count against the action.
	if ctx.Err() != nil {
		return false
	}

	retries, permanent, found := q.recordFailure(ctx, head.ID, err)
	if !found {
		return true
	}
	if permanent {
		q.fail(ctx, head, retries, err)
		return true
	}

	delay := q.retry.DelayForAttempt(retries)
	var retryAfter *core.RetryAfterError
	if errors.As(err, &retryAfter) && retryAfter.Delay > 0 {
		delay = retryAfter.Delay
	}

	head.Retries = retries
	q.logger.Info("action delivery failed, retrying",
		"action_id", head.ID, "type", head.Type, "attempt", retries, "delay", delay, "error", err)
	q.callRetryHooks(ctx, head, retries, err)
	q.Emit(&core.ActionRetrying{
		Action:    head,
		Attempt:   retries,
		Error:     err,
		NextRunAt: q.now().Add(delay),
		Timestamp: q.now(),
	})

	return q.sleep(ctx, delay) == nil
}

// complete removes a delivered action and runs its success callbacks.
func (q *Queue) complete(ctx context.Context, head *core.QueuedAction, record *core.Record, d time.Duration) {
	q.mu.Lock()
	found := q.removeLocked(head.ID)
	cb := q.callbacks[head.ID]
	delete(q.callbacks, head.ID)
	if found {
		q.persistLocked(ctx)
	}
	status := q.statusLocked()
	q.mu.Unlock()

	if !found {
		q.logger.Warn("action delivered after queue was cleared", "action_id", head.ID, "type", head.Type)
		return
	}

	head.PendingSync = false
	q.notify(status)

	if cb.OnSuccess != nil {
		cb.OnSuccess(head, record)
	}
	q.callSuccessHooks(ctx, head, record)
	q.Emit(&core.ActionSucceeded{Action: head, Record: record, Duration: d, Timestamp: q.now()})
}

// recordFailure increments the retry counter of action id. Permanently
// failed actions are removed from the queue in the same step.
func (q *Queue) recordFailure(ctx context.Context, id string, err error) (retries int, permanent, found bool) {
	q.mu.Lock()
	idx := q.indexLocked(id)
	if idx < 0 {
		q.mu.Unlock()
		return 0, false, false
	}

	item := q.items[idx]
	item.Retries++
	retries = item.Retries
	permanent = core.IsPermanent(err) || q.retry.Exhausted(retries)
	if permanent {
		q.removeLocked(id)
	}
	q.persistLocked(ctx)
	status := q.statusLocked()
	q.mu.Unlock()

	q.notify(status)
	return retries, permanent, true
}

// fail runs the failure callbacks of a permanently failed action.
func (q *Queue) fail(ctx context.Context, head *core.QueuedAction, retries int, cause error) {
	q.mu.Lock()
	cb := q.callbacks[head.ID]
	delete(q.callbacks, head.ID)
	q.mu.Unlock()

	head.Retries = retries
	err := cause
	if !core.IsPermanent(cause) {
		err = fmt.Errorf("%w after %d attempts: %w", core.ErrRetriesExhausted, retries, cause)
	}

	q.logger.Error("action failed permanently",
		"action_id", head.ID, "type", head.Type, "job_id", head.Payload.JobID, "attempts", retries, "error", cause)

	if cb.OnFailure != nil {
		cb.OnFailure(head, err)
	}
	q.callFailureHooks(ctx, head, err)
	q.Emit(&core.ActionFailed{Action: head, Error: err, Timestamp: q.now()})
}

// Restore loads the persisted queue, dropping malformed actions and actions
// older than the retry policy's MaxAge without delivering them. Storage and
// decoding failures are logged and treated as an empty queue. It returns the
// number of restored actions.
func (q *Queue) Restore(ctx context.Context) int {
	data, err := q.store.Get(ctx, q.key)
	if errors.Is(err, core.ErrNotFound) {
		return 0
	}
	if err != nil {
		q.logger.Warn("failed to read persisted action queue", "key", q.key, "error", err)
		return 0
	}

	var pq persistedQueue
	if err := json.Unmarshal(data, &pq); err != nil {
		q.logger.Warn("discarding unreadable action queue", "key", q.key, "error", err)
		return 0
	}

	now := q.now()
	kept := make([]*core.QueuedAction, 0, len(pq.Queue))
	var evicted []*core.QueuedAction
	for _, a := range pq.Queue {
		if !validPersisted(a) {
			q.logger.Warn("dropping malformed queued action", "key", q.key)
			continue
		}
		if q.retry.IsStale(a.CreatedAt(), now) {
			q.logger.Warn("evicting stale queued action",
				"action_id", a.ID, "type", a.Type, "job_id", a.Payload.JobID, "age", a.Age(now))
			evicted = append(evicted, a)
			continue
		}
		kept = append(kept, a)
	}

	q.mu.Lock()
	q.items = append(kept, q.items...)
	if pq.SequenceID > q.sequenceID {
		q.sequenceID = pq.SequenceID
	}
	if len(evicted) > 0 || len(kept) != len(pq.Queue) {
		q.persistLocked(ctx)
	}
	status := q.statusLocked()
	q.mu.Unlock()

	q.notify(status)
	for _, a := range evicted {
		q.Emit(&core.ActionEvicted{Action: a, Age: a.Age(now), Timestamp: now})
	}
	return len(kept)
}

func validPersisted(a *core.QueuedAction) bool {
	return a != nil &&
		a.ID != "" &&
		a.Type.Valid() &&
		a.IdempotencyKey != "" &&
		a.Timestamp > 0 &&
		a.Retries >= 0 &&
		security.ValidateJobID(a.Payload.JobID) == nil
}

// Clear empties the queue and persists the empty state. A request already
// handed to a transport is not cancelled.
func (q *Queue) Clear(ctx context.Context) {
	q.mu.Lock()
	dropped := len(q.items)
	q.items = nil
	q.callbacks = make(map[string]Callbacks)
	q.persistLocked(ctx)
	status := q.statusLocked()
	q.mu.Unlock()

	q.logger.Info("action queue cleared", "dropped", dropped)
	q.notify(status)
	q.Emit(&core.QueueCleared{Dropped: dropped, Timestamp: q.now()})
}

// Status returns the queue length and whether a loop is running.
func (q *Queue) Status() core.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns copies of the queued actions in delivery order.
func (q *Queue) Pending() []*core.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*core.QueuedAction, len(q.items))
	for i, a := range q.items {
		out[i] = a.Clone()
	}
	return out
}

// HeadRetries returns the retry counter of the head action, or 0.
func (q *Queue) HeadRetries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0
	}
	return q.items[0].Retries
}

func (q *Queue) statusLocked() core.QueueStatus {
	return core.QueueStatus{QueueLength: len(q.items), Processing: q.processing}
}

func (q *Queue) indexLocked(id string) int {
	for i, a := range q.items {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) removeLocked(id string) bool {
	idx := q.indexLocked(id)
	if idx < 0 {
		return false
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return true
}

// persistLocked writes the queue record. Failures are logged; the in-memory
// queue stays authoritative.
func (q *Queue) persistLocked(ctx context.Context) {
	items := q.items
	if items == nil {
		items = []*core.QueuedAction{}
	}

	data, err := json.Marshal(persistedQueue{Queue: items, SequenceID: q.sequenceID})
	if err != nil {
		q.logger.Warn("failed to encode action queue", "error", err)
		return
	}
	if err := q.store.Set(ctx, q.key, data); err != nil {
		q.logger.Warn("failed to persist action queue", "key", q.key, "error", err)
	}
}

// AddListener registers fn to be called with the queue status after every
// mutation. The returned function removes the listener.
func (q *Queue) AddListener(fn func(core.QueueStatus)) (unsubscribe func()) {
	q.listenersMu.Lock()
	id := q.nextListener
	q.nextListener++
	q.listeners[id] = fn
	q.listenersMu.Unlock()

	return func() {
		q.listenersMu.Lock()
		delete(q.listeners, id)
		q.listenersMu.Unlock()
	}
}

func (q *Queue) notify(status core.QueueStatus) {
	q.listenersMu.RLock()
	fns := make([]func(core.QueueStatus), 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	q.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(status)
	}
}

// OnSuccess registers a callback for every successfully delivered action,
// including actions restored from storage.
func (q *Queue) OnSuccess(fn func(context.Context, *core.QueuedAction, *core.Record)) {
	q.hooksMu.Lock()
	q.onSuccess = append(q.onSuccess, fn)
	q.hooksMu.Unlock()
}

// OnFailure registers a callback for every permanently failed action.
func (q *Queue) OnFailure(fn func(context.Context, *core.QueuedAction, error)) {
	q.hooksMu.Lock()
	q.onFailure = append(q.onFailure, fn)
	q.hooksMu.Unlock()
}

// OnRetry registers a callback for every failed attempt that will be retried.
func (q *Queue) OnRetry(fn func(context.Context, *core.QueuedAction, int, error)) {
	q.hooksMu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.hooksMu.Unlock()
}

func (q *Queue) callSuccessHooks(ctx context.Context, a *core.QueuedAction, r *core.Record) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedAction, *core.Record), len(q.onSuccess))
	copy(hooks, q.onSuccess)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, a, r)
	}
}

func (q *Queue) callFailureHooks(ctx context.Context, a *core.QueuedAction, err error) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedAction, error), len(q.onFailure))
	copy(hooks, q.onFailure)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, a, err)
	}
}

func (q *Queue) callRetryHooks(ctx context.Context, a *core.QueuedAction, attempt int, err error) {
	q.hooksMu.RLock()
	hooks := make([]func(context.Context, *core.QueuedAction, int, error), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, a, attempt, err)
	}
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.listenersMu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.listenersMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.listenersMu.Lock()
	defer q.listenersMu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers, dropping it for subscribers whose
// buffer is full.
func (q *Queue) Emit(e core.Event) {
	q.listenersMu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.listenersMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}
