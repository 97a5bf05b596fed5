// Package reconcile keeps the optimistic state consistent with what the
// backend has confirmed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/security"
	"github.com/jdziat/swipe-sync/pkg/state"
)

// ErrNoReader is returned by Refresh when no Reader is configured.
var ErrNoReader = errors.New("swipesync: no backend reader configured")

// Reader lists the server's view of one collection.
type Reader interface {
	ListCollection(ctx context.Context, c state.Collection) ([]core.Record, error)
}

// PendingLister lists actions not yet delivered. *queue.Queue implements it.
type PendingLister interface {
	Pending() []*core.QueuedAction
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithReader sets the backend reader used by Refresh.
func WithReader(r Reader) Option {
	return func(rc *Reconciler) { rc.reader = r }
}

// WithPending sets where Refresh looks up undelivered actions. Attach sets
// it to the attached queue when none is configured.
func WithPending(p PendingLister) Option {
	return func(rc *Reconciler) { rc.pending = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(rc *Reconciler) { rc.logger = l }
}

// Reconciler applies queue outcomes and server snapshots to a state.Store.
type Reconciler struct {
	store  *state.Store
	reader Reader
	logger *slog.Logger

	mu      sync.Mutex
	pending PendingLister
}

// New creates a Reconciler for store.
func New(store *state.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CollectionFor returns the collection whose optimistic record an action of
// type t creates.
func CollectionFor(t core.ActionType) (state.Collection, bool) {
	switch t {
	case core.ActionAccept:
		return state.CollectionApplications, true
	case core.ActionSkip:
		return state.CollectionSkipped, true
	case core.ActionToggleSave:
		return state.CollectionSaved, true
	case core.ActionReport:
		return state.CollectionReported, true
	default:
		return "", false
	}
}

// Attach registers the reconciler on q so every delivered or failed action,
// including actions restored after a restart, is reconciled. Queue status
// and retry counts are mirrored into the store. The returned function stops
// the status mirroring.
func (r *Reconciler) Attach(q *queue.Queue) (detach func()) {
	r.mu.Lock()
	if r.pending == nil {
		r.pending = q
	}
	r.mu.Unlock()

	q.OnSuccess(r.OnActionConfirmed)
	q.OnFailure(r.OnActionFailed)
	q.OnRetry(func(ctx context.Context, a *core.QueuedAction, attempt int, err error) {
		r.store.Dispatch(ctx, state.SetRetryCount{Count: attempt})
	})

	r.store.Dispatch(context.Background(), state.SetQueueStatus{Status: q.Status()})
	return q.AddListener(func(s core.QueueStatus) {
		r.store.Dispatch(context.Background(), state.SetQueueStatus{Status: s})
	})
}

// OnActionConfirmed replaces the temporary record created for a delivered
// action with the server-confirmed record.
func (r *Reconciler) OnActionConfirmed(ctx context.Context, a *core.QueuedAction, rec *core.Record) {
	actions := []state.Action{state.SetRetryCount{Count: 0}}
	actions = append(actions, clearInProgress(a)...)

	c, ok := CollectionFor(a.Type)
	if ok && rec != nil {
		actions = append(actions, state.ConfirmRecord{
			Collection: c,
			JobID:      a.Payload.JobID,
			Server:     *rec,
		})
		r.logger.Debug("action confirmed",
			"action_id", a.ID, "type", a.Type, "job_id", a.Payload.JobID, "record_id", rec.ID)
	}
	r.store.Dispatch(ctx, actions...)
}

// ConfirmRecord replaces the temporary record for jobID in c with rec.
func (r *Reconciler) ConfirmRecord(ctx context.Context, c state.Collection, jobID string, rec core.Record) {
	r.store.Dispatch(ctx, state.ConfirmRecord{Collection: c, JobID: jobID, Server: rec})
}

// OnActionFailed surfaces a permanent failure as the operation error. The
// optimistic record stays in place.
func (r *Reconciler) OnActionFailed(ctx context.Context, a *core.QueuedAction, err error) {
	msg := security.SanitizeErrorMessage(
		fmt.Sprintf("could not %s job %s: %v", describe(a.Type), a.Payload.JobID, err))

	actions := []state.Action{
		state.SetOperationError{Message: msg},
		state.SetRetryCount{Count: 0},
	}
	actions = append(actions, clearInProgress(a)...)
	r.store.Dispatch(ctx, actions...)

	r.logger.Warn("action not synced", "action_id", a.ID, "type", a.Type, "job_id", a.Payload.JobID, "error", err)
}

// Rollback undoes the most recent swipe decision in the store and returns
// it. It returns core.ErrNothingToUndo when there is no decision to undo.
func (r *Reconciler) Rollback(ctx context.Context) (core.SessionAction, error) {
	snap := r.store.Snapshot()
	if len(snap.SessionActions) == 0 {
		return core.SessionAction{}, core.ErrNothingToUndo
	}
	last := snap.SessionActions[len(snap.SessionActions)-1]

	r.store.Dispatch(ctx, state.Rollback{Job: jobFor(snap, last), Last: last})
	r.logger.Debug("swipe rolled back", "job_id", last.JobID, "decision", last.Action)
	return last, nil
}

// Refresh pulls every collection from the backend and merges it into the
// store, keeping local records that are still pending sync. Jobs with an
// undelivered action keep their local state, so a queued unsave, unskip,
// unreport or rollback is not reverted by the server's older view. The
// first read error is recorded as the fetch error and returned.
func (r *Reconciler) Refresh(ctx context.Context) error {
	if r.reader == nil {
		return ErrNoReader
	}

	r.store.Dispatch(ctx, state.SetLoading{Loading: true})

	// Read the queue before the server so an action delivered mid-refresh
	// is still treated as queued against a snapshot that predates it.
	queued := r.queuedJobs()

	merges := make([]state.Action, 0, len(state.Collections)+2)
	for _, c := range state.Collections {
		records, err := r.reader.ListCollection(ctx, c)
		if err != nil {
			msg := security.SanitizeErrorMessage(fmt.Sprintf("could not load %s: %v", c, err))
			r.store.Dispatch(ctx, state.SetLoading{Loading: false}, state.SetFetchError{Message: msg})
			return fmt.Errorf("refresh %s: %w", c, err)
		}
		merges = append(merges, state.MergeCollection{Collection: c, Server: records, Queued: queued[c]})
	}

	merges = append(merges, state.SetFetchError{}, state.SetLoading{Loading: false})
	r.store.Dispatch(ctx, merges...)
	return nil
}

func (r *Reconciler) queuedJobs() map[state.Collection][]string {
	r.mu.Lock()
	p := r.pending
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	out := make(map[state.Collection][]string)
	for _, a := range p.Pending() {
		if c, ok := TouchedCollection(a); ok {
			out[c] = append(out[c], a.Payload.JobID)
		}
	}
	return out
}

// TouchedCollection returns the collection an action adds to or removes
// from. A rollback touches the collection of the decision it undoes.
func TouchedCollection(a *core.QueuedAction) (state.Collection, bool) {
	switch a.Type {
	case core.ActionUnskip:
		return state.CollectionSkipped, true
	case core.ActionUnreport:
		return state.CollectionReported, true
	case core.ActionRollback:
		switch a.Payload.Action {
		case core.DecisionAccepted:
			return state.CollectionApplications, true
		case core.DecisionSkipped:
			return state.CollectionSkipped, true
		}
		return "", false
	default:
		return CollectionFor(a.Type)
	}
}

func clearInProgress(a *core.QueuedAction) []state.Action {
	var out []state.Action
	switch a.Type {
	case core.ActionToggleSave:
		out = append(out, state.SetSavingJob{})
	case core.ActionReport:
		out = append(out, state.SetReportingJob{})
	}
	return out
}

// jobFor finds the job data for a session action: from the deck, then from
// a collection snapshot, falling back to the bare ID.
func jobFor(s state.Snapshot, last core.SessionAction) core.Job {
	for _, j := range s.Jobs {
		if j.ID == last.JobID {
			return j
		}
	}
	for _, c := range state.Collections {
		if rec, ok := s.Find(c, last.JobID); ok && rec.Job != nil {
			return rec.Job.Clone()
		}
	}
	return core.Job{ID: last.JobID}
}

func describe(t core.ActionType) string {
	switch t {
	case core.ActionAccept:
		return "apply to"
	case core.ActionToggleSave:
		return "save"
	case core.ActionRollback:
		return "undo"
	default:
		return string(t)
	}
}
