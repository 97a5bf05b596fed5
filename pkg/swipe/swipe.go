// Package swipe implements the user-facing swipe operations. Each operation
// updates the optimistic state first and then enqueues the matching action
// for delivery.
package swipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/reconcile"
	"github.com/jdziat/swipe-sync/pkg/security"
	"github.com/jdziat/swipe-sync/pkg/state"
)

// ErrDeckEmpty is returned when there is no job on top of the deck.
var ErrDeckEmpty = errors.New("swipesync: no job left in the deck")

// Enqueuer accepts actions for delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, t core.ActionType, payload core.Payload, opts ...queue.EnqueueOption) (string, error)
}

// JobSource loads the job deck.
type JobSource interface {
	ListAllJobs(ctx context.Context) ([]core.Job, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithJobSource sets where LoadJobs reads the deck from.
func WithJobSource(src JobSource) Option {
	return func(c *Controller) { c.jobs = src }
}

// WithClock sets the time source for record and session timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller applies user operations to the store and the queue.
type Controller struct {
	store      *state.Store
	queue      Enqueuer
	reconciler *reconcile.Reconciler
	jobs       JobSource
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a Controller.
func New(store *state.Store, q Enqueuer, rc *reconcile.Reconciler, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		queue:      q,
		reconciler: rc,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Accept applies to the job on top of the deck.
func (c *Controller) Accept(ctx context.Context) (core.Job, error) {
	return c.swipe(ctx, core.DecisionAccepted)
}

// Reject passes on the job on top of the deck.
func (c *Controller) Reject(ctx context.Context) (core.Job, error) {
	return c.swipe(ctx, core.DecisionRejected)
}

// Skip sets the job on top of the deck aside.
func (c *Controller) Skip(ctx context.Context) (core.Job, error) {
	return c.swipe(ctx, core.DecisionSkipped)
}

func (c *Controller) swipe(ctx context.Context, d core.Decision) (core.Job, error) {
	job, ok := c.store.Snapshot().Current()
	if !ok {
		return core.Job{}, ErrDeckEmpty
	}
	ts := c.now().UnixMilli()
	session := core.SessionAction{JobID: job.ID, Action: d, Timestamp: ts}

	actions := []state.Action{
		state.AddSessionAction{Action: session},
		state.AdvanceCursor{},
	}
	var t core.ActionType
	switch d {
	case core.DecisionAccepted:
		t = core.ActionAccept
		actions = append(actions, state.AddApplication{Record: core.Optimistic(job, "applied", ts)})
	case core.DecisionSkipped:
		t = core.ActionSkip
		actions = append(actions, state.SkipJob{Record: core.Optimistic(job, "skipped", ts)})
	default:
		t = core.ActionReject
	}
	c.store.Dispatch(ctx, actions...)

	j := job.Clone()
	if _, err := c.queue.Enqueue(ctx, t, core.Payload{JobID: job.ID, Job: &j}); err != nil {
		c.store.Dispatch(ctx,
			state.Rollback{Job: job, Last: session},
			state.SetOperationError{Message: security.SanitizeErrorMessage(err.Error())},
		)
		return job, fmt.Errorf("enqueue %s: %w", t, err)
	}
	return job, nil
}

// Undo rolls back the most recent swipe locally and enqueues the rollback
// for the backend.
func (c *Controller) Undo(ctx context.Context) (core.SessionAction, error) {
	last, err := c.reconciler.Rollback(ctx)
	if err != nil {
		return last, err
	}
	if _, err := c.queue.Enqueue(ctx, core.ActionRollback, core.Payload{JobID: last.JobID, Action: last.Action}); err != nil {
		c.fail(ctx, err)
		return last, fmt.Errorf("enqueue rollback: %w", err)
	}
	return last, nil
}

// ToggleSave saves job, or unsaves it when it is already saved. It reports
// whether the job is saved afterwards.
func (c *Controller) ToggleSave(ctx context.Context, job core.Job) (bool, error) {
	prev, wasSaved := c.store.Snapshot().Find(state.CollectionSaved, job.ID)
	saved := !wasSaved
	rec := core.Optimistic(job, "saved", c.now().UnixMilli())

	c.store.Dispatch(ctx, state.ToggleSavedJob{Record: rec}, state.SetSavingJob{JobID: job.ID})

	j := job.Clone()
	if _, err := c.queue.Enqueue(ctx, core.ActionToggleSave, core.Payload{JobID: job.ID, Job: &j}); err != nil {
		revert := state.Action(state.RemoveRecord{Collection: state.CollectionSaved, JobID: job.ID})
		if wasSaved {
			revert = state.AddRecord{Collection: state.CollectionSaved, Record: prev}
		}
		c.store.Dispatch(ctx, revert, state.SetSavingJob{})
		c.fail(ctx, err)
		return !saved, fmt.Errorf("enqueue %s: %w", core.ActionToggleSave, err)
	}
	return saved, nil
}

// Unskip removes job from the skipped collection.
func (c *Controller) Unskip(ctx context.Context, jobID string) error {
	return c.remove(ctx, core.ActionUnskip, state.UnskipJob{JobID: jobID}, jobID)
}

// Report flags job with reason.
func (c *Controller) Report(ctx context.Context, job core.Job, reason string) error {
	rec := core.Optimistic(job, "reported", c.now().UnixMilli())
	rec.Reason = reason

	c.store.Dispatch(ctx, state.ReportJob{Record: rec}, state.SetReportingJob{JobID: job.ID})

	j := job.Clone()
	if _, err := c.queue.Enqueue(ctx, core.ActionReport, core.Payload{JobID: job.ID, Reason: reason, Job: &j}); err != nil {
		c.store.Dispatch(ctx, state.UnreportJob{JobID: job.ID}, state.SetReportingJob{})
		c.fail(ctx, err)
		return fmt.Errorf("enqueue %s: %w", core.ActionReport, err)
	}
	return nil
}

// Unreport withdraws the report of jobID.
func (c *Controller) Unreport(ctx context.Context, jobID string) error {
	return c.remove(ctx, core.ActionUnreport, state.UnreportJob{JobID: jobID}, jobID)
}

func (c *Controller) remove(ctx context.Context, t core.ActionType, a state.Action, jobID string) error {
	if err := security.ValidateJobID(jobID); err != nil {
		return err
	}
	before := c.store.Snapshot()
	c.store.Dispatch(ctx, a)

	if _, err := c.queue.Enqueue(ctx, t, core.Payload{JobID: jobID}); err != nil {
		c.store.Dispatch(ctx, restore(before, jobID, t))
		c.fail(ctx, err)
		return fmt.Errorf("enqueue %s: %w", t, err)
	}
	return nil
}

// restore re-adds the record an unskip or unreport removed.
func restore(before state.Snapshot, jobID string, t core.ActionType) state.Action {
	c := state.CollectionSkipped
	if t == core.ActionUnreport {
		c = state.CollectionReported
	}
	if rec, ok := before.Find(c, jobID); ok {
		return state.AddRecord{Collection: c, Record: rec}
	}
	return nil
}

// LoadJobs replaces the deck with the backend's jobs, leaving out jobs the
// user already applied to, skipped or reported.
func (c *Controller) LoadJobs(ctx context.Context) error {
	if c.jobs == nil {
		return errors.New("swipesync: no job source configured")
	}

	c.store.Dispatch(ctx, state.SetLoading{Loading: true})
	jobs, err := c.jobs.ListAllJobs(ctx)
	if err != nil {
		c.store.Dispatch(ctx,
			state.SetLoading{Loading: false},
			state.SetFetchError{Message: security.SanitizeErrorMessage(err.Error())},
		)
		return fmt.Errorf("load jobs: %w", err)
	}

	snap := c.store.Snapshot()
	deck := make([]core.Job, 0, len(jobs))
	for _, j := range jobs {
		if snap.Has(state.CollectionApplications, j.ID) ||
			snap.Has(state.CollectionSkipped, j.ID) ||
			snap.Has(state.CollectionReported, j.ID) {
			continue
		}
		deck = append(deck, j)
	}

	c.store.Dispatch(ctx,
		state.SetJobs{Jobs: deck},
		state.ClearSessionActions{},
		state.SetFetchError{},
		state.SetLoading{Loading: false},
	)
	c.logger.Debug("deck loaded", "jobs", len(deck), "filtered", len(jobs)-len(deck))
	return nil
}

// Refresh merges the backend's collections into the local state.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.reconciler.Refresh(ctx)
}

// DismissError clears the operation error.
func (c *Controller) DismissError(ctx context.Context) {
	c.store.Dispatch(ctx, state.ClearOperationError{})
}

// State returns the current snapshot.
func (c *Controller) State() state.Snapshot {
	return c.store.Snapshot()
}

func (c *Controller) fail(ctx context.Context, err error) {
	c.logger.Warn("operation rejected", "error", err)
	c.store.Dispatch(ctx, state.SetOperationError{Message: security.SanitizeErrorMessage(err.Error())})
}
