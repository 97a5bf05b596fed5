package swipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/reconcile"
	"github.com/jdziat/swipe-sync/pkg/state"
	"github.com/jdziat/swipe-sync/pkg/storage"
)

type staticJobs struct {
	jobs []core.Job
	err  error
}

func (s staticJobs) ListAllJobs(ctx context.Context) ([]core.Job, error) {
	return s.jobs, s.err
}

type serverCollections map[state.Collection][]core.Record

func (s serverCollections) ListCollection(ctx context.Context, c state.Collection) ([]core.Record, error) {
	return s[c], nil
}

type failingQueue struct{ err error }

func (f failingQueue) Enqueue(ctx context.Context, t core.ActionType, p core.Payload, opts ...queue.EnqueueOption) (string, error) {
	return "", f.err
}

type harness struct {
	ctrl      *Controller
	store     *state.Store
	queue     *queue.Queue
	server    serverCollections
	delivered []core.ActionType
}

func newHarness(t *testing.T, jobs ...core.Job) *harness {
	t.Helper()
	h := &harness{store: state.NewStore(), server: serverCollections{}}
	rc := reconcile.New(h.store, reconcile.WithReader(h.server))
	h.queue = queue.New(storage.NewMemoryStorage(),
		queue.AutoProcess(false),
		queue.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	rc.Attach(h.queue)

	for _, typ := range core.ActionTypes {
		typ := typ
		h.queue.Register(typ, func(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
			h.delivered = append(h.delivered, typ)
			switch typ {
			case core.ActionAccept, core.ActionSkip, core.ActionReport, core.ActionToggleSave:
				return &core.Record{ID: "srv-" + p.JobID, JobID: p.JobID, Reason: p.Reason}, nil
			}
			return nil, nil
		})
	}

	h.ctrl = New(h.store, h.queue, rc,
		WithJobSource(staticJobs{jobs: jobs}),
		WithClock(func() time.Time { return time.UnixMilli(1000) }),
	)
	return h
}

func testJobs(ids ...string) []core.Job {
	out := make([]core.Job, len(ids))
	for i, id := range ids {
		out[i] = core.Job{ID: id, Title: "Job " + id}
	}
	return out
}

func TestController_AcceptIsOptimisticThenConfirmed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testJobs("J1", "J2")...)
	require.NoError(t, h.ctrl.LoadJobs(ctx))

	job, err := h.ctrl.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, "J1", job.ID)

	snap := h.ctrl.State()
	assert.Equal(t, 1, snap.CurrentIndex)
	require.Len(t, snap.Applications, 1)
	assert.True(t, snap.Applications[0].PendingSync)
	assert.True(t, core.IsTempID(snap.Applications[0].ID))
	assert.Equal(t, 1, snap.QueueStatus.QueueLength)

	pending := h.queue.Pending()
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Payload.Job)
	assert.Equal(t, "Job J1", pending[0].Payload.Job.Title)

	h.queue.Process(ctx)

	snap = h.ctrl.State()
	require.Len(t, snap.Applications, 1)
	assert.Equal(t, "srv-J1", snap.Applications[0].ID)
	assert.False(t, snap.Applications[0].PendingSync)
	assert.Equal(t, 0, snap.QueueStatus.QueueLength)
}

func TestController_SwipesAndUndo(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testJobs("J1", "J2", "J3")...)
	require.NoError(t, h.ctrl.LoadJobs(ctx))

	_, err := h.ctrl.Reject(ctx)
	require.NoError(t, err)
	_, err = h.ctrl.Skip(ctx)
	require.NoError(t, err)

	snap := h.ctrl.State()
	assert.Equal(t, 2, snap.CurrentIndex)
	assert.True(t, snap.Has(state.CollectionSkipped, "J2"))

	last, err := h.ctrl.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SessionAction{JobID: "J2", Action: core.DecisionSkipped, Timestamp: 1000}, last)

	snap = h.ctrl.State()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.False(t, snap.Has(state.CollectionSkipped, "J2"))

	pending := h.queue.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, core.ActionRollback, pending[2].Type)
	assert.Equal(t, core.DecisionSkipped, pending[2].Payload.Action)

	h.queue.Process(ctx)
	assert.Equal(t, []core.ActionType{core.ActionReject, core.ActionSkip, core.ActionRollback}, h.delivered)
}

func TestController_UndoWithNothingToUndo(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Undo(context.Background())
	assert.ErrorIs(t, err, core.ErrNothingToUndo)
	assert.Equal(t, 0, h.queue.Len())
}

func TestController_EmptyDeck(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Accept(context.Background())
	assert.ErrorIs(t, err, ErrDeckEmpty)
}

func TestController_ToggleSave(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := core.Job{ID: "J7", Title: "SRE"}

	saved, err := h.ctrl.ToggleSave(ctx, job)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, "J7", h.ctrl.State().SavingJob)

	saved, err = h.ctrl.ToggleSave(ctx, job)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, h.ctrl.State().SavedJobs)

	h.queue.Process(ctx)
	snap := h.ctrl.State()
	assert.Empty(t, snap.SavedJobs)
	assert.Empty(t, snap.SavingJob)
}

func TestController_ReportAndUnreport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := core.Job{ID: "J3"}

	require.NoError(t, h.ctrl.Report(ctx, job, "scam"))
	rec, ok := h.ctrl.State().Find(state.CollectionReported, "J3")
	require.True(t, ok)
	assert.Equal(t, "scam", rec.Reason)
	assert.True(t, rec.PendingSync)

	h.queue.Process(ctx)
	rec, _ = h.ctrl.State().Find(state.CollectionReported, "J3")
	assert.Equal(t, "srv-J3", rec.ID)
	assert.Empty(t, h.ctrl.State().ReportingJob)

	require.NoError(t, h.ctrl.Unreport(ctx, "J3"))
	assert.Empty(t, h.ctrl.State().ReportedJobs)

	require.NoError(t, h.ctrl.Unskip(ctx, "J4"))
	assert.Error(t, h.ctrl.Unskip(ctx, ""))
}

func TestController_EnqueueFailureRevertsOptimisticState(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore()
	rc := reconcile.New(store)
	ctrl := New(store, failingQueue{err: core.ErrPayloadTooLarge}, rc)

	store.Dispatch(ctx, state.SetJobs{Jobs: testJobs("J1", "J2")})

	_, err := ctrl.Accept(ctx)
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)

	snap := store.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Empty(t, snap.Applications)
	assert.Empty(t, snap.SessionActions)
	assert.Contains(t, snap.OperationError, "exceeds size limit")

	ctrl.DismissError(ctx)
	assert.Empty(t, store.Snapshot().OperationError)

	_, err = ctrl.ToggleSave(ctx, core.Job{ID: "J1"})
	assert.Error(t, err)
	assert.Empty(t, store.Snapshot().SavedJobs)

	store.Dispatch(ctx, state.SkipJob{Record: core.Record{ID: "srv-1", JobID: "J5"}})
	assert.Error(t, ctrl.Unskip(ctx, "J5"))
	assert.True(t, store.Snapshot().Has(state.CollectionSkipped, "J5"))
}

func TestController_LoadJobsFiltersDecided(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testJobs("J1", "J2", "J3", "J4")...)

	h.store.Dispatch(ctx,
		state.SetApplications([]core.Record{{ID: "srv-1", JobID: "J1"}}),
		state.SetSkippedJobs([]core.Record{{ID: "temp-2", JobID: "J2", PendingSync: true}}),
	)
	require.NoError(t, h.ctrl.LoadJobs(ctx))

	snap := h.ctrl.State()
	require.Len(t, snap.Jobs, 2)
	assert.Equal(t, "J3", snap.Jobs[0].ID)
	assert.False(t, snap.Loading)
}

func TestController_LoadJobsError(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore()
	ctrl := New(store, failingQueue{}, reconcile.New(store), WithJobSource(staticJobs{err: errors.New("offline")}))

	assert.Error(t, ctrl.LoadJobs(ctx))
	assert.Equal(t, "offline", store.Snapshot().FetchError)

	assert.Error(t, New(store, failingQueue{}, reconcile.New(store)).LoadJobs(ctx))
}

func TestController_RefreshKeepsQueuedRemovals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testJobs("J4")...)
	require.NoError(t, h.ctrl.LoadJobs(ctx))

	_, err := h.ctrl.Accept(ctx)
	require.NoError(t, err)
	h.queue.Process(ctx)
	require.True(t, h.ctrl.State().Has(state.CollectionApplications, "J4"))

	h.server[state.CollectionSaved] = []core.Record{{ID: "srv-J1", JobID: "J1"}}
	h.server[state.CollectionSkipped] = []core.Record{{ID: "srv-J2", JobID: "J2"}}
	h.server[state.CollectionReported] = []core.Record{{ID: "srv-J3", JobID: "J3"}}
	h.server[state.CollectionApplications] = []core.Record{{ID: "srv-J4", JobID: "J4"}}
	require.NoError(t, h.ctrl.Refresh(ctx))

	saved, err := h.ctrl.ToggleSave(ctx, core.Job{ID: "J1"})
	require.NoError(t, err)
	require.False(t, saved)
	require.NoError(t, h.ctrl.Unskip(ctx, "J2"))
	require.NoError(t, h.ctrl.Unreport(ctx, "J3"))
	_, err = h.ctrl.Undo(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, h.queue.Len())

	require.NoError(t, h.ctrl.Refresh(ctx))

	snap := h.ctrl.State()
	assert.Empty(t, snap.SavedJobs)
	assert.Empty(t, snap.SkippedJobs)
	assert.Empty(t, snap.ReportedJobs)
	assert.Empty(t, snap.Applications)

	h.queue.Process(ctx)
	for c := range h.server {
		h.server[c] = nil
	}
	require.NoError(t, h.ctrl.Refresh(ctx))
	assert.Zero(t, h.ctrl.State().PendingCount())
	assert.Empty(t, h.ctrl.State().SavedJobs)
}

func TestController_UnsaveEnqueueFailureRestoresRecord(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore()
	ctrl := New(store, failingQueue{err: core.ErrPayloadTooLarge}, reconcile.New(store))

	canonical := core.Record{ID: "srv-J1", JobID: "J1", Status: "saved"}
	store.Dispatch(ctx, state.SetSavedJobs([]core.Record{canonical}))

	saved, err := ctrl.ToggleSave(ctx, core.Job{ID: "J1"})
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
	assert.True(t, saved)

	snap := store.Snapshot()
	assert.Equal(t, []core.Record{canonical}, snap.SavedJobs)
	assert.Empty(t, snap.SavingJob)
	assert.Zero(t, snap.PendingCount())
}
