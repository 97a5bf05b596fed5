package state

import (
	"github.com/jdziat/swipe-sync/pkg/core"
)

// Action is one state transition. The set of implementations is closed;
// each variant is a small pure function of the previous snapshot.
type Action interface {
	apply(Snapshot) Snapshot
}

// Reduce applies a to s and returns the new snapshot. s is not modified.
// A nil action leaves the state unchanged.
func Reduce(s Snapshot, a Action) Snapshot {
	s = s.normalized()
	if a == nil {
		return s
	}
	return a.apply(s).normalized()
}

// ReduceAll applies actions in order.
func ReduceAll(s Snapshot, actions ...Action) Snapshot {
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s.normalized()
}

// Deck

// SetJobs replaces the deck and moves the cursor to its front.
type SetJobs struct{ Jobs []core.Job }

func (a SetJobs) apply(s Snapshot) Snapshot {
	s.Jobs = append([]core.Job{}, a.Jobs...)
	s.CurrentIndex = 0
	return s
}

// AppendJobs adds a page of jobs to the end of the deck, skipping jobs
// already present.
type AppendJobs struct{ Jobs []core.Job }

func (a AppendJobs) apply(s Snapshot) Snapshot {
	seen := make(map[string]bool, len(s.Jobs))
	for _, j := range s.Jobs {
		seen[j.ID] = true
	}
	jobs := append([]core.Job{}, s.Jobs...)
	for _, j := range a.Jobs {
		if seen[j.ID] {
			continue
		}
		seen[j.ID] = true
		jobs = append(jobs, j)
	}
	s.Jobs = jobs
	return s
}

// SetCurrentIndex moves the cursor, clamped to [0, len(Jobs)].
type SetCurrentIndex struct{ Index int }

func (a SetCurrentIndex) apply(s Snapshot) Snapshot {
	s.CurrentIndex = clampIndex(a.Index, len(s.Jobs))
	return s
}

// AdvanceCursor moves the cursor one job forward.
type AdvanceCursor struct{}

func (AdvanceCursor) apply(s Snapshot) Snapshot {
	s.CurrentIndex = clampIndex(s.CurrentIndex+1, len(s.Jobs))
	return s
}

// Collections

// SetCollection replaces every record of a collection. A nil slice clears it.
type SetCollection struct {
	Collection Collection
	Records    []core.Record
}

func (a SetCollection) apply(s Snapshot) Snapshot {
	if !a.Collection.Valid() {
		return s
	}
	return s.withCollection(a.Collection, cloneRecords(a.Records))
}

// SetSavedJobs replaces the saved collection.
func SetSavedJobs(records []core.Record) Action {
	return SetCollection{Collection: CollectionSaved, Records: records}
}

// SetApplications replaces the applications collection.
func SetApplications(records []core.Record) Action {
	return SetCollection{Collection: CollectionApplications, Records: records}
}

// SetSkippedJobs replaces the skipped collection.
func SetSkippedJobs(records []core.Record) Action {
	return SetCollection{Collection: CollectionSkipped, Records: records}
}

// SetReportedJobs replaces the reported collection.
func SetReportedJobs(records []core.Record) Action {
	return SetCollection{Collection: CollectionReported, Records: records}
}

// AddRecord inserts a record into a collection. An existing record for the
// same job is replaced in place.
type AddRecord struct {
	Collection Collection
	Record     core.Record
}

func (a AddRecord) apply(s Snapshot) Snapshot {
	if !a.Collection.Valid() {
		return s
	}
	return s.withCollection(a.Collection, upsert(s.Collection(a.Collection), a.Record))
}

// RemoveRecord deletes the record for JobID from a collection.
type RemoveRecord struct {
	Collection Collection
	JobID      string
}

func (a RemoveRecord) apply(s Snapshot) Snapshot {
	if !a.Collection.Valid() {
		return s
	}
	return s.withCollection(a.Collection, without(s.Collection(a.Collection), a.JobID))
}

// AddApplication records an accepted job.
type AddApplication struct{ Record core.Record }

func (a AddApplication) apply(s Snapshot) Snapshot {
	return AddRecord{Collection: CollectionApplications, Record: a.Record}.apply(s)
}

// UpdateApplication replaces the application with the same ID, or failing
// that the one for the same job. Unknown applications are ignored.
type UpdateApplication struct{ Record core.Record }

func (a UpdateApplication) apply(s Snapshot) Snapshot {
	idx := -1
	for i, r := range s.Applications {
		if r.ID == a.Record.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = indexOf(s.Applications, a.Record.JobID)
	}
	if idx < 0 {
		return s
	}
	apps := cloneRecords(s.Applications)
	apps[idx] = a.Record.Clone()
	s.Applications = apps
	return s
}

// RemoveApplication deletes the application for JobID.
type RemoveApplication struct{ JobID string }

func (a RemoveApplication) apply(s Snapshot) Snapshot {
	return RemoveRecord{Collection: CollectionApplications, JobID: a.JobID}.apply(s)
}

// ToggleSavedJob adds the record when the job is not saved and removes the
// saved record when it is.
type ToggleSavedJob struct{ Record core.Record }

func (a ToggleSavedJob) apply(s Snapshot) Snapshot {
	if indexOf(s.SavedJobs, a.Record.JobID) >= 0 {
		s.SavedJobs = without(s.SavedJobs, a.Record.JobID)
		return s
	}
	s.SavedJobs = upsert(s.SavedJobs, a.Record)
	return s
}

// SkipJob adds a skipped record.
type SkipJob struct{ Record core.Record }

func (a SkipJob) apply(s Snapshot) Snapshot {
	s.SkippedJobs = upsert(s.SkippedJobs, a.Record)
	return s
}

// UnskipJob removes the skipped record for JobID.
type UnskipJob struct{ JobID string }

func (a UnskipJob) apply(s Snapshot) Snapshot {
	s.SkippedJobs = without(s.SkippedJobs, a.JobID)
	return s
}

// ReportJob adds a reported record.
type ReportJob struct{ Record core.Record }

func (a ReportJob) apply(s Snapshot) Snapshot {
	s.ReportedJobs = upsert(s.ReportedJobs, a.Record)
	return s
}

// UnreportJob removes the reported record for JobID.
type UnreportJob struct{ JobID string }

func (a UnreportJob) apply(s Snapshot) Snapshot {
	s.ReportedJobs = without(s.ReportedJobs, a.JobID)
	return s
}

// Session actions

// AddSessionAction appends a swipe decision.
type AddSessionAction struct{ Action core.SessionAction }

func (a AddSessionAction) apply(s Snapshot) Snapshot {
	actions := make([]core.SessionAction, 0, len(s.SessionActions)+1)
	actions = append(actions, s.SessionActions...)
	s.SessionActions = append(actions, a.Action)
	return s
}

// PopSessionAction drops the most recent swipe decision.
type PopSessionAction struct{}

func (PopSessionAction) apply(s Snapshot) Snapshot {
	if len(s.SessionActions) == 0 {
		return s
	}
	s.SessionActions = append([]core.SessionAction{}, s.SessionActions[:len(s.SessionActions)-1]...)
	return s
}

// ClearSessionActions forgets every swipe decision.
type ClearSessionActions struct{}

func (ClearSessionActions) apply(s Snapshot) Snapshot {
	s.SessionActions = []core.SessionAction{}
	return s
}

// Composite transitions

// Rollback undoes the most recent swipe. Job is put back into the deck at
// the cursor position after the cursor steps back by one, which is not
// necessarily where it was originally. Last identifies the decision being
// undone; when its Action is empty the latest session action is used.
// With no session actions the transition is a no-op.
type Rollback struct {
	Job  core.Job
	Last core.SessionAction
}

func (a Rollback) apply(s Snapshot) Snapshot {
	n := len(s.SessionActions)
	if n == 0 {
		return s
	}
	last := a.Last
	if last.Action == "" {
		last = s.SessionActions[n-1]
	}
	jobID := a.Job.ID
	if jobID == "" {
		jobID = last.JobID
	}

	idx := s.CurrentIndex - 1
	if idx < 0 {
		idx = 0
	}

	jobs := make([]core.Job, 0, len(s.Jobs)+1)
	removedBefore := 0
	for i, j := range s.Jobs {
		if j.ID == jobID {
			if i < idx {
				removedBefore++
			}
			continue
		}
		jobs = append(jobs, j)
	}
	idx = clampIndex(idx-removedBefore, len(jobs))

	job := a.Job
	if job.ID == "" {
		job = core.Job{ID: jobID}
	}
	jobs = append(jobs, core.Job{})
	copy(jobs[idx+1:], jobs[idx:])
	jobs[idx] = job.Clone()

	s.Jobs = jobs
	s.CurrentIndex = idx
	s = PopSessionAction{}.apply(s)

	switch last.Action {
	case core.DecisionAccepted:
		s.Applications = without(s.Applications, jobID)
	case core.DecisionSkipped:
		s.SkippedJobs = without(s.SkippedJobs, jobID)
	}
	return s
}

// MergeCollection reconciles a collection with a server snapshot. Local
// records still pending sync win over server records for the same job, as
// does local state for jobs listed in Queued.
type MergeCollection struct {
	Collection Collection
	Server     []core.Record
	Queued     []string
}

func (a MergeCollection) apply(s Snapshot) Snapshot {
	if !a.Collection.Valid() {
		return s
	}
	return s.withCollection(a.Collection, MergePending(s.Collection(a.Collection), a.Server, a.Queued...))
}

// MergeSkippedJobs reconciles the skipped collection with a server snapshot.
func MergeSkippedJobs(server []core.Record) Action {
	return MergeCollection{Collection: CollectionSkipped, Server: server}
}

// ConfirmRecord replaces the temporary record for JobID with the
// server-issued one, in place. Without a temporary record for the job the
// transition is a no-op.
type ConfirmRecord struct {
	Collection Collection
	JobID      string
	Server     core.Record
}

func (a ConfirmRecord) apply(s Snapshot) Snapshot {
	if !a.Collection.Valid() {
		return s
	}
	records := s.Collection(a.Collection)
	idx := -1
	for i, r := range records {
		if r.JobID == a.JobID && core.IsTempID(r.ID) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s
	}

	confirmed := a.Server.Clone()
	if confirmed.JobID == "" {
		confirmed.JobID = a.JobID
	}
	if confirmed.Job == nil && records[idx].Job != nil {
		j := records[idx].Job.Clone()
		confirmed.Job = &j
	}
	if confirmed.CreatedAt == 0 {
		confirmed.CreatedAt = records[idx].CreatedAt
	}
	confirmed.PendingSync = false

	out := cloneRecords(records)
	out[idx] = confirmed
	return s.withCollection(a.Collection, out)
}

// Status fields

// SetLoading sets the loading flag.
type SetLoading struct{ Loading bool }

func (a SetLoading) apply(s Snapshot) Snapshot {
	s.Loading = a.Loading
	return s
}

// SetFetchError records a failed read of the backend.
type SetFetchError struct{ Message string }

func (a SetFetchError) apply(s Snapshot) Snapshot {
	s.FetchError = a.Message
	return s
}

// SetOperationError records a user-visible operation failure.
type SetOperationError struct{ Message string }

func (a SetOperationError) apply(s Snapshot) Snapshot {
	s.OperationError = a.Message
	return s
}

// ClearOperationError dismisses the operation error.
type ClearOperationError struct{}

func (ClearOperationError) apply(s Snapshot) Snapshot {
	s.OperationError = ""
	return s
}

// SetQueueStatus mirrors the action queue status.
type SetQueueStatus struct{ Status core.QueueStatus }

func (a SetQueueStatus) apply(s Snapshot) Snapshot {
	s.QueueStatus = a.Status
	return s
}

// SetRetryCount mirrors the retry counter of the action being delivered.
type SetRetryCount struct{ Count int }

func (a SetRetryCount) apply(s Snapshot) Snapshot {
	if a.Count < 0 {
		a.Count = 0
	}
	s.RetryCount = a.Count
	return s
}

// SetSavingJob marks the job whose save toggle is in progress. An empty
// JobID clears it.
type SetSavingJob struct{ JobID string }

func (a SetSavingJob) apply(s Snapshot) Snapshot {
	s.SavingJob = a.JobID
	return s
}

// SetReportingJob marks the job whose report is in progress.
type SetReportingJob struct{ JobID string }

func (a SetReportingJob) apply(s Snapshot) Snapshot {
	s.ReportingJob = a.JobID
	return s
}

// Reset returns to the initial state.
type Reset struct{}

func (Reset) apply(Snapshot) Snapshot {
	return Initial()
}

func indexOf(records []core.Record, jobID string) int {
	for i, r := range records {
		if r.JobID == jobID {
			return i
		}
	}
	return -1
}

// upsert returns a copy of records with r added, or replacing the record
// for the same job in place.
func upsert(records []core.Record, r core.Record) []core.Record {
	out := cloneRecords(records)
	if idx := indexOf(out, r.JobID); idx >= 0 {
		out[idx] = r.Clone()
		return out
	}
	return append(out, r.Clone())
}

// without returns a copy of records with every record for jobID removed.
func without(records []core.Record, jobID string) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if r.JobID == jobID {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}
