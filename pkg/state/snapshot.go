package state

import (
	"github.com/jdziat/swipe-sync/pkg/core"
)

// Collection names one of the user's record collections.
type Collection string

const (
	CollectionSaved        Collection = "saved"
	CollectionApplications Collection = "applications"
	CollectionSkipped      Collection = "skipped"
	CollectionReported     Collection = "reported"
)

// Collections lists every collection in a stable order.
var Collections = []Collection{
	CollectionSaved,
	CollectionApplications,
	CollectionSkipped,
	CollectionReported,
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Snapshot is the complete optimistic state. CurrentIndex is the cursor
// into Jobs and never exceeds len(Jobs).
type Snapshot struct {
	Jobs           []core.Job           `json:"jobs"`
	CurrentIndex   int                  `json:"currentIndex"`
	SavedJobs      []core.Record        `json:"savedJobs"`
	Applications   []core.Record        `json:"applications"`
	ReportedJobs   []core.Record        `json:"reportedJobs"`
	SkippedJobs    []core.Record        `json:"skippedJobs"`
	SessionActions []core.SessionAction `json:"sessionActions"`
	Loading        bool                 `json:"loading"`
	QueueStatus    core.QueueStatus     `json:"queueStatus"`
	FetchError     string               `json:"fetchError,omitempty"`
	OperationError string               `json:"operationError,omitempty"`
	RetryCount     int                  `json:"retryCount"`
	SavingJob      string               `json:"savingJob,omitempty"`
	ReportingJob   string               `json:"reportingJob,omitempty"`
}

// Initial returns an empty snapshot with every collection non-nil.
func Initial() Snapshot {
	return Snapshot{}.normalized()
}

// Current returns the job on top of the deck.
func (s Snapshot) Current() (core.Job, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Jobs) {
		return core.Job{}, false
	}
	return s.Jobs[s.CurrentIndex], true
}

// Remaining returns the number of jobs at or after the cursor.
func (s Snapshot) Remaining() int {
	if s.CurrentIndex >= len(s.Jobs) {
		return 0
	}
	return len(s.Jobs) - s.CurrentIndex
}

// Collection returns the records of c.
func (s Snapshot) Collection(c Collection) []core.Record {
	switch c {
	case CollectionSaved:
		return s.SavedJobs
	case CollectionApplications:
		return s.Applications
	case CollectionSkipped:
		return s.SkippedJobs
	case CollectionReported:
		return s.ReportedJobs
	default:
		return nil
	}
}

// Find returns the record for jobID in c.
func (s Snapshot) Find(c Collection, jobID string) (core.Record, bool) {
	for _, r := range s.Collection(c) {
		if r.JobID == jobID {
			return r, true
		}
	}
	return core.Record{}, false
}

// Has reports whether c holds a record for jobID.
func (s Snapshot) Has(c Collection, jobID string) bool {
	_, ok := s.Find(c, jobID)
	return ok
}

// PendingCount returns the number of records across all collections that
// the backend has not confirmed yet.
func (s Snapshot) PendingCount() int {
	n := 0
	for _, c := range Collections {
		for _, r := range s.Collection(c) {
			if r.PendingSync {
				n++
			}
		}
	}
	return n
}

func (s Snapshot) withCollection(c Collection, records []core.Record) Snapshot {
	if records == nil {
		records = []core.Record{}
	}
	switch c {
	case CollectionSaved:
		s.SavedJobs = records
	case CollectionApplications:
		s.Applications = records
	case CollectionSkipped:
		s.SkippedJobs = records
	case CollectionReported:
		s.ReportedJobs = records
	}
	return s
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Jobs = make([]core.Job, len(s.Jobs))
	for i, j := range s.Jobs {
		out.Jobs[i] = j.Clone()
	}
	out.SavedJobs = cloneRecords(s.SavedJobs)
	out.Applications = cloneRecords(s.Applications)
	out.ReportedJobs = cloneRecords(s.ReportedJobs)
	out.SkippedJobs = cloneRecords(s.SkippedJobs)
	out.SessionActions = append([]core.SessionAction{}, s.SessionActions...)
	return out
}

// normalized replaces nil slices with empty ones and clamps the cursor.
func (s Snapshot) normalized() Snapshot {
	if s.Jobs == nil {
		s.Jobs = []core.Job{}
	}
	if s.SavedJobs == nil {
		s.SavedJobs = []core.Record{}
	}
	if s.Applications == nil {
		s.Applications = []core.Record{}
	}
	if s.ReportedJobs == nil {
		s.ReportedJobs = []core.Record{}
	}
	if s.SkippedJobs == nil {
		s.SkippedJobs = []core.Record{}
	}
	if s.SessionActions == nil {
		s.SessionActions = []core.SessionAction{}
	}
	s.CurrentIndex = clampIndex(s.CurrentIndex, len(s.Jobs))
	return s
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func cloneRecords(in []core.Record) []core.Record {
	out := make([]core.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
