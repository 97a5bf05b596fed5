package core

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers created locally before server confirmation.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh temporary record identifier.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id was issued locally by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Job is a listing in the swipe deck.
type Job struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Company     string   `json:"company,omitempty"`
	Location    string   `json:"location,omitempty"`
	Salary      string   `json:"salary,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	if j.Tags != nil {
		j.Tags = append([]string(nil), j.Tags...)
	}
	return j
}

// Record is an entry of one of the user's collections: saved, applications,
// skipped or reported. Records created by the user before the server has
// confirmed them carry a temporary ID and PendingSync.
type Record struct {
	ID          string `json:"id"`
	JobID       string `json:"jobId"`
	Status      string `json:"status,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Job         *Job   `json:"job,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"` // unix milliseconds
	PendingSync bool   `json:"pendingSync"`
}

// Optimistic builds a pending record for job with a temporary ID.
func Optimistic(job Job, status string, createdAt int64) Record {
	j := job.Clone()
	return Record{
		ID:          NewTempID(),
		JobID:       job.ID,
		Status:      status,
		Job:         &j,
		CreatedAt:   createdAt,
		PendingSync: true,
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r.Job != nil {
		j := r.Job.Clone()
		r.Job = &j
	}
	return r
}

// Decision is the outcome of a swipe.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
	DecisionSkipped  Decision = "skipped"
)

// SessionAction records a swipe decision so the latest one can be undone.
type SessionAction struct {
	JobID     string   `json:"jobId"`
	Action    Decision `json:"action"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
}
