// Package core provides the domain models and interfaces for the swipe-sync packages.
package core

import (
	"time"
)

// ActionType identifies the kind of mutating operation a QueuedAction delivers.
type ActionType string

const (
	ActionAccept     ActionType = "accept"
	ActionReject     ActionType = "reject"
	ActionSkip       ActionType = "skip"
	ActionUnskip     ActionType = "unskip"
	ActionToggleSave ActionType = "toggleSave"
	ActionReport     ActionType = "report"
	ActionUnreport   ActionType = "unreport"
	ActionRollback   ActionType = "rollback"
)

// ActionTypes lists every known action type.
var ActionTypes = []ActionType{
	ActionAccept,
	ActionReject,
	ActionSkip,
	ActionUnskip,
	ActionToggleSave,
	ActionReport,
	ActionUnreport,
	ActionRollback,
}

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Payload carries the operation-specific data of a QueuedAction.
type Payload struct {
	JobID  string   `json:"jobId"`
	Reason string   `json:"reason,omitempty"`
	Action Decision `json:"action,omitempty"` // rollback only: the decision being undone
	Job    *Job     `json:"job,omitempty"`
}

// QueuedAction is one pending mutating operation.
type QueuedAction struct {
	ID             string     `json:"id"`
	Type           ActionType `json:"type"`
	Payload        Payload    `json:"payload"`
	IdempotencyKey string     `json:"idempotencyKey"`
	Timestamp      int64      `json:"timestamp"` // unix milliseconds
	Retries        int        `json:"retries"`
	PendingSync    bool       `json:"pendingSync"`
}

// CreatedAt returns Timestamp as a time.Time.
func (a *QueuedAction) CreatedAt() time.Time {
	return time.UnixMilli(a.Timestamp)
}

// Age returns how long ago the action was created.
func (a *QueuedAction) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt())
}

// Clone returns a copy that shares no mutable state with a.
func (a *QueuedAction) Clone() *QueuedAction {
	c := *a
	if a.Payload.Job != nil {
		j := a.Payload.Job.Clone()
		c.Payload.Job = &j
	}
	return &c
}

// DeliveryOptions accompanies every transport call.
type DeliveryOptions struct {
	IdempotencyKey string
	Attempt        int // 1-based
}

// QueueStatus is the observable state of an action queue.
type QueueStatus struct {
	QueueLength int  `json:"queueLength"`
	Processing  bool `json:"processing"`
}
