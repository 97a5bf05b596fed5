// Package swipesync keeps job-swipe decisions usable offline: every mutating
// action is applied to local state at once, persisted in an ordered queue
// and delivered to the backend with retries once connectivity allows.
//
// The root package re-exports the types most callers need. The components
// themselves live under pkg/.
package swipesync

import (
	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/retry"
	"github.com/jdziat/swipe-sync/pkg/security"
	"github.com/jdziat/swipe-sync/pkg/state"
	"github.com/jdziat/swipe-sync/pkg/storage"
)

// Core types.
type (
	ActionType      = core.ActionType
	Payload         = core.Payload
	QueuedAction    = core.QueuedAction
	DeliveryOptions = core.DeliveryOptions
	QueueStatus     = core.QueueStatus
	Job             = core.Job
	Record          = core.Record
	Decision        = core.Decision
	SessionAction   = core.SessionAction
	Storage         = core.Storage
	Event           = core.Event
)

// Queue types.
type (
	Queue         = queue.Queue
	Option        = queue.Option
	EnqueueOption = queue.EnqueueOption
	TransportFunc = queue.TransportFunc
	RetryPolicy   = retry.Scheduler
)

// State types.
type (
	Snapshot   = state.Snapshot
	Store      = state.Store
	Collection = state.Collection
)

// Action types.
const (
	ActionAccept     = core.ActionAccept
	ActionReject     = core.ActionReject
	ActionSkip       = core.ActionSkip
	ActionUnskip     = core.ActionUnskip
	ActionToggleSave = core.ActionToggleSave
	ActionReport     = core.ActionReport
	ActionUnreport   = core.ActionUnreport
	ActionRollback   = core.ActionRollback
)

// Swipe decisions.
const (
	DecisionAccepted = core.DecisionAccepted
	DecisionRejected = core.DecisionRejected
	DecisionSkipped  = core.DecisionSkipped
)

// Errors.
var (
	ErrUnknownActionType = core.ErrUnknownActionType
	ErrNoTransport       = core.ErrNoTransport
	ErrInvalidJobID      = core.ErrInvalidJobID
	ErrPayloadTooLarge   = core.ErrPayloadTooLarge
	ErrRetriesExhausted  = core.ErrRetriesExhausted
	ErrNothingToUndo     = core.ErrNothingToUndo
)

// Queue construction and options.
var (
	New              = queue.New
	StorageKey       = queue.StorageKey
	WithRetry        = queue.WithRetry
	WithLogger       = queue.WithLogger
	WithContext      = queue.WithContext
	WithConnectivity = queue.WithConnectivity
	AutoProcess      = queue.AutoProcess
	WithKeyFactory   = queue.WithKeyFactory
	WithClock        = queue.WithClock
	WithSleep        = queue.WithSleep
	OnSuccess        = queue.OnSuccess
	OnFailure        = queue.OnFailure
)

// Validation limits.
const (
	MaxJobIDLength = security.MaxJobIDLength
	MaxPayloadSize = security.MaxPayloadSize
)

// Retry classification.
var (
	NoRetry     = core.NoRetry
	RetryAfter  = core.RetryAfter
	IsPermanent = core.IsPermanent
)

// DefaultRetryPolicy returns the standard policy: three attempts with
// exponential backoff from one second, evicting actions older than a week.
func DefaultRetryPolicy() RetryPolicy {
	return retry.DefaultScheduler()
}

// NewMemoryStorage returns a Storage that keeps everything in memory.
func NewMemoryStorage() *storage.MemoryStorage {
	return storage.NewMemoryStorage()
}

// NewStore creates an optimistic state store.
var NewStore = state.NewStore
