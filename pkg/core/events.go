package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// ActionEnqueued is emitted when an action is appended to the queue.
type ActionEnqueued struct {
	Action    *QueuedAction
	Timestamp time.Time
}

func (*ActionEnqueued) eventMarker() {}

// ActionSucceeded is emitted when the transport confirms an action.
type ActionSucceeded struct {
	Action    *QueuedAction
	Record    *Record
	Duration  time.Duration
	Timestamp time.Time
}

func (*ActionSucceeded) eventMarker() {}

// ActionRetrying is emitted when a failed action is scheduled for another attempt.
type ActionRetrying struct {
	Action    *QueuedAction
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*ActionRetrying) eventMarker() {}

// ActionFailed is emitted when an action fails permanently.
type ActionFailed struct {
	Action    *QueuedAction
	Error     error
	Timestamp time.Time
}

func (*ActionFailed) eventMarker() {}

// ActionEvicted is emitted when a stale action is dropped at load time.
type ActionEvicted struct {
	Action    *QueuedAction
	Age       time.Duration
	Timestamp time.Time
}

func (*ActionEvicted) eventMarker() {}

// QueueCleared is emitted when the queue is emptied.
type QueueCleared struct {
	Dropped   int
	Timestamp time.Time
}

func (*QueueCleared) eventMarker() {}

// ConnectivityChanged is emitted when the online monitor observes a transition.
type ConnectivityChanged struct {
	Online    bool
	Timestamp time.Time
}

func (*ConnectivityChanged) eventMarker() {}

// EventName returns a short stable name for e, used on wire formats.
func EventName(e Event) string {
	switch e.(type) {
	case *ActionEnqueued:
		return "action.enqueued"
	case *ActionSucceeded:
		return "action.succeeded"
	case *ActionRetrying:
		return "action.retrying"
	case *ActionFailed:
		return "action.failed"
	case *ActionEvicted:
		return "action.evicted"
	case *QueueCleared:
		return "queue.cleared"
	case *ConnectivityChanged:
		return "connectivity.changed"
	default:
		return "unknown"
	}
}
