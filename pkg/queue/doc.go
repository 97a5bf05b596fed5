// Package queue provides the persistent, ordered queue of pending actions.
//
// This package includes:
//   - Queue: FIFO delivery of queued actions through per-type transports
//   - Option / EnqueueOption: configuration for the queue and single enqueues
//   - Hook registration for delivery lifecycle (success, retry, failure)
//   - Listener and event subscription for monitoring
//
// Every mutation is written to the configured core.Storage before the call
// returns, so a restarted process resumes from the last persisted state,
// retry counters included.
//
// Most users should import the root package github.com/jdziat/swipe-sync
// which re-exports Queue and all option functions.
package queue
