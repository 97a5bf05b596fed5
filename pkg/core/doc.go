// Package core provides the fundamental types and interfaces for the swipe-sync packages.
//
// This package contains:
//   - QueuedAction, Payload and ActionType: the persisted unit of pending work
//   - Job, Record and SessionAction: the optimistic view models
//   - Storage interface defining the persistence contract
//   - Event types for queue monitoring
//   - Error types for delivery processing
//
// Most users should import the root package github.com/jdziat/swipe-sync
// instead of this package directly.
package core
