// Package state holds the optimistic view of the swipe deck and the user's
// collections.
//
// The package is built around a pure reducer:
//   - Snapshot: the serializable state (deck, cursor, collections, session actions, status fields)
//   - Action: a closed set of small transitions, one type per variant
//   - Reduce: the dispatcher applying one Action to a Snapshot
//   - Store: a mutex-guarded container that funnels every change through Reduce
//     and optionally persists the snapshot
//
// Reduce never mutates its input and never panics. Records created locally
// carry a temporary ID and PendingSync until the backend confirms them; the
// merge transitions keep such records over any concurrent server snapshot.
package state
