// Package retry provides the deterministic backoff policy for queued actions.
//
// This package includes:
//   - Scheduler: base * 2^(n-1) delays, exhaustion and staleness decisions
//   - Sleep: a context-aware wait used between delivery attempts
//
// The policy has no jitter so delivery timing is reproducible in tests.
package retry
