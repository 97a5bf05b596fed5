// Package backend is the HTTP client for the job-swiping backend.
//
// It provides one queue.TransportFunc per action type, each sending the
// action's idempotency key in the Idempotency-Key header, plus the
// paginated read endpoints used to refresh collections and a health probe
// for the connectivity monitor.
//
// Responses are classified for the queue's retry policy: network errors,
// 408, 429 and 5xx are transient; any other non-2xx status is wrapped in
// core.NoRetry. A 429 with a Retry-After header is wrapped in
// core.RetryAfter.
package backend
