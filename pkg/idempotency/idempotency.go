// Package idempotency derives the keys that let the backend deduplicate
// repeated deliveries of one queued action.
package idempotency

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/swipe-sync/pkg/core"
)

// Factory creates idempotency keys. A key is created once per enqueued
// action and resent unchanged on every retry of that action.
type Factory struct {
	now    func() time.Time
	random func() string
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock sets the time source used for the timestamp component.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// WithRandom sets the source of the random component.
func WithRandom(random func() string) Option {
	return func(f *Factory) { f.random = random }
}

// NewFactory returns a Factory using the wall clock and random UUIDs.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		now: time.Now,
		random: func() string {
			return strings.ReplaceAll(uuid.New().String(), "-", "")
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns a key of the form type:target:nanos:random.
func (f *Factory) Create(t core.ActionType, targetID string) string {
	return fmt.Sprintf("%s:%s:%d:%s", t, targetID, f.now().UnixNano(), f.random())
}

// Parse splits a key produced by Create into its action type and target.
func Parse(key string) (core.ActionType, string, bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return "", "", false
	}
	return core.ActionType(parts[0]), parts[1], true
}
