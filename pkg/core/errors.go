package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation and delivery errors
var (
	ErrUnknownActionType = errors.New("swipesync: unknown action type")
	ErrNoTransport       = errors.New("swipesync: no transport registered for action type")
	ErrInvalidJobID      = errors.New("swipesync: invalid job id")
	ErrJobIDTooLong      = errors.New("swipesync: job id too long")
	ErrPayloadTooLarge   = errors.New("swipesync: action payload exceeds size limit")
	ErrNotFound          = errors.New("swipesync: key not found")
	ErrRetriesExhausted  = errors.New("swipesync: retries exhausted")
	ErrOffline           = errors.New("swipesync: offline")
	ErrNothingToUndo     = errors.New("swipesync: no session action to undo")
)

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}

// IsPermanent reports whether err was marked with NoRetry.
func IsPermanent(err error) bool {
	var nr *NoRetryError
	return errors.As(err, &nr)
}
