package backend

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jdziat/swipe-sync/pkg/core"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend: %s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

// Transient reports whether the request may succeed if repeated.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests ||
		e.Code >= 500
}

// classify maps a non-2xx response to the error the queue acts on.
func classify(e *StatusError, header http.Header) error {
	if e.Code == http.StatusTooManyRequests {
		if d, ok := retryAfter(header.Get("Retry-After")); ok {
			return core.RetryAfter(d, e)
		}
	}
	if e.Transient() {
		return e
	}
	return core.NoRetry(e)
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
