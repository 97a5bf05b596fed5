// Package security provides validation, sanitization, and limits for the swipe-sync packages.
package security

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdziat/swipe-sync/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobIDLength is the maximum length for job identifiers
	MaxJobIDLength = 255

	// MaxPayloadSize is the maximum size in bytes of a marshalled action payload (64KB)
	MaxPayloadSize = 64 << 10

	// MaxRetries is the hard limit for delivery attempts per action
	MaxRetries = 20

	// MaxErrorMessageLength is the maximum length for user-visible error messages
	MaxErrorMessageLength = 512

	// MaxStorageKeyLength is the maximum length for persisted storage keys
	MaxStorageKeyLength = 255
)

// validStorageKey matches alphanumeric, hyphens, underscores, dots and colons
var validStorageKey = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.:]*$`)

// ValidateActionType validates an action type
func ValidateActionType(t core.ActionType) error {
	if !t.Valid() {
		return core.ErrUnknownActionType
	}
	return nil
}

// ValidateJobID validates a job identifier: non-empty, bounded and printable.
func ValidateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return core.ErrInvalidJobID
	}
	if len(id) > MaxJobIDLength {
		return core.ErrJobIDTooLong
	}
	for _, r := range id {
		if !unicode.IsPrint(r) || r == '/' {
			return core.ErrInvalidJobID
		}
	}
	return nil
}

// ValidatePayloadSize rejects marshalled payloads above MaxPayloadSize
func ValidatePayloadSize(data []byte) error {
	if len(data) > MaxPayloadSize {
		return core.ErrPayloadTooLarge
	}
	return nil
}

// ValidStorageKey reports whether key may be used as a persisted storage key
func ValidStorageKey(key string) bool {
	return len(key) <= MaxStorageKeyLength && validStorageKey.MatchString(key)
}

// SanitizeErrorMessage truncates and sanitizes error messages for display
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}
