// Package security provides validation, sanitization, and limits for the swipe-sync packages.
//
// This package includes:
//   - Input validation for action types, job identifiers and storage keys
//   - Error message sanitization before it reaches the user-visible state
//   - Clamping functions to enforce safe limits on retries
//   - Security-related constants defining maximum sizes and counts
//
// Most users should import the root package github.com/jdziat/swipe-sync
// which re-exports these limits.
package security
