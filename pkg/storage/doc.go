// Package storage provides persistent key/value implementations of core.Storage.
//
// This package includes:
//   - GormStorage: a GORM-based implementation (SQLite by default)
//   - BadgerStorage: an embedded Badger key/value implementation
//   - MemoryStorage: a process-local implementation for tests and demos
//   - GetJSON/SetJSON: helpers for JSON-serializable blobs
//
// The Storage interface is defined in pkg/core and must be implemented
// by any custom storage backend.
package storage
