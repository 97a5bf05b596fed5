package core

import (
	"context"
)

// Storage is the persistence contract every component uses for durability
// across reloads: opaque JSON blobs addressed by a logical key.
type Storage interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Migrator is implemented by storages that need schema setup before use.
type Migrator interface {
	Migrate(ctx context.Context) error
}
