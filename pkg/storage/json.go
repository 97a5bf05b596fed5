package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jdziat/swipe-sync/pkg/core"
)

// GetJSON loads the blob under key into v. It returns core.ErrNotFound
// when the key is absent.
func GetJSON(ctx context.Context, s core.Storage, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, s core.Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
