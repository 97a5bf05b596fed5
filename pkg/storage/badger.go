package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/jdziat/swipe-sync/pkg/core"
)

// BadgerStorage implements core.Storage on an embedded Badger database.
type BadgerStorage struct {
	db        *badger.DB
	namespace string
}

// BadgerOption configures a BadgerStorage.
type BadgerOption func(*BadgerStorage)

// WithNamespace prefixes every key, so several logical stores can share one database.
func WithNamespace(ns string) BadgerOption {
	return func(s *BadgerStorage) { s.namespace = ns }
}

// OpenBadger opens (or creates) a Badger database under dataDir.
func OpenBadger(dataDir string, opts ...BadgerOption) (*BadgerStorage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	bopts := badger.DefaultOptions(filepath.Join(dataDir, "badger"))
	bopts.Logger = nil

	return openBadger(bopts, opts...)
}

// OpenBadgerInMemory opens a Badger database that lives only in memory.
func OpenBadgerInMemory(opts ...BadgerOption) (*BadgerStorage, error) {
	bopts := badger.DefaultOptions("").WithInMemory(true)
	bopts.Logger = nil

	return openBadger(bopts, opts...)
}

func openBadger(bopts badger.Options, opts ...BadgerOption) (*BadgerStorage, error) {
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStorage{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) fullKey(key string) []byte {
	return []byte(s.namespace + key)
}

// Get retrieves the value stored under key.
func (s *BadgerStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.fullKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrNotFound
	}
	return value, err
}

// Set stores value under key.
func (s *BadgerStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.fullKey(key), value)
	})
}

// Remove deletes key if present.
func (s *BadgerStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.fullKey(key))
	})
}

// Keys lists stored keys within the namespace.
func (s *BadgerStorage) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(s.namespace)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})

	return keys, err
}
