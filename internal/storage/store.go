// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package storage wraps the embedded BadgerDB store shared by the action
// queue, profile snapshots and learning paths. Writes are fsynced when
// SyncWrites is enabled, so queued actions survive process crashes.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/logging"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("storage: store is closed")
)

// Store is a thin wrapper around BadgerDB. All values are JSON-encoded.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	gcDiscardRatio float64
}

// Open creates (or reopens) the store at the configured path.
func Open(cfg config.StorageConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("storage opened")

	return &Store{db: db, gcDiscardRatio: cfg.GCDiscardRatio}, nil
}

// OpenInMemory creates an in-memory store for tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}
	return &Store{db: db, gcDiscardRatio: 0.5}, nil
}

// Close shuts the store down. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Set JSON-encodes the value and stores it under key.
func (s *Store) Set(key string, value interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get loads the value stored under key into out.
func (s *Store) Get(key string, out interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// IteratePrefix calls fn for every key with the given prefix, passing the raw
// JSON value. Iteration stops on the first error from fn.
func (s *Store) IteratePrefix(prefix string, fn func(key string, value []byte) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				// Copy: the slice is only valid inside the closure
				cp := bytes.Clone(val)
				return fn(key, cp)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", prefix, err)
	}
	return nil
}

// CountPrefix returns the number of keys with the given prefix.
func (s *Store) CountPrefix(prefix string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", prefix, err)
	}
	return count, nil
}

// RunGC runs one round of value-log garbage collection. Returns true when a
// log file was reclaimed.
func (s *Store) RunGC() (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	err := s.db.RunValueLogGC(s.gcDiscardRatio)
	if err != nil {
		if errors.Is(err, badger.ErrNoRewrite) {
			return false, nil
		}
		return false, fmt.Errorf("value log gc: %w", err)
	}
	return true, nil
}
