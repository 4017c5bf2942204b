// Package store keeps generated report artifacts in an embedded badger
// database keyed by path.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore is a disk-backed (or in-memory) blob store.
type ArtifactStore struct {
	db *badger.DB
}

// Open opens the store at path. An empty path or inMemory keeps everything in
// memory, which is what tests and single-shot tools use.
func Open(path string, inMemory bool) (*ArtifactStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory || path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // disable internal logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &ArtifactStore{db: db}, nil
}

// Key formats the artifact path of a report generation.
func Key(ispID, generationID, format string) string {
	return fmt.Sprintf("/reports/%s/%s.%s", ispID, generationID, format)
}

// Put stores data under key, replacing any previous value.
func (s *ArtifactStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get returns a copy of the bytes stored under key.
func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

// Keys lists stored keys under prefix in key order.
func (s *ArtifactStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Delete removes every artifact under prefix and reports how many went.
func (s *ArtifactStore) Delete(ctx context.Context, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close flushes and closes the database.
func (s *ArtifactStore) Close() error {
	return s.db.Close()
}
