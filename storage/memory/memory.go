// Package memory provides a thread-safe in-memory implementation of
// storage.Store. Suitable for testing, demos, and single-process use cases.
package memory

import (
	"context"
	"sync"

	"github.com/mwalcott/keystep/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]*storage.Record
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]*storage.Record)}
}

// Seed inserts a record directly, bypassing AtomicUpdate. Test helper.
func (s *Store) Seed(record *storage.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[record.UserID] = record.Clone()
}

func (s *Store) Read(ctx context.Context, userID string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) AtomicUpdate(ctx context.Context, userID string, fn func(*storage.Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[userID]
	if !ok {
		rec = &storage.Record{UserID: userID}
	}
	working := rec.Clone()
	if err := fn(working); err != nil {
		return err
	}
	working.UserID = userID
	s.data[userID] = working
	return nil
}
