// Package bbolt provides a BBolt-backed implementation of storage.Store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/mwalcott/keystep/storage"
)

var recordsBucket = []byte("records")

// Store implements storage.Store backed by a BBolt database. Each
// AtomicUpdate runs inside a single bbolt Update transaction, which gives
// the per-record read-modify-write atomicity the MFA core requires.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store backed by the given BBolt database.
func NewStore(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromFile opens a BBolt database at the given path.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Read(ctx context.Context, userID string) (*storage.Record, error) {
	var record storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return fmt.Errorf("%s: %w", userID, storage.ErrNotFound)
		}
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%s: %w", userID, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) AtomicUpdate(ctx context.Context, userID string, fn func(*storage.Record) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}

		record := &storage.Record{UserID: userID}
		if data := b.Get([]byte(userID)); data != nil {
			if err := json.Unmarshal(data, record); err != nil {
				return fmt.Errorf("decoding record %s: %w", userID, err)
			}
		}

		if err := fn(record); err != nil {
			return err
		}
		record.UserID = userID

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", userID, err)
		}
		return b.Put([]byte(userID), data)
	})
}
