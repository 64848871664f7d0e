package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no record exists for a URN.
var ErrNotFound = errors.New("resource not found in state")

const keyPrefix = "resource:"

func recordKey(urn string) []byte {
	return []byte(keyPrefix + urn)
}

// Store keeps resource records in Badger.
type Store struct {
	db *badger.DB
}

// Open opens or creates the state database in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir)).
		WithLogger(nil).
		WithValueLogFileSize(1 << 20)
	return open(opts)
}

// OpenInMemory opens a state database that lives only as long as the Store.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes rec, replacing any earlier record with the same URN.
func (s *Store) Put(_ context.Context, rec *Record) error {
	if rec.URN == "" {
		return fmt.Errorf("record urn is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.URN, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.URN), data)
	})
}

// Get returns the record for urn, or ErrNotFound.
func (s *Store) Get(_ context.Context, urn string) (*Record, error) {
	var out Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(urn))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", urn, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read record %s: %w", urn, err)
	}
	return &out, nil
}

// Delete erases the record for urn. Deleting a missing record is not an
// error.
func (s *Store) Delete(_ context.Context, urn string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(urn))
	})
}

// List returns every record whose URN starts with prefix, in URN order.
// An empty prefix lists everything.
func (s *Store) List(_ context.Context, prefix string) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := recordKey(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var rec Record
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list state: %w", err)
	}
	return out, nil
}

// ListStack returns every record of one stack.
func (s *Store) ListStack(ctx context.Context, stack string) ([]*Record, error) {
	return s.List(ctx, "urn:anvil:"+stack+"::")
}

// Find returns the first record of stack whose logical name or ID is ref.
func (s *Store) Find(ctx context.Context, stack, ref string) (*Record, error) {
	recs, err := s.ListStack(ctx, stack)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.Name == ref || r.ID == ref || strings.EqualFold(r.URN, ref) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
}
