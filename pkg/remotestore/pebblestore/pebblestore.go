// Package pebblestore is a reference implementation of remotestore.Store
// backed by github.com/cockroachdb/pebble: a single-file key/value database
// addressed by sortable string keys, generalized here into a hierarchical
// document store. Documents are addressed by slash-joined paths,
// collections are path prefixes, and a secondary numeric index over every
// top-level integer field supports the range queries the pull merger needs
// (melonFireRevision, revision).
//
// Pebble here stands in for the managed document store the sync engine is
// a *client* of, so the engine and its tests can run against something
// real without a network dependency.
package pebblestore

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"melonsync/pkg/logger"
	"melonsync/pkg/remotestore"
)

const (
	docPrefix = "doc:"
	idxPrefix = "idx:"
)

// Store opens (or creates) a Pebble database and exposes it as a
// remotestore.Store.
type Store struct {
	db         *pebble.DB
	writeLimit int
	idSeq      uint64
}

// Open opens the Pebble database at path with the given transaction write
// budget W.
func Open(path string, writeLimit int) (*Store, error) {
	if writeLimit <= 1 {
		return nil, fmt.Errorf("pebblestore: writeLimit must be > 1, got %d", writeLimit)
	}
	logger.Info("pebblestore_opening", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebblestore_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	logger.Info("pebblestore_opened", "path", path)
	return &Store{db: db, writeLimit: writeLimit}, nil
}

// OpenMem opens an in-memory Pebble database, for tests and short-lived
// local tooling that should not touch disk.
func OpenMem(writeLimit int) (*Store, error) {
	if writeLimit <= 1 {
		return nil, fmt.Errorf("pebblestore: writeLimit must be > 1, got %d", writeLimit)
	}
	db, err := pebble.Open("mem", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble: %w", err)
	}
	return &Store{db: db, writeLimit: writeLimit}, nil
}

// Close closes the underlying Pebble database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// WriteLimit implements remotestore.Store.
func (s *Store) WriteLimit() int { return s.writeLimit }

// Root implements remotestore.Store.
func (s *Store) Root(handle string) remotestore.Ref {
	return &ref{store: s, path: handle}
}

// nextAutoID generates a store-assigned document id from a monotonic,
// process-local sequence number, zero-padded so ids sort in creation
// order.
func (s *Store) nextAutoID() string {
	n := atomic.AddUint64(&s.idSeq, 1)
	return fmt.Sprintf("auto%020d", n)
}
