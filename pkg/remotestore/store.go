// Package remotestore defines the small interface the sync engine expects
// from the remote hierarchical document store: single-document read,
// bounded multi-document transactions, bounded write batches, and
// collection queries by an indexed numeric field. The engine never talks
// to a concrete backend directly — only this interface — so the same
// push/pull logic can run against the bundled Pebble-backed reference
// implementation (pkg/remotestore/pebblestore) or any other backend that
// satisfies it.
package remotestore

import "context"

// Op is a query comparison operator.
type Op string

const (
	OpEqual        Op = "=="
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
)

// Snapshot is the result of reading a single document.
type Snapshot struct {
	Exists bool
	ID     string
	Data   map[string]any
}

// Ref identifies a single document under a Store.
type Ref interface {
	// ID is this document's key segment (already store-safe; callers are
	// responsible for percent-encoding logical ids before constructing a
	// Ref through Collection.Doc).
	ID() string
	// Collection returns a handle to a sub-collection nested under this
	// document, e.g. root.Collection("melonBatches").
	Collection(name string) CollectionRef
	// Get reads the document outside of any transaction.
	Get(ctx context.Context) (Snapshot, error)
	// Collections lists the names of every collection with at least one
	// document written somewhere beneath this ref, regardless of whether
	// this ref's own document was ever itself written. This is a raw
	// keyspace walk, not an index lookup, so it finds a collection whose
	// parent document was never Set (e.g. a side-batch document abandoned
	// mid-stage, before its own document existed).
	Collections(ctx context.Context) ([]string, error)
}

// CollectionRef identifies a named collection of documents nested under a
// Ref (or at store root).
type CollectionRef interface {
	// Doc returns a handle to the document with the given (already-encoded)
	// id. The document need not exist yet.
	Doc(id string) Ref
	// NewDoc allocates a handle with a fresh, store-generated id. The
	// document is not written until Set/Transaction.Set is called on it.
	NewDoc() Ref
	// Where begins a query filtering documents in this collection by a
	// single field comparison. Only numeric fields support range queries
	// (OpGreaterEqual/OpLess); the bundled reference store indexes every
	// numeric top-level field automatically.
	Where(field string, op Op, value int64) Query
	// ListIDs lists the id of every document with data written somewhere
	// beneath it in this collection, found via a raw keyspace walk rather
	// than the per-field index. Unlike Where, this finds a document id
	// whose own document was never Set but which has child collections
	// holding data (e.g. an abandoned side-batch's row documents).
	ListIDs(ctx context.Context) ([]string, error)
}

// Query is a filtered, ordered view over a collection.
type Query interface {
	// Where adds another field comparison (queries are the conjunction of
	// every Where call).
	Where(field string, op Op, value int64) Query
	// OrderBy orders results by field ascending.
	OrderBy(field string) Query
	// Get executes the query outside of any transaction.
	Get(ctx context.Context) ([]Snapshot, error)
}

// Transaction is the read/write handle passed to a RunTransaction body. All
// queued Set/Delete calls apply atomically once the body returns nil, and
// count toward the store's per-transaction write budget (WriteLimit).
type Transaction interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	// Set queues a write. When merge is true, fields absent from data are
	// left untouched on an existing document (merge-write); when false the
	// document is fully replaced.
	Set(ref Ref, data map[string]any, merge bool)
	Delete(ref Ref)
}

// Batch is a non-transactional, bounded write batch: every queued
// Set/Delete is applied atomically on Commit, subject to the same
// per-batch write budget as a Transaction.
type Batch interface {
	Set(ref Ref, data map[string]any, merge bool)
	Delete(ref Ref)
	Commit(ctx context.Context) error
}

// Store is the remote document store handle the sync engine is built
// against.
type Store interface {
	// Root returns the root document for the given caller-supplied sync
	// context handle. The document need not exist yet.
	Root(handle string) Ref
	// RunTransaction executes fn, committing its queued writes atomically.
	// fn may be invoked more than once if the underlying backend retries
	// on transient conflicts; it must be side-effect free beyond calls on
	// tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
	// NewBatch allocates a fresh, empty write batch.
	NewBatch() Batch
	// WriteLimit is W: the maximum number of queued writes a single
	// Transaction or Batch may commit.
	WriteLimit() int
}
