package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"melonsync/pkg/logger"
	"melonsync/pkg/remotestore"
)

// writeSet accumulates the queued Set/Delete calls shared by Transaction and
// Batch: both are a bounded, sequential write accumulator over the same
// underlying pebble.Batch, differing only in whether reads are threaded
// through a single atomic commit.
type writeSet struct {
	store *Store
	batch *pebble.Batch
	count int
	err   error
}

func newWriteSet(s *Store) *writeSet {
	return &writeSet{store: s, batch: s.db.NewBatch()}
}

func (w *writeSet) set(r remotestore.Ref, data map[string]any, merge bool) {
	if w.err != nil {
		return
	}
	rr := r.(*ref)
	collectionPath, docID := splitPath(rr.path)

	final := data
	if merge {
		existing, err := getDoc(w.store.db, rr.path)
		if err != nil {
			w.err = err
			return
		}
		if existing.Exists {
			final = mergeMaps(existing.Data, data)
		}
	}

	if err := reindexOnWrite(w.store.db, w.batch, collectionPath, docID, final); err != nil {
		w.err = fmt.Errorf("reindex %s: %w", rr.path, err)
		return
	}

	body, err := json.Marshal(final)
	if err != nil {
		w.err = fmt.Errorf("encode %s: %w", rr.path, err)
		return
	}
	if err := w.batch.Set([]byte(docPrefix+rr.path), body, nil); err != nil {
		w.err = err
		return
	}
	w.count++
	if w.count > w.store.writeLimit {
		w.err = fmt.Errorf("pebblestore: write budget exceeded (%d > %d)", w.count, w.store.writeLimit)
	}
}

func (w *writeSet) delete(r remotestore.Ref) {
	if w.err != nil {
		return
	}
	rr := r.(*ref)
	collectionPath, docID := splitPath(rr.path)

	if err := reindexOnDelete(w.store.db, w.batch, collectionPath, docID); err != nil {
		w.err = fmt.Errorf("reindex delete %s: %w", rr.path, err)
		return
	}
	if err := w.batch.Delete([]byte(docPrefix+rr.path), nil); err != nil {
		w.err = err
		return
	}
	w.count++
	if w.count > w.store.writeLimit {
		w.err = fmt.Errorf("pebblestore: write budget exceeded (%d > %d)", w.count, w.store.writeLimit)
	}
}

func splitPath(path string) (collectionPath, docID string) {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// transaction implements remotestore.Transaction. Reads hit the live
// database directly rather than a snapshot: the sync engine is the store's
// only logical writer and its callers serialize their own push/pull calls
// per root, so there is nothing for an isolated snapshot to protect
// against. Concurrent transactions on one root are not isolated.
type transaction struct {
	*writeSet
	ctx context.Context
}

func (t *transaction) Get(ctx context.Context, r remotestore.Ref) (remotestore.Snapshot, error) {
	return r.(*ref).Get(ctx)
}

func (t *transaction) Set(r remotestore.Ref, data map[string]any, merge bool) {
	t.writeSet.set(r, data, merge)
}

func (t *transaction) Delete(r remotestore.Ref) {
	t.writeSet.delete(r)
}

// RunTransaction implements remotestore.Store.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx remotestore.Transaction) error) error {
	ws := newWriteSet(s)
	tx := &transaction{writeSet: ws, ctx: ctx}

	if err := fn(ctx, tx); err != nil {
		_ = ws.batch.Close()
		return err
	}
	if ws.err != nil {
		_ = ws.batch.Close()
		return ws.err
	}
	if err := ws.batch.Commit(pebble.Sync); err != nil {
		logger.Error("pebblestore_transaction_commit_failed", "error", err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// batch implements remotestore.Batch.
type batch struct {
	*writeSet
}

func (b *batch) Set(r remotestore.Ref, data map[string]any, merge bool) { b.writeSet.set(r, data, merge) }
func (b *batch) Delete(r remotestore.Ref)                               { b.writeSet.delete(r) }

func (b *batch) Commit(ctx context.Context) error {
	if b.writeSet.err != nil {
		_ = b.writeSet.batch.Close()
		return b.writeSet.err
	}
	if err := b.writeSet.batch.Commit(pebble.Sync); err != nil {
		logger.Error("pebblestore_batch_commit_failed", "error", err)
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// NewBatch implements remotestore.Store.
func (s *Store) NewBatch() remotestore.Batch {
	return &batch{writeSet: newWriteSet(s)}
}
