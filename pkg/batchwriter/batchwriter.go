// Package batchwriter streams an unbounded sequence of document writes and
// deletes through W-sized remote batches, committing and reopening as its
// internal counter reaches the store's write budget. It is the serial
// accumulator the side-batch stage phase feeds every row through: a single
// consumer draining work item by item, strictly sequential rather than
// worker-pooled, since the counter that decides when to flush is not safe
// for concurrent use.
package batchwriter

import (
	"context"
	"fmt"

	"github.com/valyala/bytebufferpool"

	"melonsync/pkg/logger"
	"melonsync/pkg/remotestore"
)

// Writer accumulates writes against one remote store, auto-committing every
// W operations. It is not reusable after Flush.
type Writer struct {
	store   remotestore.Store
	batch   remotestore.Batch
	count   int
	flushed bool
	commits int
}

// New opens a Writer against store. The Writer is revision-agnostic:
// callers stamp the revision into each payload before Add.
func New(store remotestore.Store) *Writer {
	return &Writer{store: store, batch: store.NewBatch()}
}

func (w *Writer) checkReusable() error {
	if w.flushed {
		return fmt.Errorf("batchwriter: writer already flushed")
	}
	return nil
}

// Add queues a set (merge=false) of ref with payload, committing and
// reopening the underlying batch if the write budget is reached.
func (w *Writer) Add(ctx context.Context, ref remotestore.Ref, payload map[string]any) error {
	if err := w.checkReusable(); err != nil {
		return err
	}
	w.batch.Set(ref, payload, false)
	logRef(ref)
	return w.advance(ctx)
}

// AddDeletes queues deletes for every ref in refs, flushing and reopening
// full-W batches as needed and carrying any remainder below W forward into
// the Writer's current batch.
func (w *Writer) AddDeletes(ctx context.Context, refs []remotestore.Ref) error {
	if err := w.checkReusable(); err != nil {
		return err
	}
	for _, ref := range refs {
		w.batch.Delete(ref)
		if err := w.advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

// logRef builds a debug-level "doc staged" field out of a pooled buffer
// instead of fmt.Sprintf, since Add runs once per row in the hottest
// allocation path a large side-batch push exercises.
func logRef(ref remotestore.Ref) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.WriteString(ref.ID())
	logger.Debug("batchwriter_row_staged", "doc", buf.String())
}

func (w *Writer) advance(ctx context.Context) error {
	w.count++
	if w.count < w.store.WriteLimit() {
		return nil
	}
	if err := w.commit(ctx); err != nil {
		return err
	}
	w.batch = w.store.NewBatch()
	w.count = 0
	return nil
}

func (w *Writer) commit(ctx context.Context) error {
	if err := w.batch.Commit(ctx); err != nil {
		logger.Error("batchwriter_commit_failed", "error", err, "commits_so_far", w.commits)
		return fmt.Errorf("commit batch: %w", err)
	}
	w.commits++
	return nil
}

// Flush commits whatever the current (possibly partial) batch holds. A
// Writer must be flushed exactly once; Add/AddDeletes/Flush after a Flush
// return an error.
func (w *Writer) Flush(ctx context.Context) error {
	if err := w.checkReusable(); err != nil {
		return err
	}
	w.flushed = true
	if w.count == 0 {
		return nil
	}
	return w.commit(ctx)
}
