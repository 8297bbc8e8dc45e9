package vacuum

import (
	"context"
	"fmt"
	"testing"

	"melonsync/pkg/push"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/remotestore/pebblestore"
	"melonsync/pkg/revision"
	"melonsync/pkg/syncerrors"
)

func TestReclaimIsNoOpOnEmptyRoot(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(3)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	handle := "acct-1"

	j := &Janitor{Store: store, Handles: []string{handle}}
	reclaimed, err := j.reclaim(ctx, handle)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed = %d on empty root, want 0", reclaimed)
	}
}

// failingStore wraps a real store and fails every batch commit past the
// failAfter'th, modeling a stage phase that dies partway through writing a
// side-batch's rows — a genuine STAGE_FAILED, not a fabricated one. It
// embeds remotestore.Store so every other call (Root, RunTransaction,
// WriteLimit) passes straight through to the wrapped store.
type failingStore struct {
	remotestore.Store
	failAfter int
	commits   int
}

func (f *failingStore) NewBatch() remotestore.Batch {
	return &failingBatch{inner: f.Store.NewBatch(), store: f}
}

type failingBatch struct {
	inner remotestore.Batch
	store *failingStore
}

func (b *failingBatch) Set(ref remotestore.Ref, data map[string]any, merge bool) {
	b.inner.Set(ref, data, merge)
}

func (b *failingBatch) Delete(ref remotestore.Ref) { b.inner.Delete(ref) }

func (b *failingBatch) Commit(ctx context.Context) error {
	b.store.commits++
	if b.store.commits > b.store.failAfter {
		return fmt.Errorf("injected batch commit failure")
	}
	return b.inner.Commit(ctx)
}

// TestReclaimDeletesGenuineStageFailureOrphan drives an actual stage-phase
// failure through the public push.Push API: a write limit small enough to
// force several batch-writer commits, with the underlying store rejecting
// every commit after the first. The rows from the first commit land under
// the abandoned batch's token; batchDoc itself is never Set, since integrate
// never runs. reclaim must find and delete that token via the raw keyspace
// walk, leaving no batch data behind.
func TestReclaimDeletesGenuineStageFailureOrphan(t *testing.T) {
	ctx := context.Background()
	inner, err := pebblestore.OpenMem(2)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer inner.Close()

	fs := &failingStore{Store: inner, failAfter: 1}

	handle := "acct-1"
	var created []push.Row
	for i := 0; i < 5; i++ {
		created = append(created, push.Row{"id": fmt.Sprintf("r%d", i)})
	}
	err = push.Push(ctx, fs, handle, 1, push.Changes{
		"entries": push.TableChanges{Created: created},
	})
	if err == nil {
		t.Fatalf("expected injected commit failure to surface as a stage error")
	}
	if !syncerrors.Is(err, syncerrors.ErrStageFailed) {
		t.Fatalf("err = %v, want STAGE_FAILED", err)
	}

	root := inner.Root(handle)
	snap, err := root.Get(ctx)
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	if snap.Exists {
		t.Fatalf("root should not exist: a stage failure precedes any root write, got %+v", snap.Data)
	}

	j := &Janitor{Store: inner, Handles: []string{handle}}
	reclaimed, err := j.reclaim(ctx, handle)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1 (the abandoned stage-phase batch)", reclaimed)
	}

	tokens, err := root.Collection(revision.CollectionBatches).ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("expected no batch data left after reclaim, found tokens %v", tokens)
	}
}

func TestReclaimSkipsLinkedBatches(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(2)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	handle := "acct-1"
	changes := push.Changes{
		"notes": push.TableChanges{
			Created: []push.Row{
				{"id": "n1", "text": "a"},
				{"id": "n2", "text": "b"},
				{"id": "n3", "text": "c"},
			},
		},
	}
	if err := push.Push(ctx, store, handle, 1, changes); err != nil {
		t.Fatalf("Push: %v", err)
	}

	root := store.Root(handle)
	snap, err := root.Get(ctx)
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	if len(state.BatchTokens()) == 0 {
		t.Fatalf("expected push with 3 rows and write limit 2 to take the side-batch path")
	}

	j := &Janitor{Store: store, Handles: []string{handle}}
	reclaimed, err := j.reclaim(ctx, handle)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed = %d, want 0 (batch is linked, not orphaned)", reclaimed)
	}
}
