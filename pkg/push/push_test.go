package push

import (
	"context"
	"testing"

	"melonsync/pkg/remotestore"
	"melonsync/pkg/remotestore/pebblestore"
	"melonsync/pkg/revision"
	"melonsync/pkg/syncerrors"
)

func row(id string, fields map[string]any) Row {
	r := Row{"id": id}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func TestInlinePushCreatesRowAndAdvancesRevision(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	changes := Changes{"entries": TableChanges{Created: []Row{row("aaa", map[string]any{"data": "hello"})}}}
	if err := Push(ctx, store, "ctx1", 1, changes); err != nil {
		t.Fatalf("Push: %v", err)
	}

	root := store.Root("ctx1")
	snap, err := root.Get(ctx)
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	if state.LatestRevision() != 1 {
		t.Errorf("LatestRevision() = %d, want 1", state.LatestRevision())
	}

	doc, err := root.Collection("entries").Doc("aaa").Get(ctx)
	if err != nil {
		t.Fatalf("Get row: %v", err)
	}
	if !doc.Exists {
		t.Fatalf("row not written")
	}
	if doc.Data["data"] != "hello" {
		t.Errorf("data = %v, want hello", doc.Data["data"])
	}
	if _, present := doc.Data["_status"]; present {
		t.Errorf("reserved field _status leaked into stored document")
	}
}

func TestStaleWriteFailsWithoutMutatingRoot(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	changes := Changes{"entries": TableChanges{Created: []Row{row("aaa", nil)}}}
	err = Push(ctx, store, "ctx1", 2, changes)
	if err == nil {
		t.Fatalf("expected OUT_OF_SYNC error")
	}
	if !syncerrors.Is(err, syncerrors.ErrOutOfSync) {
		t.Errorf("expected OUT_OF_SYNC, got %v", err)
	}

	root := store.Root("ctx1")
	snap, err := root.Get(ctx)
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	if snap.Exists {
		t.Errorf("root was mutated by a rejected stale push")
	}
}

func TestSideBatchPathUsedWhenChangesetExceedsWriteLimit(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(5)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	var created []Row
	for i := 0; i < 10; i++ {
		created = append(created, row(string(rune('a'+i)), nil))
	}
	changes := Changes{"entries": TableChanges{Created: created}}

	if err := Push(ctx, store, "ctx1", 1, changes); err != nil {
		t.Fatalf("Push: %v", err)
	}

	root := store.Root("ctx1")
	snap, err := root.Get(ctx)
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	if state.LatestRevision() != 1 {
		t.Errorf("LatestRevision() = %d, want 1", state.LatestRevision())
	}
	tokens := state.BatchTokens()
	token, ok := tokens["1"]
	if !ok {
		t.Fatalf("expected batchTokens[1] to be set, got %v", tokens)
	}

	batch := root.Collection(revision.CollectionBatches).Doc(token)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		d, err := batch.Collection("entries").Doc(id).Get(ctx)
		if err != nil {
			t.Fatalf("Get batch row %s: %v", id, err)
		}
		if !d.Exists {
			t.Errorf("row %s missing from side batch", id)
		}
	}

	// The root itself should not have received the rows directly.
	direct, err := root.Collection("entries").Doc("a").Get(ctx)
	if err != nil {
		t.Fatalf("Get root row: %v", err)
	}
	if direct.Exists {
		t.Errorf("row written directly to root; expected it to live only in the side batch")
	}
}

// TestSideBatchIntegrateFailureRollsBackCleanly drives a genuine
// integrate-phase failure (a stale lastPulledAt caught inside the integrate
// transaction) on a changeset big enough to take the side-batch path, then
// checks property P8: once rollback runs, no trace of the abandoned batch's
// row data remains anywhere under root/melonBatches. It uses the same raw
// keyspace walk findOrphans relies on (CollectionRef.ListIDs), since after a
// failed integrate the token was never linked into batchTokens and so never
// appears in any index — a plain Where query would wrongly show the batch as
// already gone even if rollback had left rows behind.
func TestSideBatchIntegrateFailureRollsBackCleanly(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(2)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	var created []Row
	for i := 0; i < 5; i++ {
		created = append(created, row(string(rune('a'+i)), nil))
	}
	changes := Changes{"entries": TableChanges{Created: created}}

	// The root has never been pushed to, so the real next revision is 1;
	// passing a stale lastPulledAt forces OUT_OF_SYNC inside the integrate
	// transaction, after stage has already written every row.
	err = Push(ctx, store, "ctx1", 99, changes)
	if err == nil {
		t.Fatalf("expected push to fail on stale lastPulledAt")
	}
	if !syncerrors.Is(err, syncerrors.ErrOutOfSync) {
		t.Fatalf("expected OUT_OF_SYNC, got %v", err)
	}

	root := store.Root("ctx1")
	tokens, err := root.Collection(revision.CollectionBatches).ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("rollback left batch data behind, found tokens %v", tokens)
	}
}

func TestDeleteAfterCreateRemovesRootCopy(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	if err := Push(ctx, store, "ctx1", 1, Changes{"entries": TableChanges{Created: []Row{row("aaa", nil)}}}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := Push(ctx, store, "ctx1", 2, Changes{"entries": TableChanges{Deleted: []string{"aaa"}}}); err != nil {
		t.Fatalf("second push: %v", err)
	}

	root := store.Root("ctx1")
	doc, err := root.Collection("entries").Doc("aaa").Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Exists {
		t.Errorf("aaa should have been deleted")
	}

	deletes, err := root.Collection(revision.CollectionDeletes).
		Where(revision.FieldDeleteRevision, remotestore.OpGreaterEqual, 0).Get(ctx)
	if err != nil {
		t.Fatalf("query melonDeletes: %v", err)
	}
	if len(deletes) != 1 {
		t.Fatalf("expected 1 delete-record document, got %d", len(deletes))
	}
	deleted, ok := deletes[0].Data[revision.FieldDeletes].(map[string]any)
	if !ok {
		t.Fatalf("delete-record missing deletes map: %+v", deletes[0].Data)
	}
	ids, ok := deleted["entries"].([]any)
	if !ok || len(ids) != 1 || ids[0] != "aaa" {
		t.Errorf("expected entries delete list [aaa], got %v", deleted["entries"])
	}
}
