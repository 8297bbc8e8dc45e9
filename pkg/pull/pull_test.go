package pull

import (
	"context"
	"testing"

	"melonsync/pkg/push"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/remotestore/pebblestore"
)

func ptr(v int64) *int64 { return &v }

func TestFirstPushThenPullFromNull(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	if err := push.Push(ctx, store, "ctx1", 1, push.Changes{
		"entries": push.TableChanges{Created: []push.Row{{"id": "aaa", "data": "hello"}}},
	}); err != nil {
		t.Fatalf("push: %v", err)
	}

	res, err := Pull(ctx, store, "ctx1", []string{"entries"}, nil)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Timestamp != 2 {
		t.Errorf("timestamp = %d, want 2", res.Timestamp)
	}
	entries := res.Changes["entries"]
	if len(entries.Updated) != 1 || entries.Updated[0]["id"] != "aaa" || entries.Updated[0]["data"] != "hello" {
		t.Errorf("updated = %+v, want [{id:aaa data:hello}]", entries.Updated)
	}
	if len(entries.Deleted) != 0 {
		t.Errorf("deleted = %v, want empty", entries.Deleted)
	}
}

func TestSequentialPushesMergeOnPull(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	mustPush(t, ctx, store, 1, push.Changes{
		"entries": push.TableChanges{Created: []push.Row{{"id": "aaa", "data": "hello"}}},
	})
	mustPush(t, ctx, store, 2, push.Changes{
		"entries": push.TableChanges{
			Created: []push.Row{{"id": "bbb", "data": "yo"}},
			Updated: []push.Row{{"id": "aaa", "data": "it's me"}},
		},
	})

	res, err := Pull(ctx, store, "ctx1", []string{"entries"}, nil)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Timestamp != 3 {
		t.Errorf("timestamp = %d, want 3", res.Timestamp)
	}
	updated := res.Changes["entries"].Updated
	if len(updated) != 2 {
		t.Fatalf("expected 2 updated rows, got %d: %+v", len(updated), updated)
	}
	if updated[0]["id"] != "aaa" || updated[0]["data"] != "it's me" {
		t.Errorf("updated[0] = %+v, want aaa/it's me", updated[0])
	}
	if updated[1]["id"] != "bbb" || updated[1]["data"] != "yo" {
		t.Errorf("updated[1] = %+v, want bbb/yo", updated[1])
	}
}

func TestPullWithCurrentWatermarkIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	mustPush(t, ctx, store, 1, push.Changes{"entries": push.TableChanges{Created: []push.Row{{"id": "aaa"}}}})
	mustPush(t, ctx, store, 2, push.Changes{"entries": push.TableChanges{Created: []push.Row{{"id": "bbb"}}}})

	res, err := Pull(ctx, store, "ctx1", []string{"entries"}, ptr(3))
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Timestamp != 3 {
		t.Errorf("timestamp = %d, want 3", res.Timestamp)
	}
	if len(res.Changes["entries"].Updated) != 0 || len(res.Changes["entries"].Deleted) != 0 {
		t.Errorf("expected empty changes at current watermark, got %+v", res.Changes["entries"])
	}
}

func TestDeleteAfterCreateOccludesUpdate(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	mustPush(t, ctx, store, 1, push.Changes{"entries": push.TableChanges{Created: []push.Row{{"id": "aaa"}}}})
	mustPush(t, ctx, store, 2, push.Changes{"entries": push.TableChanges{Deleted: []string{"aaa"}}})

	res, err := Pull(ctx, store, "ctx1", []string{"entries"}, nil)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Timestamp != 3 {
		t.Errorf("timestamp = %d, want 3", res.Timestamp)
	}
	if len(res.Changes["entries"].Updated) != 0 {
		t.Errorf("expected no updated rows, got %+v", res.Changes["entries"].Updated)
	}
	if len(res.Changes["entries"].Deleted) != 1 || res.Changes["entries"].Deleted[0] != "aaa" {
		t.Errorf("expected deleted=[aaa], got %v", res.Changes["entries"].Deleted)
	}
}

func TestPullMergesSideBatchWrites(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(5)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	var created []push.Row
	for i := 0; i < 10; i++ {
		created = append(created, push.Row{"id": string(rune('a' + i))})
	}
	mustPush(t, ctx, store, 1, push.Changes{"entries": push.TableChanges{Created: created}})

	res, err := Pull(ctx, store, "ctx1", []string{"entries"}, nil)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if res.Timestamp != 2 {
		t.Errorf("timestamp = %d, want 2", res.Timestamp)
	}
	if len(res.Changes["entries"].Updated) != 10 {
		t.Fatalf("expected 10 updated rows, got %d", len(res.Changes["entries"].Updated))
	}
}

// TestPullPreservesIDsContainingPercentEscapes guards against re-decoding
// row["id"]: push already stores the raw logical id in that field (only the
// document's own key segment is percent-encoded), so a logical id that
// happens to contain a valid percent-escape substring must round-trip
// byte-for-byte rather than being unescaped a second time on pull.
func TestPullPreservesIDsContainingPercentEscapes(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	id := "100%2fdone"
	mustPush(t, ctx, store, 1, push.Changes{
		"entries": push.TableChanges{Created: []push.Row{{"id": id, "data": "x"}}},
	})

	res, err := Pull(ctx, store, "ctx1", []string{"entries"}, nil)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	updated := res.Changes["entries"].Updated
	if len(updated) != 1 || updated[0]["id"] != id {
		t.Fatalf("updated = %+v, want id %q preserved byte-for-byte", updated, id)
	}
}

func mustPush(t *testing.T, ctx context.Context, store remotestore.Store, lastPulledAt int64, changes push.Changes) {
	t.Helper()
	if err := push.Push(ctx, store, "ctx1", lastPulledAt, changes); err != nil {
		t.Fatalf("push @ %d: %v", lastPulledAt, err)
	}
}
