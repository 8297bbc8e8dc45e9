// Package deleterefs discovers every live document reference for a set of
// deleted logical row ids, scanning the root and every side-batch named in
// the root's batch-token map. A single logical id may resolve to more than
// one reference, because a side-batch push copies rather than moves rows:
// the same id can legitimately exist under the root and under one or more
// side-batches at once, and every copy must be deleted.
package deleterefs

import (
	"context"
	"fmt"

	"melonsync/pkg/idcodec"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/revision"
)

// Ref pairs a discovered document reference with its encoded id, for
// callers that need to emit both the delete and the encoded id (e.g. to
// record it in a delete-record document's per-table list).
type Ref struct {
	Table     string
	EncodedID string
	Doc       remotestore.Ref
}

// Changes is the per-table shape of a push's deleted ids, as it arrives
// from the adapter: table name to logical (un-encoded) row ids.
type Changes map[string][]string

// Find resolves every deleted id in changes against root and every
// side-batch in batchTokens, returning every discovered reference grouped
// by table.
func Find(ctx context.Context, root remotestore.Ref, batchTokens map[string]string, changes Changes) (map[string][]Ref, error) {
	out := make(map[string][]Ref, len(changes))

	for table, ids := range changes {
		var refs []Ref
		for _, id := range ids {
			encoded := idcodec.Encode(id)

			rootRef := root.Collection(table).Doc(encoded)
			snap, err := rootRef.Get(ctx)
			if err != nil {
				return nil, fmt.Errorf("deleterefs: get root/%s/%s: %w", table, encoded, err)
			}
			if snap.Exists {
				refs = append(refs, Ref{Table: table, EncodedID: encoded, Doc: rootRef})
			}

			for _, token := range batchTokens {
				batchRef := root.Collection(revision.CollectionBatches).Doc(token).Collection(table).Doc(encoded)
				bsnap, err := batchRef.Get(ctx)
				if err != nil {
					return nil, fmt.Errorf("deleterefs: get batch %s/%s/%s: %w", token, table, encoded, err)
				}
				if bsnap.Exists {
					refs = append(refs, Ref{Table: table, EncodedID: encoded, Doc: batchRef})
				}
			}
		}
		if len(refs) > 0 {
			out[table] = refs
		}
	}
	return out, nil
}

// Count returns the total number of discovered references across every
// table, the "D" the push planner uses to decide inline vs. side-batch.
func Count(refs map[string][]Ref) int {
	n := 0
	for _, rs := range refs {
		n += len(rs)
	}
	return n
}

// Docs flattens refs into a plain slice of document references, for
// callers that only need the ref and not its table/encoded-id context.
func Docs(refs map[string][]Ref) []remotestore.Ref {
	var out []remotestore.Ref
	for _, rs := range refs {
		for _, r := range rs {
			out = append(out, r.Doc)
		}
	}
	return out
}
