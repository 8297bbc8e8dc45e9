// Package pull implements the pull merger: it walks the revision range
// since a watermark across the root and any side-batches it spans,
// producing one merged changeset. Revision runs are walked in increasing
// order so that a later root revision depending on a row a side-batch
// created is always observed after that side-batch's writes are merged.
package pull

import (
	"context"

	"melonsync/pkg/idcodec"
	"melonsync/pkg/metrics"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/revision"
	"melonsync/pkg/syncerrors"
)

// Row is a single record as returned to the adapter: a logical (decoded)
// "id" field plus table columns, with every reserved/indexed internal
// field stripped.
type Row map[string]any

// TableResult is one table's pulled changeset. Created is always empty:
// every row the merger finds is reported as updated, per the adapter
// contract's sendCreatedAsUpdated requirement.
type TableResult struct {
	Created []Row
	Updated []Row
	Deleted []string
}

// Result is the full merged changeset a pull returns.
type Result struct {
	Changes   map[string]TableResult
	Timestamp int64
}

var legacyInternalFields = []string{"_status", "_changed", "melonFireChange"}

func stripInternals(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range legacyInternalFields {
		delete(out, f)
	}
	delete(out, revision.FieldRecordRevision)
	return out
}

// tableState accumulates one table's pulled state across the whole walk.
// order preserves first-seen position so the emitted Updated list reflects
// ascending revision order even though later writes to the same id
// overwrite its content in place.
type tableState struct {
	order   []string
	updated map[string]Row
	deleted map[string]bool
}

func newTableState() *tableState {
	return &tableState{updated: map[string]Row{}, deleted: map[string]bool{}}
}

func (ts *tableState) setUpdated(id string, row Row) {
	if _, exists := ts.updated[id]; !exists {
		ts.order = append(ts.order, id)
	}
	ts.updated[id] = row
}

// Pull reads every change committed since lastPulledAt (or from the
// beginning, if nil) for the given tables.
func Pull(ctx context.Context, store remotestore.Store, handle string, tables []string, lastPulledAt *int64) (result Result, err error) {
	defer func() {
		if err != nil {
			metrics.PullsTotal.WithLabelValues("error").Inc()
		} else {
			metrics.PullsTotal.WithLabelValues("ok").Inc()
		}
	}()

	root := store.Root(handle)
	snap, err := root.Get(ctx)
	if err != nil {
		return Result{}, syncerrors.StoreUnavailable(err)
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	endExclusive := state.EndRevisionExclusive()
	batchTokens := state.BatchTokens()

	start := int64(1)
	if lastPulledAt != nil {
		start = *lastPulledAt
	}

	changeMap := make(map[string]*tableState, len(tables))
	for _, t := range tables {
		changeMap[t] = newTableState()
	}

	for start < endExclusive {
		end := start
		for end < endExclusive {
			if _, ok := batchTokens[revision.FormatRevision(end)]; ok {
				break
			}
			end++
		}

		if end == start {
			token := batchTokens[revision.FormatRevision(end)]
			end++

			batchRoot := root.Collection(revision.CollectionBatches).Doc(token)
			if err := mergeCreatesAndUpdates(ctx, batchRoot, tables, start, end, changeMap); err != nil {
				return Result{}, syncerrors.StoreUnavailable(err)
			}
			bsnap, err := batchRoot.Get(ctx)
			if err != nil {
				return Result{}, syncerrors.StoreUnavailable(err)
			}
			if bsnap.Exists {
				applyDeletes(bsnap.Data[revision.FieldDeletes], changeMap)
			}
		} else {
			if err := mergeCreatesAndUpdates(ctx, root, tables, start, end, changeMap); err != nil {
				return Result{}, syncerrors.StoreUnavailable(err)
			}
			records, err := root.Collection(revision.CollectionDeletes).
				Where(revision.FieldDeleteRevision, remotestore.OpGreaterEqual, start).
				Where(revision.FieldDeleteRevision, remotestore.OpLess, end).
				Get(ctx)
			if err != nil {
				return Result{}, syncerrors.StoreUnavailable(err)
			}
			for _, rec := range records {
				applyDeletes(rec.Data[revision.FieldDeletes], changeMap)
			}
		}

		start = end
	}

	changes := make(map[string]TableResult, len(tables))
	for _, t := range tables {
		ts := changeMap[t]
		var updated []Row
		for _, id := range ts.order {
			if ts.deleted[id] {
				continue
			}
			updated = append(updated, ts.updated[id])
		}
		var deleted []string
		for id := range ts.deleted {
			deleted = append(deleted, id)
		}
		changes[t] = TableResult{Updated: updated, Deleted: deleted}
	}

	return Result{Changes: changes, Timestamp: endExclusive}, nil
}

// mergeCreatesAndUpdates implements §4.9: for each table, query for
// documents written at a revision in [start, end), ordered ascending, and
// fold each into changeMap — ascending order guarantees the latest
// revision's content wins.
func mergeCreatesAndUpdates(ctx context.Context, base remotestore.Ref, tables []string, start, end int64, changeMap map[string]*tableState) error {
	for _, t := range tables {
		snaps, err := base.Collection(t).
			Where(revision.FieldRecordRevision, remotestore.OpGreaterEqual, start).
			Where(revision.FieldRecordRevision, remotestore.OpLess, end).
			OrderBy(revision.FieldRecordRevision).
			Get(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			row := Row(stripInternals(s.Data))
			// row["id"] is already the logical id push stamped it with
			// (push.go's stampedRow sets body["id"] = id, the raw form);
			// only the document's own key segment (s.ID) is percent-encoded.
			logicalID, _ := row["id"].(string)
			changeMap[t].setUpdated(logicalID, row)
		}
	}
	return nil
}

func applyDeletes(raw any, changeMap map[string]*tableState) {
	m, ok := raw.(map[string]any)
	if !ok {
		return
	}
	for table, rawIDs := range m {
		ts, ok := changeMap[table]
		if !ok {
			continue
		}
		ids, ok := rawIDs.([]any)
		if !ok {
			continue
		}
		for _, idAny := range ids {
			encoded, ok := idAny.(string)
			if !ok {
				continue
			}
			ts.deleted[idcodec.Decode(encoded)] = true
		}
	}
}
