// Package push implements the push planner and both push paths: a single
// inline transaction for changesets that fit the remote store's write
// budget, and a stage/integrate/rollback side-batch path for changesets
// that don't.
package push

import (
	"context"
	"fmt"
	"time"

	"melonsync/pkg/batchwriter"
	"melonsync/pkg/deleterefs"
	"melonsync/pkg/idcodec"
	"melonsync/pkg/logger"
	"melonsync/pkg/metrics"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/revision"
	"melonsync/pkg/syncerrors"
)

// Row is a single record payload as the adapter sends it: a logical "id"
// field plus table columns, possibly still carrying legacy reserved
// fields that must be stripped before the row is persisted.
type Row map[string]any

// TableChanges is one table's created/updated/deleted sets for a push.
type TableChanges struct {
	Created []Row
	Updated []Row
	Deleted []string
}

// Changes is the full per-table changeset a push submits.
type Changes map[string]TableChanges

var reservedFields = []string{"_status", "_changed", "melonFireChange"}

func cleanRow(row Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, f := range reservedFields {
		delete(out, f)
	}
	return out
}

func rowID(row Row) (string, error) {
	id, ok := row["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("push: row missing string id field")
	}
	return id, nil
}

func stampedRow(row Row, rev int64) (id string, body map[string]any, err error) {
	id, err = rowID(row)
	if err != nil {
		return "", nil, err
	}
	body = cleanRow(row)
	body["id"] = id
	body[revision.FieldRecordRevision] = rev
	return id, body, nil
}

func deletedChanges(changes Changes) deleterefs.Changes {
	out := make(deleterefs.Changes, len(changes))
	for table, tc := range changes {
		if len(tc.Deleted) > 0 {
			out[table] = tc.Deleted
		}
	}
	return out
}

// dedupedIDsAndDeletes splits a table's discovered refs into the distinct
// encoded ids to record in a delete-record/side-batch "deletes" entry and
// the (possibly duplicate, across root and side-batches) document refs
// that must all be deleted.
func dedupedIDsAndDeletes(refs []deleterefs.Ref) (ids []string, docs []remotestore.Ref) {
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		docs = append(docs, r.Doc)
		if !seen[r.EncodedID] {
			seen[r.EncodedID] = true
			ids = append(ids, r.EncodedID)
		}
	}
	return ids, docs
}

// Push submits changes against the root identified by handle, guarded by
// lastPulledAt (the watermark the caller last pulled to). It picks the
// inline or side-batch path per the planner's effective-write-count rule
// and returns only once the chosen path has committed.
func Push(ctx context.Context, store remotestore.Store, handle string, lastPulledAt int64, changes Changes) error {
	root := store.Root(handle)

	rootSnap, err := root.Get(ctx)
	if err != nil {
		return syncerrors.StoreUnavailable(err)
	}
	state := revision.FromDoc(rootSnap.Exists, rootSnap.Data)

	refs, err := deleterefs.Find(ctx, root, state.BatchTokens(), deletedChanges(changes))
	if err != nil {
		return syncerrors.StoreUnavailable(err)
	}
	d := deleterefs.Count(refs)

	c := 0
	for _, tc := range changes {
		c += len(tc.Created) + len(tc.Updated)
	}

	effective := c
	if d > 0 {
		effective += d + 1
	}
	w := store.WriteLimit()

	logger.Debug("push_planned", "handle", handle, "created_updated", c, "delete_refs", d, "effective", effective, "write_limit", w)

	if effective+1 <= w {
		err := inlinePush(ctx, store, root, lastPulledAt, changes, refs)
		metrics.PushesTotal.WithLabelValues("inline", outcomeLabel(err)).Inc()
		observeLatestRevision(ctx, handle, root, err)
		return err
	}
	err = sideBatchPush(ctx, store, root, state, lastPulledAt, changes, refs)
	metrics.PushesTotal.WithLabelValues("side_batch", outcomeLabel(err)).Inc()
	observeLatestRevision(ctx, handle, root, err)
	return err
}

func observeLatestRevision(ctx context.Context, handle string, root remotestore.Ref, pushErr error) {
	if pushErr != nil {
		return
	}
	snap, err := root.Get(ctx)
	if err != nil || !snap.Exists {
		return
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	metrics.LatestRevision.WithLabelValues(handle).Set(float64(state.LatestRevision()))
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// inlinePush executes the whole push as a single remote transaction.
func inlinePush(ctx context.Context, store remotestore.Store, root remotestore.Ref, lastPulledAt int64, changes Changes, refs map[string][]deleterefs.Ref) error {
	err := store.RunTransaction(ctx, func(ctx context.Context, tx remotestore.Transaction) error {
		snap, err := tx.Get(ctx, root)
		if err != nil {
			return err
		}
		cur := revision.FromDoc(snap.Exists, snap.Data)
		nextRev := cur.NextRevisionToWrite()
		if nextRev != lastPulledAt {
			return syncerrors.OutOfSync(nextRev, lastPulledAt)
		}

		for table, tc := range changes {
			col := root.Collection(table)
			for _, row := range append(append([]Row{}, tc.Created...), tc.Updated...) {
				id, body, err := stampedRow(row, nextRev)
				if err != nil {
					return err
				}
				tx.Set(col.Doc(idcodec.Encode(id)), body, false)
			}
		}

		tableDeletes := map[string]any{}
		for table, rs := range refs {
			ids, docs := dedupedIDsAndDeletes(rs)
			for _, d := range docs {
				tx.Delete(d)
			}
			if len(ids) > 0 {
				tableDeletes[table] = ids
			}
		}
		if len(tableDeletes) > 0 {
			tx.Set(root.Collection(revision.CollectionDeletes).NewDoc(), map[string]any{
				revision.FieldDeleteRevision: nextRev,
				revision.FieldDeletes:        tableDeletes,
			}, false)
		}

		tx.Set(root, cur.MergePayload(nextRev, ""), true)
		return nil
	})
	if err != nil {
		if syncerrors.Is(err, syncerrors.ErrOutOfSync) {
			return err
		}
		return syncerrors.StoreUnavailable(err)
	}
	return nil
}

// sideBatchPush runs the stage/integrate/rollback path for a changeset too
// large to fit one transaction.
func sideBatchPush(ctx context.Context, store remotestore.Store, root remotestore.Ref, state revision.State, lastPulledAt int64, changes Changes, refs map[string][]deleterefs.Ref) error {
	revisionNumber := state.NextRevisionToWrite()
	batchDoc := root.Collection(revision.CollectionBatches).NewDoc()

	tableDeletes, err := stage(ctx, store, batchDoc, revisionNumber, changes, refs)
	if err != nil {
		logger.Error("push_stage_failed", "batch", batchDoc.ID(), "error", err)
		return syncerrors.StageFailed(err)
	}

	integrateErr := store.RunTransaction(ctx, func(ctx context.Context, tx remotestore.Transaction) error {
		snap, err := tx.Get(ctx, root)
		if err != nil {
			return err
		}
		cur := revision.FromDoc(snap.Exists, snap.Data)
		nextRev := cur.NextRevisionToWrite()
		if nextRev != lastPulledAt {
			return syncerrors.OutOfSync(nextRev, lastPulledAt)
		}
		tx.Set(batchDoc, map[string]any{
			revision.FieldLatestRevision: nextRev,
			revision.FieldLatestDate:     time.Now().UTC().Format(time.RFC3339),
			revision.FieldDeletes:        tableDeletes,
		}, false)
		tx.Set(root, cur.MergePayload(nextRev, batchDoc.ID()), true)
		return nil
	})
	if integrateErr == nil {
		return nil
	}

	logger.Error("push_integrate_failed", "batch", batchDoc.ID(), "error", integrateErr)
	metrics.SideBatchRollbacksTotal.Inc()
	if rbErr := rollback(ctx, store, batchDoc, changes); rbErr != nil {
		logger.Error("push_rollback_failed", "batch", batchDoc.ID(), "error", rbErr)
		return syncerrors.RollbackFailed(integrateErr, rbErr)
	}
	if syncerrors.Is(integrateErr, syncerrors.ErrOutOfSync) {
		return integrateErr
	}
	return syncerrors.IntegrateFailed(integrateErr)
}

// stage feeds every created/updated row and every discovered delete ref
// through a batch writer bound to batchDoc, serially per table so the
// writer's internal counter stays honest.
func stage(ctx context.Context, store remotestore.Store, batchDoc remotestore.Ref, revisionNumber int64, changes Changes, refs map[string][]deleterefs.Ref) (map[string]any, error) {
	writer := batchwriter.New(store)
	tableDeletes := map[string]any{}

	for table, tc := range changes {
		col := batchDoc.Collection(table)
		for _, row := range append(append([]Row{}, tc.Created...), tc.Updated...) {
			id, body, err := stampedRow(row, revisionNumber)
			if err != nil {
				return nil, err
			}
			if err := writer.Add(ctx, col.Doc(idcodec.Encode(id)), body); err != nil {
				return nil, err
			}
		}
	}
	for table, rs := range refs {
		ids, docs := dedupedIDsAndDeletes(rs)
		if err := writer.AddDeletes(ctx, docs); err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			tableDeletes[table] = ids
		}
	}

	if err := writer.Flush(ctx); err != nil {
		return nil, err
	}
	return tableDeletes, nil
}

// rollback deletes every document an abandoned side-batch wrote, in
// W-sized chunks, after an integrate transaction has failed. It never
// deletes batchDoc itself: per the reference behavior this spec follows,
// an orphaned side-batch document is acceptable storage amplification,
// not a correctness problem, since it is never linked from the root.
func rollback(ctx context.Context, store remotestore.Store, batchDoc remotestore.Ref, changes Changes) error {
	var allRefs []remotestore.Ref
	for table := range changes {
		snaps, err := batchDoc.Collection(table).Where(revision.FieldRecordRevision, remotestore.OpGreaterEqual, 0).Get(ctx)
		if err != nil {
			return fmt.Errorf("rollback query %s: %w", table, err)
		}
		for _, s := range snaps {
			allRefs = append(allRefs, batchDoc.Collection(table).Doc(s.ID))
		}
	}

	w := store.WriteLimit()
	for i := 0; i < len(allRefs); i += w {
		end := i + w
		if end > len(allRefs) {
			end = len(allRefs)
		}
		b := store.NewBatch()
		for _, ref := range allRefs[i:end] {
			b.Delete(ref)
		}
		if err := b.Commit(ctx); err != nil {
			return fmt.Errorf("rollback delete chunk [%d:%d]: %w", i, end, err)
		}
	}
	return nil
}
