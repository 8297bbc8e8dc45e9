// Package vacuum reclaims orphaned side-batch documents: batches a stage
// phase created and wrote table rows into, but whose integrate transaction
// either never ran or failed before rollback could run. It runs on a gronx
// cron schedule: compute the next tick, sleep until it, run once, repeat.
package vacuum

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"melonsync/pkg/logger"
	"melonsync/pkg/metrics"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/revision"
)

// Janitor periodically deletes side-batch documents that exist under a
// root's melonBatches collection but are not named in the root's
// batchTokens map — the signature of an abandoned stage phase.
type Janitor struct {
	Store   remotestore.Store
	Handles []string
	Cron    string
}

// Start runs the janitor loop until ctx is cancelled. It returns
// immediately with an error if Cron is not a valid cron expression.
func (j *Janitor) Start(ctx context.Context) error {
	cronExpr := j.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("vacuum: invalid cron expression %q", cronExpr)
	}

	logger.Info("vacuum_started", "cron", cronExpr, "handles", len(j.Handles))
	go j.loop(ctx, cronExpr)
	return nil
}

func (j *Janitor) loop(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("vacuum_stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			logger.Error("vacuum_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			j.RunOnce(ctx)
		case <-ctx.Done():
			logger.Info("vacuum_stopping")
			return
		}
	}
}

// RunOnce reclaims orphaned side-batches for every configured handle,
// swallowing per-handle errors so one bad root doesn't block the rest.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, handle := range j.Handles {
		reclaimed, err := j.reclaim(ctx, handle)
		if err != nil {
			logger.Error("vacuum_run_failed", "handle", handle, "error", err)
			metrics.VacuumRunsTotal.WithLabelValues("error").Inc()
			continue
		}
		metrics.VacuumRunsTotal.WithLabelValues("ok").Inc()
		if reclaimed > 0 {
			logger.Info("vacuum_reclaimed", "handle", handle, "batches", reclaimed)
		}
	}
}

func (j *Janitor) reclaim(ctx context.Context, handle string) (int, error) {
	root := j.Store.Root(handle)
	snap, err := root.Get(ctx)
	if err != nil {
		return 0, err
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	linked := state.BatchTokens()

	linkedTokens := make(map[string]bool, len(linked))
	for _, token := range linked {
		linkedTokens[token] = true
	}

	orphans, err := j.findOrphans(ctx, root, linkedTokens)
	if err != nil {
		return 0, err
	}

	for _, token := range orphans {
		if err := j.deleteBatch(ctx, root, token); err != nil {
			return 0, fmt.Errorf("delete orphaned batch %s: %w", token, err)
		}
		metrics.VacuumReclaimedBatches.Inc()
	}
	return len(orphans), nil
}

// findOrphans lists every token with data written somewhere under
// root/melonBatches/<token> and returns those not present in linkedTokens.
//
// This must be a raw keyspace walk (CollectionRef.ListIDs), not a query on
// the melonLatestRevision index: a batch document at
// root/melonBatches/<token> is only ever Set inside the same integrate
// transaction that links it into the root's batchTokens map (see push.go's
// sideBatchPush), so by construction every batch document the index can
// find is already linked. A real stage-phase orphan never gets that far —
// its rows exist under root/melonBatches/<token>/<table>/<id>, written
// directly by stage(), but root/melonBatches/<token> itself was never Set
// and so carries no index entry at all. ListIDs finds <token> anyway
// because it walks the raw keys of everything beneath the melonBatches
// collection, not just documents that exist there themselves.
func (j *Janitor) findOrphans(ctx context.Context, root remotestore.Ref, linkedTokens map[string]bool) ([]string, error) {
	tokens, err := root.Collection(revision.CollectionBatches).ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, token := range tokens {
		if !linkedTokens[token] {
			orphans = append(orphans, token)
		}
	}
	return orphans, nil
}

func (j *Janitor) deleteBatch(ctx context.Context, root remotestore.Ref, token string) error {
	batch := root.Collection(revision.CollectionBatches).Doc(token)
	w := j.Store.WriteLimit()

	// batch.Collections, not batch.Get, since a genuine stage-phase orphan
	// never had its own document Set: the table names only exist as raw
	// child collections under batch's own path.
	tables, err := batch.Collections(ctx)
	if err != nil {
		return err
	}
	var allRefs []remotestore.Ref
	for _, table := range tables {
		rows, err := batch.Collection(table).Where(revision.FieldRecordRevision, remotestore.OpGreaterEqual, 0).Get(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			allRefs = append(allRefs, batch.Collection(table).Doc(r.ID))
		}
	}
	allRefs = append(allRefs, batch)

	for i := 0; i < len(allRefs); i += w {
		end := i + w
		if end > len(allRefs) {
			end = len(allRefs)
		}
		b := j.Store.NewBatch()
		for _, ref := range allRefs[i:end] {
			b.Delete(ref)
		}
		if err := b.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
