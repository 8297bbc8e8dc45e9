// Package revision models the root document's counter and batch-token map
// and the small set of computations push and pull both need from it:
// the next revision to write, the exclusive end of a pull range, and the
// merge-safe root payload.
//
// The wire field names are part of the persistent layout's contract and
// must not change: melonLatestRevision, melonLatestDate, melonBatchTokens.
package revision

import (
	"strconv"
	"time"
)

const (
	FieldLatestRevision = "melonLatestRevision"
	FieldLatestDate     = "melonLatestDate"
	FieldBatchTokens    = "melonBatchTokens"

	// CollectionBatches and CollectionDeletes name the two reserved
	// subcollections under a root document; part of the persistent
	// layout's wire contract.
	CollectionBatches = "melonBatches"
	CollectionDeletes = "melonDeletes"

	// FieldRecordRevision is the indexed field stamped onto every
	// table-record document (melonFireRevision).
	FieldRecordRevision = "melonFireRevision"
	// FieldDeleteRevision is the indexed field on delete-record documents.
	FieldDeleteRevision = "revision"
	// FieldDeletes names the per-table encoded-id list on both side-batch
	// and delete-record documents.
	FieldDeletes = "deletes"
)

// State is the root document modeled as an explicit sum type rather than a
// struct of nullable fields: a root is either Absent (the sync context was
// never pushed to) or Present with a committed revision. Every caller gets
// its next-revision and batch-token values through NextRevisionToWrite and
// BatchTokens rather than reaching into optional fields directly.
type State struct {
	present        bool
	latestRevision int64
	latestDate     string
	batchTokens    map[string]string
}

// Absent is the zero State: a root document that has never been written.
var Absent = State{}

// Present builds a State for a root document that has been written at
// least once.
func Present(latestRevision int64, latestDate string, batchTokens map[string]string) State {
	if batchTokens == nil {
		batchTokens = map[string]string{}
	}
	return State{present: true, latestRevision: latestRevision, latestDate: latestDate, batchTokens: batchTokens}
}

// FromDoc decodes a root document snapshot's raw field map into a State.
// A missing or non-existent document decodes to Absent.
func FromDoc(exists bool, data map[string]any) State {
	if !exists {
		return Absent
	}
	rev, _ := asInt64(data[FieldLatestRevision])
	date, _ := data[FieldLatestDate].(string)
	tokens := map[string]string{}
	if raw, ok := data[FieldBatchTokens].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				tokens[k] = s
			}
		}
	}
	if rev == 0 {
		return Absent
	}
	return Present(rev, date, tokens)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// NextRevisionToWrite is (latestRevision ?? 0) + 1, the revision a push
// claims for itself and the watermark pull's next lastPulledAt must equal.
func (s State) NextRevisionToWrite() int64 {
	if !s.present {
		return 1
	}
	return s.latestRevision + 1
}

// EndRevisionExclusive is the same quantity under pull's name for it: the
// exclusive upper bound of revisions a full pull will walk.
func (s State) EndRevisionExclusive() int64 {
	return s.NextRevisionToWrite()
}

// BatchTokens returns the root's revision-to-side-batch-id map, never nil.
func (s State) BatchTokens() map[string]string {
	if !s.present {
		return map[string]string{}
	}
	out := make(map[string]string, len(s.batchTokens))
	for k, v := range s.batchTokens {
		out[k] = v
	}
	return out
}

// LatestRevision returns the committed revision, or 0 if Absent.
func (s State) LatestRevision() int64 {
	return s.latestRevision
}

// MergePayload builds the root document fields a push commits, preserving
// prior batch tokens and adding tokenForRevision if non-empty (the
// side-batch path links its token in the same write that advances
// latestRevision).
func (s State) MergePayload(newRevision int64, tokenForRevision string) map[string]any {
	tokens := s.BatchTokens()
	if tokenForRevision != "" {
		tokens[FormatRevision(newRevision)] = tokenForRevision
	}
	tokensAny := make(map[string]any, len(tokens))
	for k, v := range tokens {
		tokensAny[k] = v
	}
	return map[string]any{
		FieldLatestRevision: newRevision,
		FieldLatestDate:     time.Now().UTC().Format(time.RFC3339),
		FieldBatchTokens:    tokensAny,
	}
}

func FormatRevision(r int64) string {
	return strconv.FormatInt(r, 10)
}
