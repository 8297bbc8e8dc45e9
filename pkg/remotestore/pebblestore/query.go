package pebblestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"melonsync/pkg/remotestore"
)

type condition struct {
	field string
	op    remotestore.Op
	value int64
}

// query implements remotestore.Query. When every condition names the same
// field (the only shape the engine ever builds: a melonFireRevision or
// revision range), Get resolves via a single ordered index range scan.
// Mixed-field queries fall back to a full collection scan filtered in
// memory, which stays correct but loses the index's benefit. The OrderBy
// field is recorded but not applied on its own: range-scan results come
// back in ascending order of the queried field, and fallback-scan results
// in document-id order.
type query struct {
	store      *Store
	base       string
	conditions []condition
	orderBy    string
}

func (q *query) Where(field string, op remotestore.Op, value int64) remotestore.Query {
	q.conditions = append(q.conditions, condition{field: field, op: op, value: value})
	return q
}

func (q *query) OrderBy(field string) remotestore.Query {
	q.orderBy = field
	return q
}

func (q *query) Get(ctx context.Context) ([]remotestore.Snapshot, error) {
	if field, ok := singleField(q.conditions); ok {
		return q.rangeScan(field)
	}
	return q.scanAndFilter()
}

func singleField(conds []condition) (string, bool) {
	if len(conds) == 0 {
		return "", false
	}
	field := conds[0].field
	for _, c := range conds[1:] {
		if c.field != field {
			return "", false
		}
	}
	return field, true
}

// rangeScan resolves every condition on field via the secondary index,
// iterating docIDs in ascending value order directly off the index's sort
// order (no in-memory sort needed).
func (q *query) rangeScan(field string) ([]remotestore.Snapshot, error) {
	var lower, upper *int64
	for _, c := range q.conditions {
		v := c.value
		switch c.op {
		case remotestore.OpGreaterEqual:
			lower = &v
		case remotestore.OpEqual:
			lv, uv := v, v+1
			lower, upper = &lv, &uv
		case remotestore.OpLess:
			upper = &v
		}
	}

	prefix := indexPrefix(q.base, field)
	var lowerKey []byte
	if lower != nil {
		lowerKey = indexKey(q.base, field, *lower, "")
	} else {
		lowerKey = prefix
	}
	var upperKey []byte
	if upper != nil {
		upperKey = indexKey(q.base, field, *upper, "")
	} else {
		// prefix ends in '/'; replacing that byte with '0' (the next byte
		// value) bounds every key that starts with prefix.
		upperKey = append(append([]byte{}, prefix[:len(prefix)-1]...), '/'+1)
	}

	iter, err := q.store.db.NewIter(&pebble.IterOptions{LowerBound: lowerKey, UpperBound: upperKey})
	if err != nil {
		return nil, fmt.Errorf("range scan %s/%s: %w", q.base, field, err)
	}
	defer iter.Close()

	var out []remotestore.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		idx := strings.LastIndexByte(key, '/')
		if idx < 0 {
			continue
		}
		docID := key[idx+1:]
		snap, err := getDoc(q.store.db, q.base+"/"+docID)
		if err != nil {
			return nil, err
		}
		if !snap.Exists {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (q *query) scanAndFilter() ([]remotestore.Snapshot, error) {
	prefix := []byte(docPrefix + q.base + "/")
	upper := append(append([]byte{}, prefix[:len(prefix)-1]...), '/'+1)

	iter, err := q.store.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.base, err)
	}
	defer iter.Close()

	var out []remotestore.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		rest := strings.TrimPrefix(string(iter.Key()), docPrefix+q.base+"/")
		if strings.Contains(rest, "/") {
			continue // belongs to a deeper nested collection, not a direct child
		}
		snap, err := getDoc(q.store.db, q.base+"/"+rest)
		if err != nil {
			return nil, err
		}
		if !snap.Exists || !matches(snap.Data, q.conditions) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func matches(data map[string]any, conds []condition) bool {
	for _, c := range conds {
		v, ok := numericFields(data)[c.field]
		if !ok {
			return false
		}
		switch c.op {
		case remotestore.OpGreaterEqual:
			if v < c.value {
				return false
			}
		case remotestore.OpLess:
			if v >= c.value {
				return false
			}
		case remotestore.OpEqual:
			if v != c.value {
				return false
			}
		}
	}
	return true
}
