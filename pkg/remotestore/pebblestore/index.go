package pebblestore

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Every top-level integer field of a stored document is indexed under
//
//	idx:<collectionPath>/<field>/<zero-padded value>/<docID>
//
// so a collection query on any numeric field (melonFireRevision for table
// records, revision for delete records) is a single ordered range scan
// instead of a full-collection filter. The index is generalized over field
// name rather than hardcoded, since the pull merger needs range queries on
// two distinct fields depending on record kind.
const padWidth = 20

func padInt64(v int64) string {
	// Shift into an unsigned range so negative values still sort correctly;
	// revisions and record counts in this domain are never negative, but the
	// shift keeps the encoding correct if that ever changes.
	return fmt.Sprintf("%0[2]*[1]d", uint64(v)+(1<<63), padWidth+1)
}

func indexKey(collectionPath, field string, value int64, docID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s/%s", idxPrefix, collectionPath, field, padInt64(value), docID))
}

func indexPrefix(collectionPath, field string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/", idxPrefix, collectionPath, field))
}

// numericFields extracts every int64-representable top-level field from a
// document body so it can be (re)indexed on write.
func numericFields(data map[string]any) map[string]int64 {
	out := make(map[string]int64)
	for k, v := range data {
		switch n := v.(type) {
		case int64:
			out[k] = n
		case int:
			out[k] = int64(n)
		case float64:
			if n == float64(int64(n)) {
				out[k] = int64(n)
			}
		case json.Number:
			if iv, err := n.Int64(); err == nil {
				out[k] = iv
			}
		}
	}
	return out
}

// reindexOnWrite drops the stale index entries for a document's previous
// numeric fields (if any) and writes fresh ones for its new body. Batch is
// whatever pebble.Writer the caller is accumulating into (a *pebble.Batch
// for both Transaction and Batch, so index maintenance never needs its own
// transaction).
func reindexOnWrite(reader pebble.Reader, w pebble.Writer, collectionPath, docID string, newData map[string]any) error {
	old, err := getDoc(reader, collectionPath+"/"+docID)
	if err != nil {
		return err
	}
	if old.Exists {
		for field, v := range numericFields(old.Data) {
			if err := w.Delete(indexKey(collectionPath, field, v, docID), nil); err != nil {
				return err
			}
		}
	}
	for field, v := range numericFields(newData) {
		if err := w.Set(indexKey(collectionPath, field, v, docID), []byte{}, nil); err != nil {
			return err
		}
	}
	return nil
}

func reindexOnDelete(reader pebble.Reader, w pebble.Writer, collectionPath, docID string) error {
	old, err := getDoc(reader, collectionPath+"/"+docID)
	if err != nil {
		return err
	}
	if !old.Exists {
		return nil
	}
	for field, v := range numericFields(old.Data) {
		if err := w.Delete(indexKey(collectionPath, field, v, docID), nil); err != nil {
			return err
		}
	}
	return nil
}
