package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"melonsync/pkg/remotestore"
)

// ref is a document handle: path is the full slash-joined key, e.g.
// "demo-library/melonBatches/tok1/entries/abc".
type ref struct {
	store *Store
	path  string
}

func (r *ref) ID() string {
	i := strings.LastIndexByte(r.path, '/')
	if i < 0 {
		return r.path
	}
	return r.path[i+1:]
}

func (r *ref) Collection(name string) remotestore.CollectionRef {
	return &collection{store: r.store, base: r.path + "/" + name}
}

func (r *ref) Get(ctx context.Context) (remotestore.Snapshot, error) {
	return getDoc(r.store.db, r.path)
}

func (r *ref) Collections(ctx context.Context) ([]string, error) {
	return listChildSegments(r.store.db, r.path)
}

func getDoc(reader pebble.Reader, path string) (remotestore.Snapshot, error) {
	v, closer, err := reader.Get([]byte(docPrefix + path))
	if err == pebble.ErrNotFound {
		return remotestore.Snapshot{Exists: false}, nil
	}
	if err != nil {
		return remotestore.Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}
	defer closer.Close()

	var data map[string]any
	if err := json.Unmarshal(v, &data); err != nil {
		return remotestore.Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return remotestore.Snapshot{Exists: true, ID: lastSegment(path), Data: data}, nil
}

func lastSegment(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// collection is a CollectionRef: base is the path prefix every document
// directly inside the collection is appended to.
type collection struct {
	store *Store
	base  string
}

func (c *collection) Doc(id string) remotestore.Ref {
	return &ref{store: c.store, path: c.base + "/" + id}
}

func (c *collection) NewDoc() remotestore.Ref {
	return &ref{store: c.store, path: c.base + "/" + c.store.nextAutoID()}
}

func (c *collection) Where(field string, op remotestore.Op, value int64) remotestore.Query {
	q := &query{store: c.store, base: c.base}
	return q.Where(field, op, value)
}

func (c *collection) ListIDs(ctx context.Context) ([]string, error) {
	return listChildSegments(c.store.db, c.base)
}

// listChildSegments walks the raw document keyspace under prefixPath and
// returns the distinct set of immediate next path segments, regardless of
// whether prefixPath+"/"+segment was itself ever Set. This is how an
// abandoned side-batch's row documents (written under
// melonBatches/<token>/<table>/<id> without melonBatches/<token> ever being
// Set) still surface <token> as a child of melonBatches, and <table> as a
// child of melonBatches/<token>.
func listChildSegments(db *pebble.DB, prefixPath string) ([]string, error) {
	prefix := []byte(docPrefix + prefixPath + "/")
	upper := append(append([]byte{}, prefix[:len(prefix)-1]...), '/'+1)

	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", prefixPath, err)
	}
	defer iter.Close()

	seen := make(map[string]bool)
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		rest := string(iter.Key()[len(prefix):])
		seg := rest
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			seg = rest[:i]
		}
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		out = append(out, seg)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list children of %s: %w", prefixPath, err)
	}
	return out, nil
}
