// Package state manages the on-disk runtime layout a melonsync deployment
// keeps alongside the bundled reference store: the state/vacuum and
// state/tmp directories under the store path. Nothing in this module
// writes into them; Ensure only creates and validates them.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the canonical runtime folder layout under a store path.
type Paths struct {
	Vacuum string
	Tmp    string
}

// Ensure creates (or validates) the runtime directories under storePath,
// rejecting symlinks and world-writable directories.
func Ensure(storePath string) (Paths, error) {
	base := filepath.Join(storePath, "state")
	p := Paths{
		Vacuum: filepath.Join(base, "vacuum"),
		Tmp:    filepath.Join(base, "tmp"),
	}

	for _, dir := range []string{p.Vacuum, p.Tmp} {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return Paths{}, fmt.Errorf("create parent for %s: %w", dir, err)
		}
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return Paths{}, fmt.Errorf("state path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return Paths{}, fmt.Errorf("state path exists and is not a directory: %s", dir)
			}
			if fi.Mode().Perm()&0o002 != 0 {
				return Paths{}, fmt.Errorf("state path is world-writable: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Paths{}, fmt.Errorf("create state path %s: %w", dir, err)
		}
	}
	return p, nil
}
