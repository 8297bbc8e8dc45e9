// Command melonsync-inspect opens the bundled Pebble store directly and
// prints a sync context's root state, a small standalone tool for poking
// at persisted state without going through the HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"melonsync/pkg/config"
	"melonsync/pkg/logger"
	"melonsync/pkg/remotestore/pebblestore"
	"melonsync/pkg/revision"
)

func main() {
	var storePath, handle string
	flag.StringVar(&storePath, "store", "", "path to the bundled Pebble store")
	flag.StringVar(&handle, "handle", "", "sync context handle to inspect")
	flag.Parse()

	if handle == "" {
		fmt.Fprintln(os.Stderr, "--handle required")
		os.Exit(2)
	}
	if storePath == "" {
		storePath = config.Defaults().Store.Path
	}

	logger.Init()

	store, err := pebblestore.Open(storePath, config.DefaultWriteLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "melonsync-inspect: open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	root := store.Root(handle)
	snap, err := root.Get(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "melonsync-inspect: read root: %v\n", err)
		os.Exit(1)
	}
	if !snap.Exists {
		fmt.Printf("%s: no root document (never pushed to)\n", handle)
		return
	}

	state := revision.FromDoc(snap.Exists, snap.Data)
	out := map[string]any{
		"handle":         handle,
		"latestRevision": state.LatestRevision(),
		"nextRevision":   state.NextRevisionToWrite(),
		"batchTokens":    state.BatchTokens(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
