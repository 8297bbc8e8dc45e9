// Command melonsync runs the admin HTTP surface and vacuum janitor against
// the bundled Pebble-backed reference remote store. The sync engine itself
// (pkg/syncengine) is a library meant to be called in-process by a local
// database adapter; this binary only hosts the operational surface around
// it — health probes, metrics, debug inspection, and scheduled cleanup.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"melonsync/pkg/adminapi"
	"melonsync/pkg/banner"
	"melonsync/pkg/config"
	"melonsync/pkg/logger"
	"melonsync/pkg/remotestore/pebblestore"
	"melonsync/pkg/shutdown"
	"melonsync/pkg/state"
	"melonsync/pkg/vacuum"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load(".env")
	logger.Init()

	flags := config.ParseFlags(os.Args[1:])
	cfg, err := config.Effective(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "melonsync: %v\n", err)
		os.Exit(1)
	}

	if _, err := state.Ensure(cfg.Store.Path); err != nil {
		fmt.Fprintf(os.Stderr, "melonsync: %v\n", err)
		os.Exit(1)
	}

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	banner.Print(cfg, verStr)

	store, err := pebblestore.Open(cfg.Store.Path, cfg.Store.WriteLimit)
	if err != nil {
		logger.Error("store_open_failed", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if cfg.Vacuum.Enabled {
		j := &vacuum.Janitor{Store: store, Cron: cfg.Vacuum.Cron, Handles: cfg.Vacuum.Handles}
		if err := j.Start(ctx); err != nil {
			logger.Error("vacuum_start_failed", "error", err)
			os.Exit(1)
		}
	}

	admin := &adminapi.Server{Store: store, Version: verStr}
	errCh := admin.Start(ctx, cfg.Admin.Address)
	logger.Info("admin_http_listening", "addr", cfg.Admin.Address)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("admin_http_exited", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting_down")
	}
}
