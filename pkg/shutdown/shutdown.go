// Package shutdown installs the signal handling the admin binaries use to
// stop the vacuum scheduler and HTTP server cleanly.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"melonsync/pkg/logger"
)

// SetupSignalHandler returns a context cancelled on SIGINT/SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String())
		cancel()
	}()

	return ctx, cancel
}
