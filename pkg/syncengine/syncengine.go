// Package syncengine is the adapter-facing front door: it exposes the
// pull/push operations the sync-framework adapter calls and implements the
// single mandated automatic retry of a whole sync on first failure (Design
// Notes §9's "automatic retry" pattern) — a plain wrapper around Pull/Push,
// never a retry loop compounded inside either operation itself.
package syncengine

import (
	"context"

	"melonsync/pkg/config"
	"melonsync/pkg/logger"
	"melonsync/pkg/pull"
	"melonsync/pkg/push"
	"melonsync/pkg/ratelimit"
	"melonsync/pkg/remotestore"
)

// Engine is a bound handle to one sync context (one root document) and the
// set of tables it synchronizes.
type Engine struct {
	Store  remotestore.Store
	Handle string
	Tables []string
	// Limiter throttles outbound calls into Store, one token-bucket per
	// handle. Nil (the default from New) means unthrottled.
	Limiter *ratelimit.Pool
}

// New builds an Engine over store for the given root handle and table set.
func New(store remotestore.Store, handle string, tables []string) *Engine {
	return &Engine{Store: store, Handle: handle, Tables: tables}
}

// NewFromConfig builds an Engine over store with a rate limiter. A non-nil
// limiter is used as given, so Engines built against the same Pool share a
// per-handle budget process-wide; a nil limiter gets a new Pool sized from
// cfg.RateLimit, private to this Engine.
func NewFromConfig(store remotestore.Store, handle string, tables []string, cfg *config.Config, limiter *ratelimit.Pool) *Engine {
	if limiter == nil {
		limiter = ratelimit.NewPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	return &Engine{Store: store, Handle: handle, Tables: tables, Limiter: limiter}
}

// throttle blocks until the engine's rate limiter releases a token for
// Handle, or ctx is done. A nil Limiter never throttles.
func (e *Engine) throttle(ctx context.Context) error {
	if e.Limiter == nil {
		return nil
	}
	return e.Limiter.Wait(ctx, e.Handle)
}

// Pull fetches every change since lastPulledAt (nil for a full pull).
func (e *Engine) Pull(ctx context.Context, lastPulledAt *int64) (pull.Result, error) {
	if err := e.throttle(ctx); err != nil {
		return pull.Result{}, err
	}
	res, err := pull.Pull(ctx, e.Store, e.Handle, e.Tables, lastPulledAt)
	if err == nil {
		return res, nil
	}
	logger.Warn("pull_retrying_after_failure", "handle", e.Handle, "error", err)
	if err := e.throttle(ctx); err != nil {
		return pull.Result{}, err
	}
	return pull.Pull(ctx, e.Store, e.Handle, e.Tables, lastPulledAt)
}

// Push submits changes guarded by lastPulledAt. On failure it performs the
// mandated single retry: a fresh pull re-establishes the current watermark,
// then the push is retried once against that fresh state. If the refresh
// pull itself fails, the original push error is surfaced instead.
func (e *Engine) Push(ctx context.Context, lastPulledAt int64, changes push.Changes) error {
	if err := e.throttle(ctx); err != nil {
		return err
	}
	err := push.Push(ctx, e.Store, e.Handle, lastPulledAt, changes)
	if err == nil {
		return nil
	}
	logger.Warn("push_retrying_after_failure", "handle", e.Handle, "error", err)

	if err := e.throttle(ctx); err != nil {
		return err
	}
	fresh, pullErr := pull.Pull(ctx, e.Store, e.Handle, e.Tables, &lastPulledAt)
	if pullErr != nil {
		return err
	}
	if err := e.throttle(ctx); err != nil {
		return err
	}
	return push.Push(ctx, e.Store, e.Handle, fresh.Timestamp, changes)
}
