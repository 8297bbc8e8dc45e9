package syncengine

import (
	"context"
	"testing"

	"melonsync/pkg/config"
	"melonsync/pkg/push"
	"melonsync/pkg/ratelimit"
	"melonsync/pkg/remotestore/pebblestore"
)

func TestPushThenPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	e := New(store, "ctx1", []string{"entries"})
	if err := e.Push(ctx, 1, push.Changes{
		"entries": push.TableChanges{Created: []push.Row{{"id": "aaa", "data": "hello"}}},
	}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	res, err := e.Pull(ctx, nil)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Changes["entries"].Updated) != 1 {
		t.Fatalf("expected 1 updated row, got %+v", res.Changes["entries"])
	}
}

func TestPushRetriesWithFreshWatermarkOnStaleWrite(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	e := New(store, "ctx1", []string{"entries"})
	// Advance the root to revision 1 behind the engine's back.
	if err := push.Push(ctx, store, "ctx1", 1, push.Changes{
		"entries": push.TableChanges{Created: []push.Row{{"id": "zzz"}}},
	}); err != nil {
		t.Fatalf("seed push: %v", err)
	}

	// Caller believes the watermark is still 1; the retry should refresh
	// it to 2 and succeed.
	if err := e.Push(ctx, 1, push.Changes{
		"entries": push.TableChanges{Created: []push.Row{{"id": "aaa"}}},
	}); err != nil {
		t.Fatalf("Push with stale watermark should self-heal via retry: %v", err)
	}

	res, err := e.Pull(ctx, nil)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(res.Changes["entries"].Updated) != 2 {
		t.Fatalf("expected both rows present after retry, got %+v", res.Changes["entries"].Updated)
	}
}

// TestPullHonorsRateLimiter confirms a configured Limiter is actually
// consulted before a store call, not just constructed and ignored: a
// cancelled context makes Wait return immediately with ctx.Err(), which
// only happens if throttle runs ahead of pull.Pull.
func TestPullHonorsRateLimiter(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	e := New(store, "ctx1", []string{"entries"})
	e.Limiter = ratelimit.NewPool(1, 1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.Pull(cancelled, nil); err == nil {
		t.Fatalf("expected Pull to fail against an already-cancelled context with a limiter wired in")
	}
}

func TestNewFromConfigWiresConfiguredLimiter(t *testing.T) {
	ctx := context.Background()
	store, err := pebblestore.OpenMem(500)
	if err != nil {
		t.Fatalf("OpenMem: %v", err)
	}
	defer store.Close()

	cfg := config.Defaults()
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 1
	e := NewFromConfig(store, "ctx1", []string{"entries"}, cfg, nil)
	if e.Limiter == nil {
		t.Fatalf("expected NewFromConfig to set a Limiter")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.Pull(cancelled, nil); err == nil {
		t.Fatalf("expected Pull to fail against an already-cancelled context with a config-derived limiter")
	}
}
