// Package ratelimit throttles outbound calls to the remote store per sync
// context handle: one token-bucket limiter lazily created per key and
// cached for reuse.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Pool lazily creates and caches one rate.Limiter per handle.
type Pool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

// NewPool builds a Pool with the given per-handle rate and burst. Values
// <= 0 fall back to conservative defaults.
func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &Pool{rps: rps, burst: burst}
}

func (p *Pool) get(handle string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[handle]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[handle] = l
	return l
}

// Allow reports whether a call for handle may proceed now, consuming a
// token if so.
func (p *Pool) Allow(handle string) bool {
	return p.get(handle).Allow()
}

// Wait blocks until a token for handle is available or ctx is done.
func (p *Pool) Wait(ctx context.Context, handle string) error {
	return p.get(handle).Wait(ctx)
}
