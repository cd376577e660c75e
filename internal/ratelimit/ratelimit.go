// Package ratelimit provides a bounded-concurrency gate for outbound requests.
// It combines a fixed-capacity permit pool with token-bucket pacing, so callers
// are capped both in how many requests run at once and how fast they start.
package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Acquire after the gate has been closed.
var ErrClosed = errors.New("ratelimit: gate closed")

// Gate bounds concurrent outbound requests.
// Every request must Acquire a permit before being issued and Release it
// unconditionally afterward, success or failure.
type Gate struct {
	permits *semaphore.Weighted
	pacer   *rate.Limiter

	done chan struct{}
}

// NewGate creates a gate with the given permit capacity and pacing.
// capacity: maximum simultaneous in-flight requests.
// rps: request starts per second allowed; burst is the token bucket size.
func NewGate(capacity int, rps float64, burst int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Gate{
		permits: semaphore.NewWeighted(int64(capacity)),
		pacer:   rate.NewLimiter(rate.Limit(rps), burst),
		done:    make(chan struct{}),
	}
}

// Acquire blocks until a permit is available and the pacer allows another
// request start, or until the context is canceled or the gate is closed.
// On success the caller owns one permit and must call Release exactly once.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case <-g.done:
		return ErrClosed
	default:
	}

	if err := g.permits.Acquire(ctx, 1); err != nil {
		return err
	}

	if err := g.pacer.Wait(ctx); err != nil {
		g.permits.Release(1)
		return err
	}

	// Re-check after the waits: a close during Acquire must not hand out permits.
	select {
	case <-g.done:
		g.permits.Release(1)
		return ErrClosed
	default:
	}

	return nil
}

// Release returns a permit to the pool.
func (g *Gate) Release() {
	g.permits.Release(1)
}

// Close rejects all future Acquire calls. In-flight holders may still Release.
// Safe to call multiple times.
func (g *Gate) Close() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
}
