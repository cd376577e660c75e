package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_CapsConcurrency(t *testing.T) {
	const capacity = 3
	g := NewGate(capacity, 1000, 1000)
	defer g.Close()

	var inFlight, maxInFlight int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire() failed: %v", err)
				return
			}
			defer g.Release()

			cur := atomic.AddInt64(&inFlight, 1)
			for {
				prev := atomic.LoadInt64(&maxInFlight)
				if cur <= prev || atomic.CompareAndSwapInt64(&maxInFlight, prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		}()
	}

	wg.Wait()

	if got := atomic.LoadInt64(&maxInFlight); got > capacity {
		t.Errorf("observed %d concurrent holders, want at most %d", got, capacity)
	}
}

func TestGate_ReleaseAfterFailureFreesPermit(t *testing.T) {
	g := NewGate(1, 1000, 1000)
	defer g.Close()

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() failed: %v", err)
	}
	g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() failed after release: %v", err)
	}
	g.Release()
}

func TestGate_AcquireRespectsContext(t *testing.T) {
	g := NewGate(1, 1000, 1000)
	defer g.Close()

	if err := g.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	// Permit pool exhausted; the next acquire must give up with the context.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Acquire(ctx); err == nil {
		t.Error("expected context error, got nil")
		g.Release()
	}
	g.Release()
}

func TestGate_CloseRejectsAcquire(t *testing.T) {
	g := NewGate(2, 1000, 1000)
	g.Close()
	g.Close() // idempotent

	if err := g.Acquire(context.Background()); err != ErrClosed {
		t.Errorf("Acquire() after Close = %v, want ErrClosed", err)
	}
}

func TestGate_PacingDelaysStarts(t *testing.T) {
	// 10 rps with burst 1: the second start should wait ~100ms.
	g := NewGate(5, 10, 1)
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() failed: %v", err)
	}
	g.Release()

	start := time.Now()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() failed: %v", err)
	}
	g.Release()

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second Acquire() returned after %v, expected pacing delay", elapsed)
	}
}
