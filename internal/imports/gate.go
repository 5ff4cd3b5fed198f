package imports

// gate.go implements concurrency control for import pipelines.
//
// The gate uses a semaphore pattern to restrict parallel busy-phase work to
// a configurable maximum. A slot is held while a session uploads and
// analyzes, released while the session sits in review, and re-acquired for
// the save. When all slots are occupied, new requests wait up to maxWait
// before failing with ErrBusy.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentImports is the default limit for parallel pipelines.
const DefaultMaxConcurrentImports = 1

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// Gate controls concurrent pipeline execution.
type Gate struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewGate creates a gate that admits at most maxConcurrent simultaneous
// pipelines. Requests that cannot acquire a slot within maxWait receive
// ErrBusy.
func NewGate(maxConcurrent int, maxWait time.Duration) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &Gate{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a pipeline slot, waiting up to the gate's maxWait.
// Returns nil on success, ErrBusy if the wait expires, or the context's
// error if it is cancelled first. The caller MUST Release() the slot.
func (g *Gate) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.semaphore <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy

	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking. Returns false when full.
func (g *Gate) TryAcquire() bool {
	select {
	case g.semaphore <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a previously acquired slot. Must be called exactly once
// per successful Acquire or TryAcquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()

	<-g.semaphore
}

// Active returns the number of slots currently held.
func (g *Gate) Active() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Capacity returns the maximum number of concurrent pipelines.
func (g *Gate) Capacity() int {
	return cap(g.semaphore)
}

// Available returns the number of free slots.
func (g *Gate) Available() int {
	return cap(g.semaphore) - len(g.semaphore)
}

// WaitForDrain blocks until every slot is released or the context ends.
// Used during shutdown so in-flight imports can finish.
func (g *Gate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if g.Active() == 0 {
				return nil
			}
		}
	}
}

// GateStatus is a snapshot of the gate for monitoring.
type GateStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// Status returns the current gate state.
func (g *Gate) Status() GateStatus {
	g.mu.RLock()
	active := g.active
	g.mu.RUnlock()

	return GateStatus{
		Active:    active,
		Available: cap(g.semaphore) - len(g.semaphore),
		Capacity:  cap(g.semaphore),
	}
}
