// Package gate provides the single binary gate that serializes access to a
// device's pending-operation state.
package gate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrRetry is returned when the caller's context ends before the gate is acquired.
var ErrRetry = errors.New("interrupted while waiting for gate, retry")

// Gate is a mutual-exclusion gate with capacity 1 and interruptible acquisition.
type Gate struct {
	sem *semaphore.Weighted
}

// New creates an open gate.
func New() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is owned or ctx is done.
// On interruption the returned error matches ErrRetry and wraps ctx.Err().
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrRetry, err)
	}
	return nil
}

// Lock acquires the gate without honoring cancellation.
// Only completion and rollback paths use it; they hold the gate briefly.
func (g *Gate) Lock() {
	_ = g.sem.Acquire(context.Background(), 1)
}

// TryAcquire acquires the gate only if it is free.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release frees the gate. Releasing a gate that is not held panics.
func (g *Gate) Release() {
	g.sem.Release(1)
}
