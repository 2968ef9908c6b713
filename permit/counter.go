// Package permit provides the counting semaphores the coordination
// components are built on.
package permit

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// A Counter is a counting semaphore with an upper bound and an initial count.
//
// Acquire takes one permit, blocking while none are available. Release
// returns one permit and wakes one waiter. Releasing more permits than were
// taken is a synchronization bug and panics.
type Counter struct {
	w         *semaphore.Weighted
	max       int64
	available atomic.Int64
}

// NewCounter creates a Counter that can hold at most max permits, starting
// with initial available permits.
func NewCounter(max, initial int64) *Counter {
	if max <= 0 {
		panic(fmt.Sprintf("permit: max must be positive, got %d", max))
	}

	if initial < 0 || initial > max {
		panic(fmt.Sprintf("permit: initial %d out of range [0, %d]", initial, max))
	}

	c := &Counter{
		w:   semaphore.NewWeighted(max),
		max: max,
	}

	if taken := max - initial; taken > 0 && !c.w.TryAcquire(taken) {
		panic("permit: fresh semaphore refused initial acquisition")
	}

	c.available.Store(initial)

	return c
}

// NewBinary creates a Counter holding at most one permit. It starts with the
// permit available when set is true.
func NewBinary(set bool) *Counter {
	initial := int64(0)
	if set {
		initial = 1
	}

	return NewCounter(1, initial)
}

// Acquire takes one permit, blocking until one is available or ctx is done.
// On failure it returns ctx.Err() and takes nothing.
func (c *Counter) Acquire(ctx context.Context) error {
	if err := c.w.Acquire(ctx, 1); err != nil {
		return err
	}

	c.available.Add(-1)

	return nil
}

// TryAcquire takes one permit if one is available without blocking.
func (c *Counter) TryAcquire() bool {
	if !c.w.TryAcquire(1) {
		return false
	}

	c.available.Add(-1)

	return true
}

// Release returns one permit. It panics if no permit is currently taken.
func (c *Counter) Release() {
	c.w.Release(1)
	c.available.Add(1)
}

// Available reports how many permits are free. The count is updated right
// after the semaphore call, so a reader can briefly see it one step behind;
// the result is kept within [0, Max]. Use it for observation only.
func (c *Counter) Available() int64 {
	return min(max(c.available.Load(), 0), c.max)
}

// Max returns the upper bound of the counter.
func (c *Counter) Max() int64 {
	return c.max
}
