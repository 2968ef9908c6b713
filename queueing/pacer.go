package queueing

import (
	"context"
	"math/rand/v2"
	"time"
)

// A Pacer decides how long a worker rests between two iterations.
type Pacer interface {
	// Pause blocks for the rest period or until ctx is done, in which case it
	// returns ctx.Err().
	Pause(ctx context.Context) error
}

// NoPacer never rests.
type NoPacer struct{}

// Pause returns immediately unless ctx is already done.
func (NoPacer) Pause(ctx context.Context) error {
	return ctx.Err()
}

// RandomPacer rests for a uniformly random duration in [Min, Max).
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

// Pause sleeps for a random duration.
func (p RandomPacer) Pause(ctx context.Context) error {
	d := p.Min
	if p.Max > p.Min {
		d += rand.N(p.Max - p.Min)
	}

	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
