package banking

import (
	"time"

	"github.com/sarchlab/lockstep/naming"
)

// Builder can build transferers.
type Builder struct {
	gap    time.Duration
	jitter time.Duration
	locks  *LockTable
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		gap: 100 * time.Millisecond,
	}
}

// WithGap sets the pause between taking the first and the second lock.
func (b Builder) WithGap(gap time.Duration) Builder {
	b.gap = gap
	return b
}

// WithJitter adds a uniformly random extra pause in [0, jitter) to the gap.
func (b Builder) WithJitter(jitter time.Duration) Builder {
	b.jitter = jitter
	return b
}

// WithLockTable makes the transferer report lock ownership to the table.
func (b Builder) WithLockTable(table *LockTable) Builder {
	b.locks = table
	return b
}

// Build creates a transferer.
func (b Builder) Build(name string) *Transferer {
	return &Transferer{
		NamedBase: naming.MakeNamedBase(name),
		gap:       b.gap,
		jitter:    b.jitter,
		locks:     b.locks,
	}
}
