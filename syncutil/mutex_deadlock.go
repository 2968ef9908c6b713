//go:build deadlock

// Package syncutil provides the mutex used to guard accounts. Build with
// -tags=deadlock to swap in an instrumented mutex that reports lock order
// inversions and long waits.
package syncutil

import (
	"log/slog"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = true

func init() {
	deadlock.Opts.DeadlockTimeout = 30 * time.Second

	// Parked goroutines are part of the unordered transfer demonstration, so
	// a report must never terminate the process.
	deadlock.Opts.OnPotentialDeadlock = func() {
		slog.Warn("potential deadlock reported by lock instrumentation")
	}
}

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	deadlock.Mutex
}
