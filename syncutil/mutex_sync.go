//go:build !deadlock

// Package syncutil provides the mutex used to guard accounts. Build with
// -tags=deadlock to swap in an instrumented mutex that reports lock order
// inversions and long waits.
package syncutil

import "sync"

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = false

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	sync.Mutex
}
