package banking

import (
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// A Verdict is the result of a deadlock check.
type Verdict struct {
	// Deadlocked is true if some task did not finish within the timeout.
	Deadlocked bool

	// Stuck lists the indices of the tasks still running, in order.
	Stuck []int

	// Elapsed is the time spent waiting.
	Elapsed time.Duration
}

// DetectDeadlock runs every task in its own goroutine and waits at most
// timeout for all of them to finish. Tasks that are still running are
// reported as stuck and are left running.
//
// This is a heuristic. A slow task looks the same as a blocked one.
func DetectDeadlock(timeout time.Duration, tasks ...func()) Verdict {
	start := time.Now()
	finished := make([]atomic.Bool, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			task()
			finished[i].Store(true)

			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return Verdict{Elapsed: time.Since(start)}
	case <-timer.C:
	}

	v := Verdict{Elapsed: time.Since(start)}
	for i := range finished {
		if !finished[i].Load() {
			v.Stuck = append(v.Stuck, i)
		}
	}

	// Everything may have finished right at the deadline.
	v.Deadlocked = len(v.Stuck) > 0

	return v
}
