package banking

import (
	"fmt"
	"slices"
	"sync"
)

// A LockTable tracks which actor holds and which actor waits for each
// account lock. It only observes; it never blocks a transfer.
type LockTable struct {
	lock    sync.Mutex
	holders map[*Account]string
	holds   map[string][]*Account
	waiting map[string]*Account
}

// NewLockTable creates an empty table.
func NewLockTable() *LockTable {
	return &LockTable{
		holders: make(map[*Account]string),
		holds:   make(map[string][]*Account),
		waiting: make(map[string]*Account),
	}
}

// Waiting records that actor is about to block on the lock of a.
func (t *LockTable) Waiting(actor string, a *Account) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.waiting[actor] = a
}

// Acquired records that actor now holds the lock of a.
func (t *LockTable) Acquired(actor string, a *Account) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.waiting, actor)
	t.holders[a] = actor
	t.holds[actor] = append(t.holds[actor], a)
}

// Released records that actor gave up the lock of a.
func (t *LockTable) Released(actor string, a *Account) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.holders[a] == actor {
		delete(t.holders, a)
	}

	held := slices.DeleteFunc(t.holds[actor], func(h *Account) bool {
		return h == a
	})
	if len(held) == 0 {
		delete(t.holds, actor)
	} else {
		t.holds[actor] = held
	}
}

// A Wait describes one blocked actor.
type Wait struct {
	Actor    string
	Holds    []*Account
	WaitsFor *Account
	Holder   string
}

func (w Wait) String() string {
	names := make([]string, len(w.Holds))
	for i, a := range w.Holds {
		names[i] = a.name
	}

	return fmt.Sprintf("%s holds %v and waits for %s held by %s",
		w.Actor, names, w.WaitsFor.name, w.Holder)
}

// Waits lists every actor currently blocked on an account lock that someone
// else holds, sorted by actor.
func (t *LockTable) Waits() []Wait {
	t.lock.Lock()
	defer t.lock.Unlock()

	waits := make([]Wait, 0, len(t.waiting))

	for actor, a := range t.waiting {
		holder, ok := t.holders[a]
		if !ok {
			continue
		}

		waits = append(waits, Wait{
			Actor:    actor,
			Holds:    slices.Clone(t.holds[actor]),
			WaitsFor: a,
			Holder:   holder,
		})
	}

	slices.SortFunc(waits, func(a, b Wait) int {
		if a.Actor < b.Actor {
			return -1
		}

		if a.Actor > b.Actor {
			return 1
		}

		return 0
	})

	return waits
}

// Cycle returns the actors of a circular wait, starting from the actor with
// the smallest name, or nil if the wait-for graph has no cycle.
func (t *LockTable) Cycle() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	actors := make([]string, 0, len(t.waiting))
	for actor := range t.waiting {
		actors = append(actors, actor)
	}

	slices.Sort(actors)

	for _, start := range actors {
		if cycle := t.cycleFrom(start); cycle != nil {
			return cycle
		}
	}

	return nil
}

func (t *LockTable) cycleFrom(start string) []string {
	path := []string{start}
	cur := start

	for {
		a, ok := t.waiting[cur]
		if !ok {
			return nil
		}

		holder, ok := t.holders[a]
		if !ok {
			return nil
		}

		if holder == start {
			return path
		}

		if slices.Contains(path, holder) {
			// A cycle that does not pass through start is found from its own
			// smallest member.
			return nil
		}

		path = append(path, holder)
		cur = holder
	}
}
