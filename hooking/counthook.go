package hooking

import (
	"sort"
	"sync"
)

// CountHook counts how often each hook position fires, in total and per
// domain.
type CountHook struct {
	lock      sync.Mutex
	posNames  []string
	posCount  map[string]uint64
	perDomain map[string]map[string]uint64
}

// NewCountHook creates a new CountHook.
func NewCountHook() *CountHook {
	return &CountHook{
		posCount:  make(map[string]uint64),
		perDomain: make(map[string]map[string]uint64),
	}
}

// Func counts the invocation.
func (h *CountHook) Func(ctx HookCtx) {
	domain := ctx.DomainName()

	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.posCount[ctx.Pos.Name]; !ok {
		h.posNames = append(h.posNames, ctx.Pos.Name)
	}

	h.posCount[ctx.Pos.Name]++

	counts, ok := h.perDomain[domain]
	if !ok {
		counts = make(map[string]uint64)
		h.perDomain[domain] = counts
	}

	counts[ctx.Pos.Name]++
}

// PosNames returns the positions seen so far, in first-seen order.
func (h *CountHook) PosNames() []string {
	h.lock.Lock()
	defer h.lock.Unlock()

	names := make([]string, len(h.posNames))
	copy(names, h.posNames)

	return names
}

// Count returns how often the given position fired.
func (h *CountHook) Count(pos *HookPos) uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.posCount[pos.Name]
}

// CountFor returns how often the given position fired in a domain.
func (h *CountHook) CountFor(domain string, pos *HookPos) uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.perDomain[domain][pos.Name]
}

// DomainCount is one row of a CountHook snapshot.
type DomainCount struct {
	Domain string `json:"domain"`
	Pos    string `json:"pos"`
	Count  uint64 `json:"count"`
}

// Snapshot returns all the per-domain counters sorted by domain and position.
func (h *CountHook) Snapshot() []DomainCount {
	h.lock.Lock()
	defer h.lock.Unlock()

	rows := make([]DomainCount, 0)
	for domain, counts := range h.perDomain {
		for pos, n := range counts {
			rows = append(rows, DomainCount{Domain: domain, Pos: pos, Count: n})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Domain != rows[j].Domain {
			return rows[i].Domain < rows[j].Domain
		}

		return rows[i].Pos < rows[j].Pos
	})

	return rows
}
