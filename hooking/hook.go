// Package hooking is the reporting capability of the coordination components.
//
// Components never format output themselves. At every interesting site they
// invoke the hooks registered with them, passing a HookCtx that names the
// component, the actor that caused the event, the position, and the payload.
// Hooks are called while the component may be holding its own locks, so a
// hook must return quickly and must never call back into the component.
package hooking

import "github.com/sarchlab/lockstep/naming"

// A HookPos names a site where a component reports. Positions are compared by
// pointer, so each site declares one package-level value.
type HookPos struct {
	Name string
}

// A HookCtx describes one reported event.
type HookCtx struct {
	// Domain is the component reporting the event.
	Domain Hookable

	// Actor identifies the worker on whose behalf the component acted, for
	// example "Producer[2]" or "Thread-1". It may be empty.
	Actor string

	// Pos is the reporting site.
	Pos *HookPos

	// Item carries the primary subject associated with the hook (a pair, an
	// emitted token, an account ID).
	Item any

	// Detail holds optional auxiliary data; hook sites may leave it nil.
	Detail any
}

// DomainName returns the name of the domain if it has one.
func (c HookCtx) DomainName() string {
	if named, ok := c.Domain.(naming.Named); ok {
		return named.Name()
	}

	return ""
}

// A Hookable component reports its events to the hooks it accepted.
//
// Hooks are attached while the component is being set up, before any worker
// touches it, and stay attached for its lifetime.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
	InvokeHook(ctx HookCtx)
}

// A Hook receives reported events.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts an ordinary function to a Hook. HookFunc values are not
// comparable, so the same HookFunc cannot be detected as a duplicate.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// NopHook ignores every invocation.
type NopHook struct{}

// Func does nothing.
func (NopHook) Func(HookCtx) {}

// HookableBase implements Hookable. Embed it to make a component hookable.
//
// The list is only appended to during setup and read concurrently afterwards,
// so it needs no lock.
type HookableBase struct {
	hooks []Hook
}

// NumHooks returns the number of attached hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// Hooks returns the attached hooks in attachment order.
func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// AcceptHook attaches a hook. Attaching the same hook twice panics; HookFunc
// values cannot be compared and are always accepted.
func (h *HookableBase) AcceptHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); !isFunc && h.attached(hook) {
		panic("hook attached twice")
	}

	h.hooks = append(h.hooks, hook)
}

func (h *HookableBase) attached(hook Hook) bool {
	for _, existing := range h.hooks {
		if _, isFunc := existing.(HookFunc); isFunc {
			continue
		}

		if existing == hook {
			return true
		}
	}

	return false
}

// InvokeHook calls every attached hook in order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
