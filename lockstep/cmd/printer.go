package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/lockstep/hooking"
)

// A printHook writes the text formatted for each event at the positions it
// knows. Formats end their own lines.
type printHook struct {
	lock    sync.Mutex
	w       io.Writer
	formats map[*hooking.HookPos]func(hooking.HookCtx) string
}

func newPrintHook(w io.Writer) *printHook {
	return &printHook{
		w:       w,
		formats: make(map[*hooking.HookPos]func(hooking.HookCtx) string),
	}
}

func (h *printHook) on(
	pos *hooking.HookPos,
	format func(hooking.HookCtx) string,
) *printHook {
	h.formats[pos] = format
	return h
}

func (h *printHook) Func(ctx hooking.HookCtx) {
	format, ok := h.formats[ctx.Pos]
	if !ok {
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	fmt.Fprint(h.w, format(ctx))
}
