// Package queueing implements a bounded buffer that moves items in pairs
// between producers and consumers.
//
// Two counting semaphores track free and filled slots and a mutex guards the
// buffer body. A pair needs two slots, and the two slots are taken with two
// separate single-permit acquisitions, so producers (and consumers) can
// interleave between the first and second acquisition. The mutex is held only
// around the mutation, never while waiting for permits.
package queueing

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/naming"
	"github.com/sarchlab/lockstep/permit"
)

// HookPosProduce marks when a pair is appended to the buffer.
var HookPosProduce = &hooking.HookPos{Name: "Pair Produce"}

// HookPosConsume marks when a pair is removed from the buffer.
var HookPosConsume = &hooking.HookPos{Name: "Pair Consume"}

// A Pair is two payload values that enter and leave the buffer together.
type Pair[T any] struct {
	First  T
	Second T
}

func (p Pair[T]) String() string {
	return fmt.Sprintf("%v, %v", p.First, p.Second)
}

// Occupancy is the buffer level observed while a mutation was applied.
type Occupancy struct {
	Size     int
	Capacity int
}

// A PairBuffer is a bounded FIFO queue that is filled and drained one pair at
// a time.
type PairBuffer[T any] struct {
	hooking.HookableBase
	naming.NamedBase

	capacity int
	free     *permit.Counter
	filled   *permit.Counter

	lock     sync.Mutex
	elements []T
}

// NewPairBuffer creates a buffer that holds at most capacity elements, that
// is capacity/2 pairs. The capacity must be a positive even number.
func NewPairBuffer[T any](name string, capacity int) *PairBuffer[T] {
	if capacity < 2 || capacity%2 != 0 {
		log.Panicf("pair buffer capacity must be a positive even number, got %d",
			capacity)
	}

	return &PairBuffer[T]{
		NamedBase: naming.MakeNamedBase(name),
		capacity:  capacity,
		free:      permit.NewCounter(int64(capacity), int64(capacity)),
		filled:    permit.NewCounter(int64(capacity), 0),
		elements:  make([]T, 0, capacity),
	}
}

// Produce blocks until two slots are free and appends both elements of the
// pair. If ctx ends while waiting, permits taken so far are given back and
// ctx.Err() is returned.
func (b *PairBuffer[T]) Produce(ctx context.Context, actor string, p Pair[T]) error {
	if err := acquireTwo(ctx, b.free); err != nil {
		return err
	}

	b.lock.Lock()
	b.push(p)
	b.invoke(actor, HookPosProduce, p)
	b.lock.Unlock()

	b.filled.Release()
	b.filled.Release()

	return nil
}

// Consume blocks until two slots are filled and removes the two oldest
// elements. If ctx ends while waiting, permits taken so far are given back
// and ctx.Err() is returned.
func (b *PairBuffer[T]) Consume(ctx context.Context, actor string) (Pair[T], error) {
	if err := acquireTwo(ctx, b.filled); err != nil {
		return Pair[T]{}, err
	}

	b.lock.Lock()
	p := b.pop()
	b.invoke(actor, HookPosConsume, p)
	b.lock.Unlock()

	b.free.Release()
	b.free.Release()

	return p, nil
}

func acquireTwo(ctx context.Context, c *permit.Counter) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}

	if err := c.Acquire(ctx); err != nil {
		c.Release()

		return err
	}

	return nil
}

func (b *PairBuffer[T]) push(p Pair[T]) {
	if len(b.elements)+2 > b.capacity {
		log.Panic("pair buffer overflow")
	}

	b.elements = append(b.elements, p.First, p.Second)
}

func (b *PairBuffer[T]) pop() Pair[T] {
	if len(b.elements) < 2 {
		log.Panic("pair buffer underflow")
	}

	p := Pair[T]{First: b.elements[0], Second: b.elements[1]}

	var zero T
	b.elements[0], b.elements[1] = zero, zero
	b.elements = b.elements[2:]

	if len(b.elements) == 0 {
		b.elements = make([]T, 0, b.capacity)
	}

	return p
}

func (b *PairBuffer[T]) invoke(actor string, pos *hooking.HookPos, p Pair[T]) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Actor:  actor,
		Pos:    pos,
		Item:   p,
		Detail: Occupancy{Size: len(b.elements), Capacity: b.capacity},
	})
}

// Capacity returns the maximum number of elements the buffer holds.
func (b *PairBuffer[T]) Capacity() int {
	return b.capacity
}

// Size returns the number of elements currently in the buffer.
func (b *PairBuffer[T]) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.elements)
}

// FreePermits returns the number of free-slot permits not yet taken.
func (b *PairBuffer[T]) FreePermits() int64 {
	return b.free.Available()
}

// FilledPermits returns the number of filled-slot permits not yet taken.
func (b *PairBuffer[T]) FilledPermits() int64 {
	return b.filled.Available()
}

// PairBufferState is a copy of the buffer taken at one instant.
type PairBufferState struct {
	Name     string
	Capacity int
	Size     int
	Free     int64
	Filled   int64
	Elements []string
}

// State copies the buffer contents under the buffer lock. Elements are
// rendered with fmt.Sprint, oldest first.
func (b *PairBuffer[T]) State() any {
	b.lock.Lock()
	elements := make([]string, len(b.elements))
	for i, e := range b.elements {
		elements[i] = fmt.Sprint(e)
	}
	b.lock.Unlock()

	return PairBufferState{
		Name:     b.Name(),
		Capacity: b.capacity,
		Size:     len(elements),
		Free:     b.free.Available(),
		Filled:   b.filled.Available(),
		Elements: elements,
	}
}
