// Package relay runs three stages in strict round robin.
//
// Each stage owns a binary permit. A stage waits for its own permit, runs its
// body once, then sets the permit of the next stage. Exactly one permit is set
// at any time, so at most one body runs and the order is total:
// Stage0, Stage1, Stage2, Stage0, ...
package relay

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/naming"
	"github.com/sarchlab/lockstep/permit"
)

// NumStages is the length of the cycle.
const NumStages = 3

// A Stage is a position in the cycle.
type Stage int

// The stages of the relay.
const (
	Stage0 Stage = iota
	Stage1
	Stage2
)

// Next returns the stage that runs after s.
func (s Stage) Next() Stage {
	return (s + 1) % NumStages
}

func (s Stage) String() string {
	return naming.BuildNameWithIndex("", "Stage", int(s))
}

func (s Stage) valid() bool {
	return s >= 0 && s < NumStages
}

var (
	// HookPosStageStart marks when a stage has its permit and starts its body.
	HookPosStageStart = &hooking.HookPos{Name: "Stage Start"}

	// HookPosStageEnd marks when a stage body returns, before the next stage is
	// released.
	HookPosStageEnd = &hooking.HookPos{Name: "Stage End"}

	// HookPosEmit marks a token emitted by a stage body.
	HookPosEmit = &hooking.HookPos{Name: "Emit"}
)

// Emission locates an emitted token in the run.
type Emission struct {
	Stage Stage
	Cycle int
}

// A Body is the work a stage does once per cycle. It reports its output
// through emit.
type Body func(emit func(token string))

// EmitTokens returns a body that emits the given tokens in order.
func EmitTokens(tokens ...string) Body {
	return func(emit func(string)) {
		for _, t := range tokens {
			emit(t)
		}
	}
}

// A Relay is a cycle of stages.
type Relay struct {
	hooking.HookableBase
	naming.NamedBase

	permits [NumStages]*permit.Counter
	bodies  [NumStages]Body
}

// New creates a relay whose first cycle starts at Stage0. The default bodies
// together emit "H", "E", "L", "L", "O" per cycle.
func New(name string) *Relay {
	r := &Relay{
		NamedBase: naming.MakeNamedBase(name),
		bodies: [NumStages]Body{
			EmitTokens("H", "E"),
			EmitTokens("L", "L"),
			EmitTokens("O"),
		},
	}

	for s := range NumStages {
		r.permits[s] = permit.NewBinary(Stage(s) == Stage0)
	}

	return r
}

// SetBody replaces the body of a stage. It must be called before the relay
// runs.
func (r *Relay) SetBody(s Stage, body Body) {
	if !s.valid() {
		panic(fmt.Sprintf("invalid stage %d", s))
	}

	if body == nil {
		body = func(func(string)) {}
	}

	r.bodies[s] = body
}

// Ready reports whether the stage currently holds the right to run.
func (r *Relay) Ready(s Stage) bool {
	return r.permits[s].Available() > 0
}

// RelayState lists which stages hold their permit.
type RelayState struct {
	Name  string
	Ready []bool
}

// State reads the permits of all stages.
func (r *Relay) State() any {
	ready := make([]bool, NumStages)
	for s := range NumStages {
		ready[s] = r.Ready(Stage(s))
	}

	return RelayState{Name: r.Name(), Ready: ready}
}

// RunStage runs one stage for the given number of cycles, or until ctx is
// done when cycles is zero. Cancellation returns ctx.Err(). A relay whose
// run was cancelled part way should not be run again.
func (r *Relay) RunStage(ctx context.Context, s Stage, cycles int) error {
	if !s.valid() {
		return fmt.Errorf("invalid stage %d", s)
	}

	own := r.permits[s]
	next := r.permits[s.Next()]
	actor := s.String()

	for cycle := 0; cycles == 0 || cycle < cycles; cycle++ {
		if err := own.Acquire(ctx); err != nil {
			return err
		}

		at := Emission{Stage: s, Cycle: cycle}

		r.invoke(actor, HookPosStageStart, nil, at)
		r.bodies[s](func(token string) {
			r.invoke(actor, HookPosEmit, token, at)
		})
		r.invoke(actor, HookPosStageEnd, nil, at)

		next.Release()
	}

	return nil
}

// Run runs all stages concurrently and waits for them. With cycles zero it
// runs until ctx is done; cancellation is not reported as an error.
func (r *Relay) Run(ctx context.Context, cycles int) error {
	if cycles < 0 {
		return fmt.Errorf("cycles must not be negative, got %d", cycles)
	}

	g, gctx := errgroup.WithContext(ctx)

	for s := range NumStages {
		g.Go(func() error {
			err := r.RunStage(gctx, Stage(s), cycles)
			if errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return err
		})
	}

	return g.Wait()
}

func (r *Relay) invoke(actor string, pos *hooking.HookPos, item any, at Emission) {
	if r.NumHooks() == 0 {
		return
	}

	r.InvokeHook(hooking.HookCtx{
		Domain: r,
		Actor:  actor,
		Pos:    pos,
		Item:   item,
		Detail: at,
	})
}
