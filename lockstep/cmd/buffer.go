package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/queueing"
)

type bufferArgs struct {
	capacity  int
	producers int
	consumers int
	pairs     int
	duration  time.Duration
	jitter    bool
}

func newBufferCmd(root *rootArgs) *cobra.Command {
	args := &bufferArgs{}

	cmd := &cobra.Command{
		Use:   "buffer",
		Short: "Move pairs through a bounded buffer",
		Long: "Producers add pairs of items to a bounded buffer and consumers " +
			"remove them. Each pair takes two slots, acquired one at a time.",
		Args: cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			return runBuffer(cc, root, args)
		},
	}

	cmd.Flags().IntVar(&args.capacity, "capacity", 100,
		"Number of elements the buffer holds; must be even")
	cmd.Flags().IntVar(&args.producers, "producers", 3, "Number of producers")
	cmd.Flags().IntVar(&args.consumers, "consumers", 1, "Number of consumers")
	cmd.Flags().IntVar(&args.pairs, "pairs", 0,
		"Pairs each producer makes; 0 runs until stopped")
	cmd.Flags().DurationVar(&args.duration, "duration", 0,
		"Stop after this long; 0 runs until stopped")
	cmd.Flags().BoolVar(&args.jitter, "jitter", true,
		"Let workers rest a random time between pairs")

	return cmd
}

func (a *bufferArgs) validate() error {
	if a.capacity < 2 || a.capacity%2 != 0 {
		return fmt.Errorf("capacity must be a positive even number, got %d",
			a.capacity)
	}

	return nil
}

func (a *bufferArgs) pacers() (producer, consumer queueing.Pacer) {
	if !a.jitter {
		return queueing.NoPacer{}, queueing.NoPacer{}
	}

	return queueing.RandomPacer{Min: 500 * time.Millisecond, Max: time.Second},
		queueing.RandomPacer{Min: time.Second, Max: 2 * time.Second}
}

func runBuffer(cc *cobra.Command, root *rootArgs, args *bufferArgs) error {
	if err := args.validate(); err != nil {
		return err
	}

	buffer := queueing.NewPairBuffer[queueing.Item]("Buffer", args.capacity)
	producerPacer, consumerPacer := args.pacers()

	pipeline := queueing.Pipeline{
		Buffer:           buffer,
		Producers:        args.producers,
		Consumers:        args.consumers,
		PairsPerProducer: args.pairs,
		ProducerPacer:    producerPacer,
		ConsumerPacer:    consumerPacer,
	}

	if err := pipeline.Validate(); err != nil {
		return err
	}

	sim, err := root.buildSimulation(cc)
	if err != nil {
		return err
	}

	buffer.AcceptHook(newPrintHook(cc.OutOrStdout()).
		on(queueing.HookPosProduce, formatBufferEvent("produced")).
		on(queueing.HookPosConsume, formatBufferEvent("consumed")))
	sim.RegisterComponent(buffer)

	ctx, stop := runContext(cc, args.duration)
	defer stop()

	runErr := pipeline.Run(ctx)

	counter := sim.GetCounter()
	fmt.Fprintf(cc.OutOrStdout(),
		"Produced %d pairs, consumed %d pairs, %d elements left\n",
		counter.Count(queueing.HookPosProduce),
		counter.Count(queueing.HookPosConsume),
		buffer.Size())

	return finish(sim, runErr)
}

func formatBufferEvent(verb string) func(hooking.HookCtx) string {
	return func(ctx hooking.HookCtx) string {
		occ := ctx.Detail.(queueing.Occupancy)

		return fmt.Sprintf("%s %s [%v] (%d/%d)\n",
			ctx.Actor, verb, ctx.Item, occ.Size, occ.Capacity)
	}
}
