package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/relay"
)

type relayArgs struct {
	cycles   int
	duration time.Duration
}

func newRelayCmd(root *rootArgs) *cobra.Command {
	args := &relayArgs{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run three stages in strict turn",
		Long: "Three stages hand a permit around a cycle. Together they print " +
			"HELLO once per cycle, never out of order.",
		Args: cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			return runRelay(cc, root, args)
		},
	}

	cmd.Flags().IntVar(&args.cycles, "cycles", 0,
		"Number of cycles; 0 runs until stopped")
	cmd.Flags().DurationVar(&args.duration, "duration", 0,
		"Stop after this long; 0 runs until stopped")

	return cmd
}

func runRelay(cc *cobra.Command, root *rootArgs, args *relayArgs) error {
	if args.cycles < 0 {
		return fmt.Errorf("cycles must not be negative, got %d", args.cycles)
	}

	r := relay.New("Relay")
	r.AcceptHook(newPrintHook(cc.OutOrStdout()).
		on(relay.HookPosEmit, func(ctx hooking.HookCtx) string {
			return ctx.Item.(string)
		}).
		on(relay.HookPosStageEnd, func(ctx hooking.HookCtx) string {
			if ctx.Detail.(relay.Emission).Stage != relay.Stage2 {
				return ""
			}

			return "\n"
		}))

	sim, err := root.buildSimulation(cc)
	if err != nil {
		return err
	}

	sim.RegisterComponent(r)

	ctx, stop := runContext(cc, args.duration)
	defer stop()

	runErr := r.Run(ctx, args.cycles)

	slog.Info("relay stopped",
		"cycles", sim.GetCounter().Count(relay.HookPosStageEnd)/relay.NumStages)

	return finish(sim, runErr)
}
