package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/lockstep/banking"
	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/simulation"
)

// Transfer modes.
const (
	modeUnordered = "unordered"
	modeOrdered   = "ordered"
	modeBoth      = "both"
)

type transferArgs struct {
	mode    string
	gap     time.Duration
	jitter  time.Duration
	timeout time.Duration
}

func newTransferCmd(root *rootArgs) *cobra.Command {
	args := &transferArgs{}

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Run two opposite transfers over two accounts",
		Long: "Thread-1 moves 100 from Account1 to Account2 while Thread-2 " +
			"moves 50 back. Locking the source first deadlocks; locking the " +
			"smaller account ID first does not.",
		Args: cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			return runTransfer(cc, root, args)
		},
	}

	cmd.Flags().StringVar(&args.mode, "mode", modeBoth,
		"Lock order to run: unordered, ordered or both")
	cmd.Flags().DurationVar(&args.gap, "gap", 100*time.Millisecond,
		"Pause between taking the first and the second lock")
	cmd.Flags().DurationVar(&args.jitter, "jitter", 0,
		"Random extra pause added to the gap")
	cmd.Flags().DurationVar(&args.timeout, "timeout", 3*time.Second,
		"Time to wait for the transfers before declaring a deadlock")

	return cmd
}

func (a *transferArgs) orders() ([]bool, error) {
	switch strings.ToLower(a.mode) {
	case modeUnordered:
		return []bool{false}, nil
	case modeOrdered:
		return []bool{true}, nil
	case modeBoth:
		return []bool{false, true}, nil
	default:
		return nil, fmt.Errorf("unknown transfer mode %q", a.mode)
	}
}

func (a *transferArgs) validate() error {
	if a.gap < 0 || a.jitter < 0 {
		return fmt.Errorf("gap and jitter must not be negative, got %s and %s",
			a.gap, a.jitter)
	}

	if a.timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", a.timeout)
	}

	return nil
}

func runTransfer(cc *cobra.Command, root *rootArgs, args *transferArgs) error {
	orders, err := args.orders()
	if err != nil {
		return err
	}

	if err := args.validate(); err != nil {
		return err
	}

	sim, err := root.buildSimulation(cc)
	if err != nil {
		return err
	}

	t := banking.MakeBuilder().
		WithGap(args.gap).
		WithJitter(args.jitter).
		Build("Bank")
	t.AcceptHook(newPrintHook(cc.OutOrStdout()).
		on(banking.HookPosLockAcquired, formatLockEvent("locked")).
		on(banking.HookPosLockReleased, formatLockEvent("unlocked")).
		on(banking.HookPosTransferred, formatTransferEvent("moved")).
		on(banking.HookPosInsufficientFunds, formatTransferEvent("could not move")))
	sim.RegisterComponent(t)

	for _, ordered := range orders {
		report := banking.Scenario{
			Transferer: t,
			Timeout:    args.timeout,
			Ordered:    ordered,
			Prepare:    exposeScenario(sim),
		}.Run()

		printReport(cc.OutOrStdout(), report)
	}

	return finish(sim, nil)
}

func exposeScenario(
	sim *simulation.Simulation,
) func([2]*banking.Account, *banking.LockTable) {
	return func(accounts [2]*banking.Account, table *banking.LockTable) {
		for _, a := range accounts {
			sim.RegisterAccount(a)
		}

		sim.RegisterLockTable(table)
	}
}

func formatLockEvent(verb string) func(hooking.HookCtx) string {
	return func(ctx hooking.HookCtx) string {
		return fmt.Sprintf("%s %s %s\n", ctx.Actor, verb, ctx.Detail)
	}
}

func formatTransferEvent(verb string) func(hooking.HookCtx) string {
	return func(ctx hooking.HookCtx) string {
		req := ctx.Item.(banking.TransferRequest)
		b := ctx.Detail.(banking.Balances)

		return fmt.Sprintf("%s %s %s (%d, %d)\n",
			ctx.Actor, verb, req, b.From, b.To)
	}
}

func printReport(w io.Writer, r banking.RunReport) {
	title := "Unordered"
	if r.Ordered {
		title = "Ordered"
	}

	if r.Verdict.Deadlocked {
		fmt.Fprintf(w, "%s transfers: deadlock detected after %s\n",
			title, r.Verdict.Elapsed.Round(time.Millisecond))

		for _, wait := range r.Waits {
			fmt.Fprintf(w, "  %s\n", wait)
		}

		if len(r.Cycle) > 0 {
			cycle := append(slices.Clone(r.Cycle), r.Cycle[0])
			fmt.Fprintf(w, "  Cycle: %s\n", strings.Join(cycle, " -> "))
		}

		return
	}

	fmt.Fprintf(w, "%s transfers: completed in %s\n",
		title, r.Verdict.Elapsed.Round(time.Millisecond))

	for i, o := range r.Outcomes {
		fmt.Fprintf(w, "  Thread-%d: %s\n", i+1, o)
	}

	for _, a := range r.Accounts {
		fmt.Fprintf(w, "  %s: %d\n", a.Name(), r.Balances[a.ID()])
	}
}
