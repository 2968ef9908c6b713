// Package cmd provides the command-line interface for lockstep.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sarchlab/lockstep/datarecording"
	"github.com/sarchlab/lockstep/logging"
	"github.com/sarchlab/lockstep/simulation"
)

// Environment variables that provide flag defaults.
const (
	EnvLogLevel    = "LOCKSTEP_LOG_LEVEL"
	EnvLogFormat   = "LOCKSTEP_LOG_FORMAT"
	EnvRecord      = "LOCKSTEP_RECORD"
	EnvMonitorPort = "LOCKSTEP_MONITOR_PORT"
)

type rootArgs struct {
	logLevel  string
	logFormat string

	record           bool
	recordPath       string
	recordClickHouse string

	monitor     bool
	monitorPort int
	openBrowser bool
}

// LoadDotEnv loads environment variables from the given file. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}

// NewRootCmd returns the root command with all demonstrations attached.
func NewRootCmd(name, short, long string) *cobra.Command {
	args := &rootArgs{}

	cmd := &cobra.Command{
		Use:           name,
		Short:         short,
		Long:          long,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&args.logLevel, "log_level",
		envOr(EnvLogLevel, "warn"),
		"Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&args.logFormat, "log_format",
		envOr(EnvLogFormat, logging.TextFormat),
		"Set the log format (text, json)")
	cmd.PersistentFlags().BoolVar(&args.record, "record",
		envBool(EnvRecord),
		"Record every reported event to a SQLite file")
	cmd.PersistentFlags().StringVar(&args.recordPath, "record_path", "",
		"SQLite file name without extension; empty picks a unique name")
	cmd.PersistentFlags().StringVar(&args.recordClickHouse, "record_clickhouse", "",
		"Record to the ClickHouse server at this DSN instead of SQLite")
	cmd.PersistentFlags().BoolVar(&args.monitor, "monitor", false,
		"Serve the monitoring dashboard while running")
	cmd.PersistentFlags().IntVar(&args.monitorPort, "monitor_port",
		envInt(EnvMonitorPort),
		"Port of the monitoring server; 0 picks a random port")
	cmd.PersistentFlags().BoolVar(&args.openBrowser, "open_browser", false,
		"Open the monitoring dashboard in a browser")

	cmd.PersistentPreRunE = func(cc *cobra.Command, _ []string) error {
		if err := args.validate(); err != nil {
			return err
		}

		_, err := logging.Setup(cc.ErrOrStderr(), args.logLevel, args.logFormat)

		return err
	}

	cmd.AddCommand(newBufferCmd(args))
	cmd.AddCommand(newRelayCmd(args))
	cmd.AddCommand(newTransferCmd(args))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func (a *rootArgs) validate() error {
	var result *multierror.Error

	if _, err := logging.ParseLevel(a.logLevel); err != nil {
		result = multierror.Append(result, err)
	}

	switch strings.ToLower(a.logFormat) {
	case "", logging.TextFormat, logging.JSONFormat:
	default:
		result = multierror.Append(result,
			fmt.Errorf("%w: %q", logging.ErrUnknownFormat, a.logFormat))
	}

	if a.monitorPort < 0 || a.monitorPort > 65535 {
		result = multierror.Append(result,
			fmt.Errorf("invalid monitor port %d", a.monitorPort))
	}

	if a.openBrowser && !a.monitor {
		result = multierror.Append(result,
			errors.New("--open_browser requires --monitor"))
	}

	if a.recordClickHouse != "" && a.recordPath != "" {
		result = multierror.Append(result,
			errors.New("--record_path and --record_clickhouse are exclusive"))
	}

	return result.ErrorOrNil()
}

func (a *rootArgs) recording() bool {
	return a.record || a.recordClickHouse != ""
}

// buildSimulation creates the simulation that observes a command.
func (a *rootArgs) buildSimulation(cc *cobra.Command) (*simulation.Simulation, error) {
	b := simulation.MakeBuilder().WithLogger(slog.Default(), slog.LevelDebug)

	if a.recording() {
		cfg := datarecording.Config{Path: a.recordPath}
		if a.recordClickHouse != "" {
			cfg = datarecording.Config{Type: "clickhouse", DSN: a.recordClickHouse}
		}

		b = b.WithRecording(cfg)
	}

	if a.monitor {
		b = b.WithMonitoring(a.monitorPort)
	}

	sim, err := b.Build()
	if err != nil {
		return nil, err
	}

	if m := sim.GetMonitor(); m != nil {
		cc.PrintErrf("Monitoring at %s\n", m.URL())

		if a.openBrowser {
			if err := m.OpenBrowser(); err != nil {
				slog.Warn("failed to open browser", "error", err)
			}
		}
	}

	return sim, nil
}

// runContext returns a context that ends on interrupt, or after d when d is
// positive.
func runContext(cc *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cc.Context(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, d)

	return ctx, func() {
		cancel()
		stop()
	}
}

// finish terminates the simulation and merges its errors with runErr.
func finish(sim *simulation.Simulation, runErr error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result *multierror.Error

	if runErr != nil {
		result = multierror.Append(result, runErr)
	}

	if err := sim.Terminate(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}

	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}

	return v
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}

	return v
}
