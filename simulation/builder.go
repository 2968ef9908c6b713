package simulation

import (
	"context"
	"log/slog"

	"github.com/sarchlab/lockstep/datarecording"
	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/id"
	"github.com/sarchlab/lockstep/monitoring"
)

// Builder can be used to build a simulation.
type Builder struct {
	monitorOn   bool
	monitorPort int

	recordOn     bool
	recordConfig datarecording.Config

	logHookOn bool
	logger    *slog.Logger
	logLevel  slog.Level
}

// MakeBuilder creates a new builder. By default every reported event is
// logged at debug level, and neither monitoring nor recording is enabled.
func MakeBuilder() Builder {
	return Builder{
		logHookOn: true,
		logLevel:  slog.LevelDebug,
	}
}

// WithMonitoring starts a monitoring server on the given port. Zero picks a
// random port.
func (b Builder) WithMonitoring(port int) Builder {
	b.monitorOn = true
	b.monitorPort = port

	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	b.monitorPort = 0

	return b
}

// WithRecording stores every reported event with the given recorder
// configuration.
func (b Builder) WithRecording(cfg datarecording.Config) Builder {
	b.recordOn = true
	b.recordConfig = cfg

	return b
}

// WithLogger sets the logger and the level of the log hook.
func (b Builder) WithLogger(logger *slog.Logger, level slog.Level) Builder {
	b.logger = logger
	b.logLevel = level

	return b
}

// WithoutLogHook stops reported events from being logged.
func (b Builder) WithoutLogHook() Builder {
	b.logHookOn = false
	return b
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	s := &Simulation{
		id:            id.NewParallelIDGenerator().Generate(),
		compNameIndex: make(map[string]int),
		counter:       hooking.NewCountHook(),
	}

	s.hooks = append(s.hooks, s.counter)

	if b.logHookOn {
		s.hooks = append(s.hooks,
			hooking.NewLogHook(b.logger).WithLevel(b.logLevel))
	}

	if b.recordOn {
		cfg := b.recordConfig
		if cfg.RunID == "" {
			cfg.RunID = s.id
		}

		recorder, err := datarecording.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, err
		}

		s.recorder = recorder
		s.hooks = append(s.hooks, recorder)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithPortNumber(b.monitorPort)
		s.monitor.RegisterCounter(s.counter)

		if _, err := s.monitor.StartServer(); err != nil {
			s.closeRecorder()
			return nil, err
		}
	}

	return s, nil
}

func (s *Simulation) closeRecorder() {
	if s.recorder == nil {
		return
	}

	if err := s.recorder.Close(); err != nil {
		slog.Error("failed to close recorder", "error", err)
	}
}
