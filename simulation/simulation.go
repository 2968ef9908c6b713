// Package simulation ties the components of a run to the hooks, recorder and
// monitor that observe them.
package simulation

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/sarchlab/lockstep/banking"
	"github.com/sarchlab/lockstep/datarecording"
	"github.com/sarchlab/lockstep/hooking"
	"github.com/sarchlab/lockstep/monitoring"
	"github.com/sarchlab/lockstep/naming"
)

// A Simulation is one run of the demonstrations.
type Simulation struct {
	id string

	counter  *hooking.CountHook
	hooks    []hooking.Hook
	recorder *datarecording.Recorder
	monitor  *monitoring.Monitor

	components    []naming.Named
	compNameIndex map[string]int
}

// ID returns the unique ID of the run.
func (s *Simulation) ID() string {
	return s.id
}

// GetCounter returns the hook counting every reported event.
func (s *Simulation) GetCounter() *hooking.CountHook {
	return s.counter
}

// GetRecorder returns the recorder, or nil if recording is disabled.
func (s *Simulation) GetRecorder() *datarecording.Recorder {
	return s.recorder
}

// GetMonitor returns the monitor, or nil if monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// RegisterComponent registers a component with the simulation. Hookable
// components get the hooks of the simulation attached. Components must be
// registered before they are used.
func (s *Simulation) RegisterComponent(c naming.Named) {
	compName := c.Name()
	if _, found := s.compNameIndex[compName]; found {
		panic("component " + compName + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1

	if h, ok := c.(hooking.Hookable); ok {
		for _, hook := range s.hooks {
			h.AcceptHook(hook)
		}
	}

	if s.monitor != nil {
		s.monitor.RegisterComponent(c)
	}
}

// RegisterLockTable exposes a lock table through the monitor.
func (s *Simulation) RegisterLockTable(t *banking.LockTable) {
	if s.monitor != nil {
		s.monitor.RegisterLockTable(t)
	}
}

// RegisterAccount exposes an account balance through the monitor.
func (s *Simulation) RegisterAccount(a *banking.Account) {
	if s.monitor != nil {
		s.monitor.RegisterAccount(a)
	}
}

// GetComponentByName returns the component with the given name, or nil.
func (s *Simulation) GetComponentByName(name string) naming.Named {
	i, found := s.compNameIndex[name]
	if !found {
		return nil
	}

	return s.components[i]
}

// Components returns all registered components.
func (s *Simulation) Components() []naming.Named {
	return s.components
}

// Terminate stops the monitor and closes the recorder.
func (s *Simulation) Terminate(ctx context.Context) error {
	var result *multierror.Error

	if s.monitor != nil {
		if err := s.monitor.StopServer(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
