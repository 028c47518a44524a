// Package system assembles a running vehicle: the bus, the clock, the
// entity registry, the maneuver arbitration state, the optional monitoring
// server and message recorder, and every registered task.
package system

import (
	"sync"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/config"
	"github.com/seaverlab/tethys/datarecording"
	"github.com/seaverlab/tethys/maneuvers"
	"github.com/seaverlab/tethys/monitoring"
	"github.com/seaverlab/tethys/tasks"
)

// A System owns the process-wide services and the task population.
type System struct {
	id    string
	store *config.Store

	clock    clock.Clock
	bus      *bus.Bus
	entities *tasks.EntityRegistry
	shared   *maneuvers.Shared
	ctx      *tasks.Context

	monitor  *monitoring.Monitor
	recorder datarecording.DataRecorder

	tasks         []tasks.Task
	taskNameIndex map[string]int

	wg      sync.WaitGroup
	started bool
}

// ID returns the run identifier.
func (s *System) ID() string { return s.id }

// Context returns the services handed to task constructors.
func (s *System) Context() *tasks.Context { return s.ctx }

// Bus returns the message bus.
func (s *System) Bus() *bus.Bus { return s.bus }

// Clock returns the time service.
func (s *System) Clock() clock.Clock { return s.clock }

// Entities returns the entity registry.
func (s *System) Entities() *tasks.EntityRegistry { return s.entities }

// ManeuverShared returns the maneuver arbitration state.
func (s *System) ManeuverShared() *maneuvers.Shared { return s.shared }

// Monitor returns the monitoring server, or nil when disabled.
func (s *System) Monitor() *monitoring.Monitor { return s.monitor }

// Recorder returns the message recorder, or nil when disabled.
func (s *System) Recorder() datarecording.DataRecorder { return s.recorder }

// RegisterTask registers a task with the system.
func (s *System) RegisterTask(t tasks.Task) {
	name := t.Name()
	if _, found := s.taskNameIndex[name]; found {
		panic("task " + name + " already registered")
	}

	s.tasks = append(s.tasks, t)
	s.taskNameIndex[name] = len(s.tasks) - 1

	if s.monitor != nil {
		s.monitor.RegisterTask(t)
	}
}

// GetTaskByName returns the task with the given name.
func (s *System) GetTaskByName(name string) tasks.Task {
	i, found := s.taskNameIndex[name]
	if !found {
		return nil
	}
	return s.tasks[i]
}

// Start runs the lifecycle phases for every registered task and launches
// their main loops. Entity reservation completes for all tasks before any
// task resolves labels.
func (s *System) Start() error {
	if s.started {
		panic("system already started")
	}

	for _, t := range s.tasks {
		if err := tasks.Prepare(t, s.store.Section(t.Name())); err != nil {
			return err
		}
	}

	for _, t := range s.tasks {
		if err := tasks.Resolve(t); err != nil {
			return err
		}
	}

	for _, t := range s.tasks {
		tasks.Launch(t, &s.wg)
	}

	if s.monitor != nil {
		s.monitor.StartServer()
	}

	s.started = true

	return nil
}

// Stop unwinds the task population in reverse registration order and waits
// for every main loop to return.
func (s *System) Stop() {
	for i := len(s.tasks) - 1; i >= 0; i-- {
		tasks.Stop(s.tasks[i])
	}

	s.wg.Wait()

	if s.recorder != nil {
		s.recorder.Flush()
	}
}
