package system

import (
	"github.com/rs/xid"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/config"
	"github.com/seaverlab/tethys/datarecording"
	"github.com/seaverlab/tethys/maneuvers"
	"github.com/seaverlab/tethys/monitoring"
	"github.com/seaverlab/tethys/tasks"
)

// Builder can be used to build a vehicle system.
type Builder struct {
	systemID    uint16
	store       *config.Store
	monitorOn   bool
	monitorPort int
	recordOn    bool
	outputName  string
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		systemID:  1,
		monitorOn: true,
	}
}

// WithSystemID sets the source system identifier stamped on every message.
func (b Builder) WithSystemID(id uint16) Builder {
	b.systemID = id
	return b
}

// WithConfig sets the configuration store tasks bind parameters from.
func (b Builder) WithConfig(s *config.Store) Builder {
	b.store = s
	return b
}

// WithoutMonitoring sets the system to not run the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithRecording enables the message recorder with a custom output name.
func (b Builder) WithRecording(name string) Builder {
	b.recordOn = true
	b.outputName = name
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the system.
func (b Builder) Build() *System {
	b.parametersMustBeValid()

	s := &System{
		id:            xid.New().String(),
		store:         b.store,
		taskNameIndex: make(map[string]int),
	}

	if s.store == nil {
		s.store = config.NewStore()
	}

	s.clock = clock.NewReal()
	s.entities = tasks.NewEntityRegistry()
	s.bus = bus.New(s.clock, b.systemID)
	s.shared = maneuvers.NewShared()

	if b.recordOn {
		name := b.outputName
		if name == "" {
			name = "tethys_run_" + s.id
		}
		s.recorder = datarecording.New(name)
		s.bus.AcceptHook(datarecording.NewBusRecorder(s.recorder))
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor().WithPortNumber(b.monitorPort)
		s.monitor.RegisterBus(s.bus)
		s.monitor.RegisterEntities(s.entities)
	}

	s.ctx = &tasks.Context{
		Bus:      s.bus,
		Clock:    s.clock,
		Entities: s.entities,
	}

	return s
}
