package supervisor

import (
	"sort"
	"strings"

	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// EntityMonitor aggregates per-entity health reports into the
// EntityMonitoringState consumed by the vehicle supervisor.
type EntityMonitor struct {
	*tasks.BaseTask

	freq float64

	states        map[uint8]msgs.EntityHealth
	lastError     string
	lastErrorTime float64
}

// NewEntityMonitor creates the entity monitoring task.
func NewEntityMonitor(ctx *tasks.Context) *EntityMonitor {
	t := &EntityMonitor{
		BaseTask: tasks.NewBaseTask("Monitors.Entities", ctx),
		states:   make(map[uint8]msgs.EntityHealth),
	}

	t.Param("Execution Frequency", &t.freq).
		DefaultValue("1").
		MinimumValue(0.1).
		Units("hertz").
		Description("Aggregation report frequency")

	tasks.Subscribe(t.BaseTask, t.consumeEntityState)

	return t
}

// OnUpdateParameters applies the configured execution frequency.
func (t *EntityMonitor) OnUpdateParameters() error {
	t.SetFrequency(t.freq)
	return nil
}

func (t *EntityMonitor) consumeEntityState(m *msgs.EntityState) {
	if m.SrcEntity == tasks.UnknownEntity {
		return
	}

	t.states[m.SrcEntity] = m.State

	if m.State >= msgs.HealthError {
		t.lastError = m.Description
		t.lastErrorTime = m.Time
	}
}

// Tick publishes the aggregated monitoring state.
func (t *EntityMonitor) Tick() {
	var mon, crit, errs []string

	ids := make([]int, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, id := range ids {
		label := t.Context().Entities.Label(uint8(id))
		if label == "" {
			continue
		}

		switch t.states[uint8(id)] {
		case msgs.HealthNormal, msgs.HealthBoot:
			mon = append(mon, label)
		case msgs.HealthFault:
			crit = append(crit, label)
		case msgs.HealthError, msgs.HealthFailure:
			errs = append(errs, label)
		}
	}

	ems := &msgs.EntityMonitoringState{
		MCount:        uint8(len(mon)),
		MNames:        strings.Join(mon, ","),
		CCount:        uint8(len(crit)),
		CNames:        strings.Join(crit, ","),
		ECount:        uint8(len(errs)),
		ENames:        strings.Join(errs, ","),
		LastError:     t.lastError,
		LastErrorTime: t.lastErrorTime,
	}

	t.Dispatch(ems)
}
