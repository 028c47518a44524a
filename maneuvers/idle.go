package maneuvers

import (
	"math"

	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Idle keeps the vehicle passive. The supervisor dispatches an IdleManeuver
// on every reset; a bounded duration turns it into a timed hold.
type Idle struct {
	*Maneuver

	duration uint16
	endTime  float64
}

// NewIdle creates the idle maneuver task.
func NewIdle(ctx *tasks.Context, shared *Shared) *Idle {
	t := &Idle{
		Maneuver: NewManeuver("Maneuver.Idle", ctx, shared),
	}

	tasks.Subscribe(t.BaseTask, t.consumeIdleManeuver)
	t.SetStateReport(t.report)

	return t
}

func (t *Idle) consumeIdleManeuver(m *msgs.IdleManeuver) {
	if !t.AcquireControl() {
		return
	}

	// Relinquish every control loop; the vehicle drifts passively.
	t.SetControl(0)

	t.duration = m.Duration
	if t.duration > 0 {
		t.endTime = t.Clock().Get() + float64(t.duration)
	} else {
		t.endTime = -1
	}
}

func (t *Idle) report() {
	if t.duration == 0 {
		t.SignalProgress(0xFFFF, "idling")
		return
	}

	now := t.Clock().Get()
	if now >= t.endTime {
		t.SignalCompletion("idle time elapsed")
		return
	}

	t.SignalProgress(uint16(math.Round(t.endTime-now)), "idling")
}
