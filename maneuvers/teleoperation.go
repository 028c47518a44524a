package maneuvers

import (
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Teleoperation hands the vehicle to a remote operator. Its loop grant
// carries the no-override bit, so entity errors and supervisor resets do
// not wrestle control away mid-session.
type Teleoperation struct {
	*Maneuver
}

// NewTeleoperation creates the teleoperation maneuver task.
func NewTeleoperation(ctx *tasks.Context, shared *Shared) *Teleoperation {
	t := &Teleoperation{
		Maneuver: NewManeuver("Maneuver.Teleoperation", ctx, shared),
	}

	tasks.Subscribe(t.BaseTask, t.consumeTeleoperation)
	t.SetStateReport(t.report)

	return t
}

func (t *Teleoperation) consumeTeleoperation(_ *msgs.Teleoperation) {
	if !t.AcquireControl() {
		return
	}

	t.SetControl(msgs.CLTeleoperation | msgs.CLNoOverride)
}

func (t *Teleoperation) report() {
	t.SignalProgress(0xFFFF, "under remote control")
}
