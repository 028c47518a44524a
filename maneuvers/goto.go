package maneuvers

import (
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Goto converts a Goto maneuver into a single-segment desired path and
// completes when the path controller reports the endpoint near.
type Goto struct {
	*Maneuver

	path msgs.DesiredPath
}

// NewGoto creates the goto maneuver task.
func NewGoto(ctx *tasks.Context, shared *Shared) *Goto {
	t := &Goto{
		Maneuver: NewManeuver("Maneuver.Goto", ctx, shared),
	}

	tasks.Subscribe(t.BaseTask, t.consumeGoto)
	tasks.Subscribe(t.BaseTask, t.consumePathControlState)

	return t
}

func (t *Goto) consumeGoto(m *msgs.Goto) {
	if !t.AcquireControl() {
		return
	}

	t.SetControl(msgs.CLPath)

	t.path = msgs.DesiredPath{
		EndLat:     m.Lat,
		EndLon:     m.Lon,
		EndZ:       m.Z,
		EndZUnits:  m.ZUnits,
		Speed:      m.Speed,
		SpeedUnits: m.SpeedUnits,
	}

	t.Dispatch(&t.path)
}

func (t *Goto) consumePathControlState(pcs *msgs.PathControlState) {
	if !t.IsActive() {
		return
	}

	if pcs.Flags&msgs.PCSFlagNear != 0 {
		t.SignalCompletion("destination reached")
		return
	}

	t.SignalProgress(pcs.ETA, "en route")
}
