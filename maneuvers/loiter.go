package maneuvers

import (
	"math"

	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Loiter converts a Loiter maneuver into a desired path with a loiter
// radius and tracks its progress.
type Loiter struct {
	*Maneuver

	path     msgs.DesiredPath
	duration uint16
	endTime  float64
}

// NewLoiter creates the loiter maneuver task.
func NewLoiter(ctx *tasks.Context, shared *Shared) *Loiter {
	t := &Loiter{
		Maneuver: NewManeuver("Maneuver.Loiter", ctx, shared),
	}

	tasks.Subscribe(t.BaseTask, t.consumeLoiter)
	tasks.Subscribe(t.BaseTask, t.consumePathControlState)

	return t
}

func (t *Loiter) consumeLoiter(m *msgs.Loiter) {
	if !t.AcquireControl() {
		return
	}

	t.SetControl(msgs.CLPath)

	if m.Radius < 0 {
		t.SignalError("invalid loiter radius")
		return
	}

	t.path = msgs.DesiredPath{
		EndLat:     m.Lat,
		EndLon:     m.Lon,
		EndZ:       m.Z,
		EndZUnits:  m.ZUnits,
		LRadius:    m.Radius,
		Speed:      m.Speed,
		SpeedUnits: m.SpeedUnits,
	}

	if m.Direction == msgs.LDCClockwise {
		t.path.Flags = msgs.FlagCClockwise
	} else {
		// Clockwise by default.
		t.path.Flags = 0
	}

	t.Dispatch(&t.path)

	t.duration = m.Duration
	t.endTime = -1
}

func (t *Loiter) consumePathControlState(pcs *msgs.PathControlState) {
	if !t.IsActive() {
		return
	}

	if pcs.Flags&msgs.PCSFlagLoitering != 0 {
		if t.duration == 0 {
			return
		}

		now := t.Clock().Get()

		switch {
		case t.endTime < 0:
			t.endTime = now + float64(t.duration)
			t.Inf("will now loiter for %d seconds", t.duration)
		case now >= t.endTime:
			t.SignalCompletion("loiter maneuver done")
		default:
			t.SignalProgress(uint16(math.Round(t.endTime-now)), "loitering")
		}

		return
	}

	if t.duration > 0 {
		t.SignalProgress(pcs.ETA+t.duration, "en route")
	} else {
		t.SignalProgress(pcs.ETA, "en route")
	}
}
