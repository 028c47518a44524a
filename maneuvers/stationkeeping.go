package maneuvers

import (
	"math"

	"github.com/seaverlab/tethys/coords"
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// StationKeeping keeps the vehicle within a radius of a point: transit to
// the center when outside, hold position when inside, and complete after
// the configured duration once inside.
type StationKeeping struct {
	*Maneuver

	minRadius float64

	lat, lon float64
	radius   float64
	duration uint16
	speed    float64
	sunits   msgs.SpeedUnits
	z        float64
	zunits   msgs.ZUnits

	near    bool
	moving  bool
	endTime float64
	eta     uint16
}

// NewStationKeeping creates the station keeping maneuver task.
func NewStationKeeping(ctx *tasks.Context, shared *Shared) *StationKeeping {
	t := &StationKeeping{
		Maneuver: NewManeuver("Maneuver.StationKeeping", ctx, shared),
	}

	t.Param("Minimum Radius", &t.minRadius).
		DefaultValue("10.0").
		Units("meter").
		Description("Minimum radius to prevent incompatibility with path controller")

	tasks.Subscribe(t.BaseTask, t.consumeStationKeeping)
	tasks.Subscribe(t.BaseTask, t.consumeEstimatedState)
	tasks.Subscribe(t.BaseTask, t.consumePathControlState)
	t.SetStateReport(t.report)

	return t
}

func (t *StationKeeping) consumeStationKeeping(m *msgs.StationKeeping) {
	if !t.AcquireControl() {
		return
	}

	t.SetControl(msgs.CLPath)

	t.lat = m.Lat
	t.lon = m.Lon
	t.radius = math.Max(m.Radius, t.minRadius)
	t.duration = m.Duration
	t.speed = m.Speed
	t.sunits = m.SpeedUnits
	t.z = m.Z
	t.zunits = m.ZUnits

	t.near = false
	t.moving = false
	t.endTime = -1

	// Head for the center; the inside test runs on the next estimate.
	t.gotoCenter()
}

func (t *StationKeeping) gotoCenter() {
	t.moving = true

	t.Dispatch(&msgs.DesiredPath{
		EndLat:     t.lat,
		EndLon:     t.lon,
		EndZ:       t.z,
		EndZUnits:  t.zunits,
		Speed:      t.speed,
		SpeedUnits: t.sunits,
	})
}

func (t *StationKeeping) consumeEstimatedState(es *msgs.EstimatedState) {
	if !t.IsActive() {
		return
	}

	lat, lon := coords.Displace(es.Lat, es.Lon, es.X, es.Y)
	n, e := coords.Displacement(lat, lon, t.lat, t.lon)
	dist := math.Hypot(n, e)

	inside := dist < t.radius

	if inside && t.endTime < 0 && t.duration > 0 {
		t.endTime = t.Clock().Get() + float64(t.duration)
	}

	if inside && (t.moving || t.near) {
		// Arrived; hold position passively.
		t.moving = false
		t.near = false
		t.Dispatch(&msgs.Brake{Op: msgs.BrakeStop})
		return
	}

	if !inside && !t.moving {
		t.Debug("drifted %0.1f m from center, correcting", dist)
		t.gotoCenter()
	}
}

func (t *StationKeeping) consumePathControlState(pcs *msgs.PathControlState) {
	if !t.IsActive() {
		return
	}

	t.eta = pcs.ETA
	t.near = pcs.Flags&msgs.PCSFlagNear != 0
}

func (t *StationKeeping) report() {
	if t.duration > 0 && t.endTime > 0 {
		timeLeft := t.endTime - t.Clock().Get()

		if timeLeft <= 0 {
			t.SignalCompletion("station keeping time elapsed")
		} else {
			t.SignalProgress(uint16(math.Round(timeLeft)), "keeping station")
		}

		return
	}

	if t.moving {
		t.SignalProgress(t.eta, "en route to station")
	}
}
