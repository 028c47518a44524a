package control

import (
	"fmt"
	"math"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
)

// Depth hysteresis for ignoring ranges and altitude.
const cDepthHyst = 0.5

// TrackerState enumerates the bottom tracker's machine states.
type TrackerState uint8

// Bottom tracker states.
const (
	TrackerIdle TrackerState = iota
	TrackerTracking
	TrackerDepth
	TrackerUnsafe
	TrackerAvoiding
)

func (s TrackerState) String() string {
	switch s {
	case TrackerIdle:
		return "Idle"
	case TrackerTracking:
		return "Tracking"
	case TrackerDepth:
		return "Depth"
	case TrackerUnsafe:
		return "Unsafe"
	case TrackerAvoiding:
		return "Avoiding"
	}
	return "Unknown"
}

// Forced-control reasons.
const (
	forcedNone uint8 = iota
	forcedDepth
)

// BottomTrackerArgs are the parent-parsed parameters of the tracker.
type BottomTrackerArgs struct {
	EID           uint8
	FSamples      int
	SafePitch     float64
	SlopeHyst     float64
	MinAlt        float64
	MinRange      float64
	AltTol        float64
	DepthTol      float64
	DepthLimit    float64
	CheckTrend    bool
	ControlFreq   float64
	ControlPeriod float64
}

// dispatcher is the opaque handle the tracker uses to reach the bus and
// the owner's log. It is never a strong back-reference to the controller.
type dispatcher interface {
	Dispatch(m msgs.Msg, flags ...bus.PublishFlag)
	DispatchLoop(m msgs.Msg)
	Debug(format string, args ...interface{})
}

// BottomTracker protects the vehicle from terrain when following an
// altitude reference. It may dispatch references only while its parent
// controller is active.
type BottomTracker struct {
	args *BottomTrackerArgs
	out  dispatcher
	clk  clock.Clock

	sdata *SlopeData

	active  bool
	mstate  TrackerState
	gotData bool

	zRef     msgs.DesiredZ
	forced   uint8
	dspeed   float64
	lastRun  float64
	estate   msgs.EstimatedState
	validAlt bool

	cparcel msgs.ControlParcel
}

// NewBottomTracker creates the tracker from parent-parsed arguments.
func NewBottomTracker(args *BottomTrackerArgs, out dispatcher, clk clock.Clock) *BottomTracker {
	t := &BottomTracker{
		args: args,
		out:  out,
		clk:  clk,
		sdata: NewSlopeData(args.FSamples, args.MinRange,
			args.SafePitch, args.SlopeHyst),
	}

	t.cparcel.SrcEntity = args.EID
	t.reset()

	return t
}

// State returns the current machine state.
func (t *BottomTracker) State() TrackerState {
	return t.mstate
}

func (t *BottomTracker) reset() {
	t.sdata.Reset()

	t.mstate = TrackerIdle
	t.gotData = false

	t.zRef.Value = 0
	t.zRef.ZUnits = msgs.ZNone

	t.forced = forcedNone
	t.dspeed = 0
	t.lastRun = t.clk.Get()
}

// Activate arms the tracker.
func (t *BottomTracker) Activate() {
	t.active = true
	t.reset()

	t.debug("enabling")
}

// Deactivate disarms the tracker.
func (t *BottomTracker) Deactivate() {
	t.active = false
	t.debug("disabling")
}

// OnDistance folds a forward-range sample into the slope window.
func (t *BottomTracker) OnDistance(m *msgs.Distance) error {
	t.sdata.OnDistance(m, &t.estate, &t.cparcel)
	return nil
}

// OnDesiredZ intercepts vertical references. Outgoing references from the
// parent controller pass to the bus unless the tracker has overridden the
// vertical plane.
func (t *BottomTracker) OnDesiredZ(m *msgs.DesiredZ, outgoing bool) {
	zed := *m
	tobus := false

	if t.active {
		t.zRef = zed

		if outgoing {
			switch t.mstate {
			case TrackerUnsafe, TrackerAvoiding:
				// Keep the override in place.
			default:
				tobus = true
			}

			if t.forced != forcedNone {
				tobus = false
			}
		}
	} else if outgoing {
		tobus = true
	}

	if tobus {
		t.out.Dispatch(&zed)
	}
}

// OnDesiredSpeed tracks the speed reference gating the machine.
func (t *BottomTracker) OnDesiredSpeed(m *msgs.DesiredSpeed) {
	if !t.active {
		return
	}

	t.dspeed = m.Value
}

// OnEstimatedState runs the state machine at most once per control period.
func (t *BottomTracker) OnEstimatedState(m *msgs.EstimatedState) error {
	if !t.active {
		return nil
	}

	t.estate = *m

	if t.clk.Get()-t.lastRun > t.args.ControlPeriod {
		err := t.updateStateMachine()
		t.lastRun = t.clk.Get()

		parcel := t.cparcel
		t.out.Dispatch(&parcel)

		return err
	}

	return nil
}

func (t *BottomTracker) updateStateMachine() error {
	if !t.active {
		return nil
	}

	if !t.gotData {
		// The machine only engages with a vertical and a speed reference.
		if t.zRef.ZUnits == msgs.ZNone {
			return nil
		}
		if t.dspeed <= 0 {
			return nil
		}
	}

	t.gotData = true

	switch t.mstate {
	case TrackerIdle:
		t.onIdle()
	case TrackerTracking:
		t.onTracking()
	case TrackerDepth:
		t.onDepth()
	case TrackerUnsafe:
		t.onUnsafe()
	case TrackerAvoiding:
		return t.onAvoiding()
	}

	return nil
}

func (t *BottomTracker) onIdle() {
	if t.zRef.ZUnits == msgs.ZAltitude {
		t.debug("units are now altitude. moving to tracking")

		t.mstate = TrackerTracking
		t.validAlt = t.estate.Depth > t.args.DepthTol
	}
}

func (t *BottomTracker) onTracking() {
	t.sdata.RenderSlopeInvalid()

	// Reference switched to depth.
	if t.zRef.ZUnits == msgs.ZDepth {
		t.debug("units are depth now. moving to idle")

		t.mstate = TrackerIdle
		return
	}

	// Do not attempt to interfere if we cannot use altitude.
	if !t.isAltitudeValid() {
		return
	}

	if t.estate.Alt < t.args.MinAlt {
		t.debug("altitude is too low: %.2f. stopping motor.", t.estate.Alt)

		t.brake(true)
		t.mstate = TrackerAvoiding
		return
	}

	// Do not attempt to interfere if the echo can be the surface.
	if t.sdata.IsSurface(&t.estate) {
		return
	}

	if t.sdata.IsRangeLow() {
		t.debug("frange is too low: %.2f. stopping motor.", t.sdata.FRange())

		t.brake(true)
		t.mstate = TrackerAvoiding
		return
	}

	if t.sdata.IsTooSteep() {
		t.debug("slope is too steep: %.2f > %.2f",
			t.sdata.Slope(), t.args.SafePitch)

		t.cparcel.D = t.sdata.UpdateSlopeTop(&t.estate)
		t.dispatchSafeDepth()
		t.mstate = TrackerUnsafe
		return
	}

	// Reaching a limit in depth.
	if t.estate.Depth+t.estate.Alt-t.zRef.Value > t.args.DepthLimit+cDepthHyst {
		t.debug("depth is reaching unacceptable values, forcing depth control")

		t.forced = forcedDepth
		t.dispatchLimitDepth()
		t.mstate = TrackerDepth
	}
}

func (t *BottomTracker) onDepth() {
	if t.zRef.ZUnits == msgs.ZAltitude && t.forced != forcedDepth {
		t.debug("units are altitude now. moving to altitude control")

		t.forced = forcedNone
		t.dispatchSameZ()
		t.mstate = TrackerTracking
		return
	}

	if t.zRef.ZUnits == msgs.ZDepth && t.zRef.Value < t.args.DepthLimit {
		t.debug("units are depth now. moving to idle")

		t.forced = forcedNone
		t.mstate = TrackerIdle
		t.dispatchSameZ()
		return
	}

	if t.sdata.IsRangeLow() {
		t.debug("frange is too low: %.2f. stopping motor.", t.sdata.FRange())

		t.forced = forcedNone
		t.brake(true)
		t.mstate = TrackerAvoiding
		return
	}

	if t.forced == forcedDepth &&
		t.estate.Depth+t.estate.Alt-t.zRef.Value < t.args.DepthLimit {
		t.debug("depth is no longer near the limit")

		t.forced = forcedNone
		t.dispatchSameZ()
		t.mstate = TrackerTracking
	}
}

func (t *BottomTracker) onUnsafe() {
	t.cparcel.D = t.sdata.UpdateSlopeTop(&t.estate)

	awayTop := t.sdata.IsTopCleared(&t.estate)

	if !t.isAltitudeValid() {
		if awayTop {
			t.debug("cannot use altitude and slope top cleared. moving to tracking")

			t.dispatchSameZ()
			t.mstate = TrackerTracking
			t.sdata.RenderSlopeInvalid()
		}

		return
	}

	if t.estate.Alt < t.args.MinAlt || t.sdata.IsRangeLow() {
		if t.estate.Alt < t.args.MinAlt {
			t.debug("altitude is too low: %.2f. stopping motor.", t.estate.Alt)
		} else {
			t.debug("frange is too low: %.2f. stopping motor.", t.sdata.FRange())
		}

		t.brake(true)
		t.mstate = TrackerAvoiding
		return
	}

	if t.sdata.IsSurface(&t.estate) {
		t.debug("cannot use range. tracking")

		t.dispatchSameZ()
		t.mstate = TrackerTracking
		return
	}

	if !t.sdata.IsTooSteep() {
		if awayTop {
			t.debug("slope top cleared: %.2f. moving to tracking",
				t.sdata.DistanceToSlope(&t.estate))

			// Dispatch the same z reference sent by the upper layer.
			t.dispatchSameZ()
			t.mstate = TrackerTracking
			t.sdata.RenderSlopeInvalid()
		}
	} else if t.sdata.IsSlopeIncreasing() {
		if t.args.CheckTrend || t.estate.Theta < 0 {
			t.debug("slope is becoming steeper %.2f", t.sdata.Slope())

			t.dispatchSafeDepth()
		}
	}
}

func (t *BottomTracker) onAvoiding() error {
	// If ranges or altitude cannot be used, then we're clueless.
	if t.sdata.IsSurface(&t.estate) || !t.isAltitudeValid() {
		return fmt.Errorf("[BottomTrack.%s] unable to avoid obstacle", t.mstate)
	}

	// Check whether buoyancy has pulled the vehicle up to a safe
	// altitude and the slope is safe right now.
	if !t.sdata.IsTooSteep() && t.zRef.ZUnits == msgs.ZAltitude &&
		t.estate.Alt >= t.zRef.Value {
		t.debug("above altitude reference and slope is safe")

		t.brake(false)
		t.dispatchSameZ()
		t.mstate = TrackerTracking
	}

	return nil
}

func (t *BottomTracker) brake(start bool) {
	brk := &msgs.Brake{}
	brk.SrcEntity = t.args.EID
	if start {
		brk.Op = msgs.BrakeStart
	} else {
		brk.Op = msgs.BrakeStop
	}

	t.out.DispatchLoop(brk)

	if start {
		t.debug("started braking")
	} else {
		t.debug("stopped braking")
	}
}

func (t *BottomTracker) dispatchSafeDepth() {
	// Depth at the top of the slope.
	depthAtSlope := t.estate.Depth - t.sdata.FRange()*math.Sin(t.estate.Theta)

	zed := &msgs.DesiredZ{ZUnits: msgs.ZDepth}
	zed.SrcEntity = t.args.EID

	if t.zRef.ZUnits == msgs.ZAltitude {
		zed.Value = math.Max(0, depthAtSlope-t.zRef.Value)
	} else {
		zed.Value = math.Max(0, depthAtSlope-t.args.AltTol)
	}

	t.out.Dispatch(zed)

	t.debug("dispatching new depth: %.2f", zed.Value)
}

func (t *BottomTracker) dispatchLimitDepth() {
	zed := &msgs.DesiredZ{Value: t.args.DepthLimit, ZUnits: msgs.ZDepth}
	zed.SrcEntity = t.args.EID

	t.out.Dispatch(zed)

	t.debug("dispatching limit depth: %.2f", zed.Value)
}

func (t *BottomTracker) dispatchSameZ() {
	zed := t.zRef
	zed.SrcEntity = t.args.EID

	t.out.Dispatch(&zed)

	t.debug("dispatching same z ref: %.2f", zed.Value)
}

// isAltitudeValid latches altitude validity with depth hysteresis.
func (t *BottomTracker) isAltitudeValid() bool {
	if t.estate.Alt < 0 {
		t.validAlt = false
	}

	if t.estate.Depth > t.args.DepthTol {
		t.validAlt = true
	} else if t.estate.Depth < t.args.DepthTol-cDepthHyst {
		t.validAlt = false
	}

	return t.validAlt
}

func (t *BottomTracker) debug(format string, args ...interface{}) {
	t.out.Debug("[BottomTrack.%s] >> %s", t.mstate, fmt.Sprintf(format, args...))
}
