// Package control implements the path controller and its terrain-protection
// bottom tracker. The controller consumes a desired path, produces
// course/depth/altitude/speed references, and enforces along-track and
// cross-track divergence monitors.
package control

import (
	"math"
	"time"

	"github.com/seaverlab/tethys/coords"
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Estimated time of arrival factor.
const cTimeFactor = 5.0

// Timeout for a new incoming path reference once nearby.
const cNewRefTimeout = 5.0

// Loiter size factor to compute if inside the circle.
const cLSizeFactor = 0.75

// Distance tolerance to the loiter center.
const cLDistance = 1.0

// A PathHandler supplies the guidance law layered on top of the path
// controller frame.
type PathHandler interface {
	// Step runs one control step while tracking the straight segment.
	Step(es *msgs.EstimatedState, ts *TrackingState)

	// OnPathStartup runs after a new path has been set up.
	OnPathStartup(es *msgs.EstimatedState, ts *TrackingState)

	// OnPathActivation and OnPathDeactivation run on the controller's
	// activation edges.
	OnPathActivation()
	OnPathDeactivation()

	// HasSpecificZControl opts the handler out of the controller's
	// default vertical reference handling.
	HasSpecificZControl() bool
}

type alongTrackMonitor struct {
	enabled  bool
	period   float64
	minSpeed float64
	minYaw   float64

	diverging     bool
	time          float64
	lastErr       float64
	lastCourseErr float64
}

type crossTrackMonitor struct {
	enabled       bool
	distanceLimit float64
	timeLimit     float64
	navUncFactor  float64

	navUncertainty    float64
	diverging         bool
	divergenceStarted float64
}

// PathController accepts a DesiredPath, emits tracking references, monitors
// divergence, and reports PathControlState at a configured rate.
type PathController struct {
	*tasks.BaseTask

	handler PathHandler

	cfreq   float64
	cperiod float64
	sfreq   float64
	speriod float64

	courseCtl bool

	atm alongTrackMonitor
	ctm crossTrackMonitor
	btd BottomTrackerArgs

	btEnabled bool
	btrack    *BottomTracker

	ts     TrackingState
	pcs    msgs.PathControlState
	estate msgs.EstimatedState
	zref   msgs.DesiredZ
	speed  msgs.DesiredSpeed

	aloops   uint32
	tracking bool
	inError  bool
	setup    bool
	braking  bool

	runningMonitors bool
	lastPCSReport   float64
}

// NewPathController creates a path controller with the given guidance
// handler.
func NewPathController(
	name string,
	ctx *tasks.Context,
	handler PathHandler,
) *PathController {
	t := &PathController{
		BaseTask:        tasks.NewBaseTask(name, ctx),
		handler:         handler,
		setup:           true,
		runningMonitors: true,
	}

	t.Param("Control Frequency", &t.cfreq).
		DefaultValue("10").
		MinimumValue(0.1).
		Units("hertz").
		Description("Control frequency")

	t.Param("State Report Frequency", &t.sfreq).
		DefaultValue("1").
		MinimumValue(0.1).
		Units("hertz").
		Description("State report frequency")

	t.Param("Course Control", &t.courseCtl).
		DefaultValue("true").
		Description("Enable course control")

	t.Param("Along-track -- Monitor", &t.atm.enabled).
		DefaultValue("true").
		Description("Enable along-track error monitoring")

	t.Param("Along-track -- Check Period", &t.atm.period).
		DefaultValue("15").
		Units("second").
		Description("Period for along-track error check")

	t.Param("Along-track -- Minimum Speed", &t.atm.minSpeed).
		DefaultValue("0.25").
		Units("meter per second").
		Description("Minimum speed for along-track progress")

	t.Param("Along-track -- Minimum Yaw", &t.atm.minYaw).
		DefaultValue("10").
		Units("degree per second").
		Description("Minimum yaw speed for track bearing convergence")

	t.Param("Cross-track -- Monitor", &t.ctm.enabled).
		DefaultValue("true").
		Description("Enable cross-track error monitoring")

	t.Param("Cross-track -- Distance Limit", &t.ctm.distanceLimit).
		DefaultValue("15").
		Units("meter").
		Description("Distance threshold value for cross-track error")

	t.Param("Cross-track -- Time Limit", &t.ctm.timeLimit).
		DefaultValue("10").
		Units("second").
		Description("Time threshold value for cross-track error")

	t.Param("Cross-track -- Nav. Unc. Factor", &t.ctm.navUncFactor).
		DefaultValue("-1").
		Description("Navigation uncertainty scaling, negative to disable")

	t.Param("Bottom Track -- Enabled", &t.btEnabled).
		DefaultValue("false").
		Description("Enable or disable bottom track control")

	t.Param("Bottom Track -- Forward Samples", &t.btd.FSamples).
		DefaultValue("5").
		MinimumValue(1).
		Description("Number of samples for forward range moving average")

	t.Param("Bottom Track -- Safe Pitch", &t.btd.SafePitch).
		DefaultValue("15.0").
		Units("degree").
		Description("Safe pitch angle to perform bottom tracking")

	t.Param("Bottom Track -- Slope Hysteresis", &t.btd.SlopeHyst).
		DefaultValue("1.5").
		Units("degree").
		Description("Slope hysteresis when recovering from avoidance")

	t.Param("Bottom Track -- Minimum Altitude", &t.btd.MinAlt).
		DefaultValue("1.0").
		Units("meter").
		Description("Minimum admissible altitude for bottom tracking")

	t.Param("Bottom Track -- Minimum Range", &t.btd.MinRange).
		DefaultValue("4.0").
		Units("meter").
		Description("Minimum admissible forward range for bottom tracking")

	t.Param("Bottom Track -- Altitude Tolerance", &t.btd.AltTol).
		DefaultValue("2.0").
		Units("meter").
		Description("Clearance above the slope top for the safe depth when the reference is not an altitude")

	t.Param("Bottom Track -- Depth Tolerance", &t.btd.DepthTol).
		DefaultValue("1.0").
		Units("meter").
		Description("Depth tolerance below which altitude is ignored")

	t.Param("Bottom Track -- Depth Limit", &t.btd.DepthLimit).
		DefaultValue("48.0").
		Units("meter").
		Description("Depth limit for bottom tracking")

	t.Param("Bottom Track -- Check Trend", &t.btd.CheckTrend).
		DefaultValue("true").
		Description("Check slope angle trend in unsafe state")

	t.Param("Bottom Track -- Execution Frequency", &t.btd.ControlFreq).
		DefaultValue("5").
		MinimumValue(0.1).
		Units("hertz").
		Description("Bottom tracker's execution frequency")

	tasks.Subscribe(t.BaseTask, t.consumeBrake)
	tasks.Subscribe(t.BaseTask, t.consumeControlLoops)
	tasks.Subscribe(t.BaseTask, t.consumeDesiredPath)
	tasks.Subscribe(t.BaseTask, t.consumeEstimatedState)
	tasks.Subscribe(t.BaseTask, t.consumeDistance)
	tasks.Subscribe(t.BaseTask, t.consumeDesiredZ)
	tasks.Subscribe(t.BaseTask, t.consumeDesiredSpeed)
	tasks.Subscribe(t.BaseTask, t.consumeNavigationUncertainty)

	return t
}

// OnUpdateParameters recomputes the derived control state.
func (t *PathController) OnUpdateParameters() error {
	t.cperiod = 1.0 / t.cfreq
	t.speriod = 1.0 / t.sfreq

	t.ts.CourseControl = t.courseCtl
	t.ts.Loitering = false
	t.ts.Nearby = false
	t.ts.EndTime = t.Clock().Get()
	t.ts.ZControl = false

	if !t.ctm.enabled || t.ctm.navUncFactor <= 0 {
		t.ctm.navUncertainty = 0
	}

	t.atm.minYaw = coords.Radians(t.atm.minYaw)

	if t.btEnabled {
		t.btd.SafePitch = coords.Radians(t.btd.SafePitch)
		t.btd.SlopeHyst = coords.Radians(t.btd.SlopeHyst)
		t.btd.ControlPeriod = 1.0 / t.btd.ControlFreq
	}

	return nil
}

// OnEntityReservation reserves the bottom tracker entity.
func (t *PathController) OnEntityReservation() {
	if t.btEnabled {
		t.btd.EID = t.ReserveEntity("Bottom Track")
	}
}

// OnResourceAcquisition builds the bottom tracker.
func (t *PathController) OnResourceAcquisition() error {
	if t.btEnabled {
		t.btrack = NewBottomTracker(&t.btd, t.BaseTask, t.Clock())
	}

	return nil
}

// OnResourceInitialization starts the controller deactivated.
func (t *PathController) OnResourceInitialization() error {
	t.Deactivate()
	t.updateEntityState("")

	return nil
}

// OnResourceRelease drops the bottom tracker.
func (t *PathController) OnResourceRelease() {
	t.btrack = nil
}

// OnMain is the controller's event loop.
func (t *PathController) OnMain() {
	for !t.Stopping() {
		t.WaitForMessages(time.Second)
	}
}

func (t *PathController) consumeBrake(m *msgs.Brake) {
	t.braking = m.Op == msgs.BrakeStart
}

func (t *PathController) consumeNavigationUncertainty(m *msgs.NavigationUncertainty) {
	if !t.ctm.enabled || t.ctm.navUncFactor <= 0 {
		return
	}

	t.ctm.navUncertainty = t.ctm.navUncFactor * math.Sqrt(math.Max(m.X, m.Y))
}

func (t *PathController) consumeDesiredPath(dpath *msgs.DesiredPath) {
	if !t.IsActive() {
		t.Err("not active")
		return
	}

	now := t.Clock().Get()
	t.pcs.Flags = 0

	switch {
	case dpath.Flags&msgs.FlagStart != 0:
		t.pcs.StartLat = dpath.StartLat
		t.pcs.StartLon = dpath.StartLon
		t.pcs.StartZ = dpath.StartZ
		t.pcs.StartZUnits = dpath.StartZUnits
	case (!t.tracking && now-t.ts.EndTime > 1) ||
		(!t.ts.Nearby && !t.ts.Loitering) ||
		dpath.Flags&msgs.FlagDirect != 0:
		t.pcs.StartLat, t.pcs.StartLon = coords.Displace(
			t.estate.Lat, t.estate.Lon, t.estate.X, t.estate.Y)
		t.pcs.StartZ = t.estate.Z
	default:
		// Reuse the previous end as the new start.
		t.pcs.StartLat = t.pcs.EndLat
		t.pcs.StartLon = t.pcs.EndLon
		t.pcs.StartZ = t.pcs.EndZ
		t.pcs.StartZUnits = t.pcs.EndZUnits
	}

	t.ts.Start.X, t.ts.Start.Y = coords.Displacement(
		t.estate.Lat, t.estate.Lon, t.pcs.StartLat, t.pcs.StartLon)
	t.ts.Start.Z = t.pcs.StartZ

	if dpath.Flags&msgs.FlagLoiterCurr != 0 && dpath.LRadius > 0 {
		t.pcs.EndLat, t.pcs.EndLon = coords.Displace(
			t.estate.Lat, t.estate.Lon, t.estate.X, t.estate.Y)
		t.pcs.EndZ = dpath.EndZ
		t.pcs.EndZUnits = dpath.EndZUnits
	} else {
		t.pcs.EndLat = dpath.EndLat
		t.pcs.EndLon = dpath.EndLon
		t.pcs.EndZ = dpath.EndZ
		t.pcs.EndZUnits = dpath.EndZUnits
	}

	t.ts.End.X, t.ts.End.Y = coords.Displacement(
		t.estate.Lat, t.estate.Lon, t.pcs.EndLat, t.pcs.EndLon)
	t.ts.End.Z = t.pcs.EndZ

	t.ts.TrackBearing, t.ts.TrackLength = coords.BearingAndRange(t.ts.Start, t.ts.End)

	t.ts.StartTime = now
	t.ts.EndTime = -1
	t.ts.Now = t.ts.StartTime
	t.ts.Delta = 0
	t.tracking = true

	// Send altitude or depth references, unless the NO_Z flag is set or
	// the handler handles the vertical plane itself.
	if !t.handler.HasSpecificZControl() && dpath.Flags&msgs.FlagNoZ == 0 {
		t.ts.ZControl = true

		switch dpath.EndZUnits {
		case msgs.ZAltitude:
			t.disableControlLoops(msgs.CLDepth)
			t.enableControlLoops(msgs.CLAltitude)
		case msgs.ZDepth:
			t.disableControlLoops(msgs.CLAltitude)
			t.enableControlLoops(msgs.CLDepth)
		}

		t.zref.Value = dpath.EndZ
		t.zref.ZUnits = dpath.EndZUnits

		if t.btEnabled && t.btrack != nil {
			t.btrack.OnDesiredZ(&t.zref, true)
		} else {
			zref := t.zref
			t.Dispatch(&zref)
		}
	} else {
		t.ts.ZControl = false
		t.pcs.Flags |= msgs.PCSFlagNoZ
	}

	// Send speed reference.
	t.speed.Value = dpath.Speed
	t.speed.SpeedUnits = dpath.SpeedUnits

	t.enableControlLoops(msgs.CLSpeed)

	speed := t.speed
	t.DispatchLoop(&speed)

	// Loiter handling.
	t.ts.Loitering = false
	t.ts.Nearby = false
	t.ts.Loiter.Radius = dpath.LRadius
	t.ts.Loiter.Clockwise = dpath.Flags&msgs.FlagCClockwise == 0

	if t.ts.Loiter.Radius > 0 {
		t.ts.Loiter.Center = t.ts.End

		courseErr := math.Abs(coords.NormalizeRadian(t.estate.Psi - t.ts.TrackBearing))

		if t.ts.TrackLength < cLDistance {
			// Very close to the loiter center; use the current heading to
			// avoid the bearing singularity.
			t.ts.End = coords.DisplacePoint(t.ts.Loiter.Center,
				t.estate.Psi, t.ts.Loiter.Radius)
		} else {
			var sign float64
			inside := t.ts.TrackLength <= t.ts.Loiter.Radius*cLSizeFactor
			if inside && courseErr < coords.HalfPi {
				if t.ts.Loiter.Clockwise {
					sign = 1
				} else {
					sign = -1
				}
			} else {
				if t.ts.Loiter.Clockwise {
					sign = -1
				} else {
					sign = 1
				}
			}

			t.ts.End = coords.DisplacePoint(t.ts.Loiter.Center,
				t.ts.TrackBearing+sign*coords.HalfPi, t.ts.Loiter.Radius)
		}

		t.ts.TrackBearing, t.ts.TrackLength = coords.BearingAndRange(t.ts.Start, t.ts.End)
	}

	t.updateTrackingState()
	t.reportPathControlState(true)
	t.updateEntityState("")

	t.Inf("path (lat/lon): %0.5f %0.5f to %0.5f %0.5f",
		coords.Degrees(t.pcs.StartLat), coords.Degrees(t.pcs.StartLon),
		coords.Degrees(t.pcs.EndLat), coords.Degrees(t.pcs.EndLon))

	if t.atm.enabled {
		t.atm.diverging = false
		t.atm.time = t.ts.Now + t.atm.period
		t.atm.lastErr = t.ts.TrackPos.X
		t.atm.lastCourseErr = math.Abs(t.ts.CourseError)
	}

	if t.ctm.enabled {
		t.ctm.diverging = false
	}

	t.handler.OnPathStartup(&t.estate, &t.ts)
}

func (t *PathController) consumeDistance(m *msgs.Distance) {
	if !t.btEnabled || t.btrack == nil {
		return
	}

	if err := t.btrack.OnDistance(m); err != nil {
		t.handleBottomTrackerError(err)
	}
}

func (t *PathController) consumeDesiredZ(m *msgs.DesiredZ) {
	if t.btEnabled && t.btrack != nil {
		t.btrack.OnDesiredZ(m, false)
	}
}

func (t *PathController) consumeDesiredSpeed(m *msgs.DesiredSpeed) {
	if t.btEnabled && t.btrack != nil {
		t.btrack.OnDesiredSpeed(m)
	}
}

func (t *PathController) handleBottomTrackerError(err error) {
	// If braking then stop braking.
	if t.braking {
		t.DispatchLoop(&msgs.Brake{Op: msgs.BrakeStop})
		t.braking = false
	}

	t.signalError(err.Error())
}

func (t *PathController) consumeEstimatedState(es *msgs.EstimatedState) {
	if t.btEnabled && t.btrack != nil {
		if err := t.btrack.OnEstimatedState(es); err != nil {
			t.handleBottomTrackerError(err)
		}
	}

	if t.setup {
		t.setup = false
		t.updateEntityState("")
	}

	changeRef := es.Lat != t.estate.Lat || es.Lon != t.estate.Lon ||
		es.Height != t.estate.Height

	t.estate = *es

	if !t.IsActive() || t.inError || !t.tracking {
		return
	}

	// Re-project the track endpoints into the new LLH reference.
	if changeRef {
		t.ts.Start.X, t.ts.Start.Y = coords.Displacement(
			es.Lat, es.Lon, t.pcs.StartLat, t.pcs.StartLon)
		t.ts.End.X, t.ts.End.Y = coords.Displacement(
			es.Lat, es.Lon, t.pcs.EndLat, t.pcs.EndLon)
	}

	now := t.Clock().Get()
	if now < t.ts.Now+t.cperiod {
		return
	}

	t.ts.Delta = now - t.ts.Now
	t.ts.Now = now

	if t.ts.Nearby && t.ts.Now-t.ts.EndTime >= cNewRefTimeout {
		t.signalError("expected new path control reference")
		return
	}

	prevNearby := t.ts.Nearby

	t.updateTrackingState()
	t.reportPathControlState(!prevNearby && t.ts.Nearby)

	if !t.ts.Loitering {
		t.handler.Step(es, &t.ts)
	} else {
		t.loiter(es)
	}

	// Monitors pause while braking and reinitialize when resumed.
	if t.braking {
		t.runningMonitors = false
	} else {
		if !t.runningMonitors {
			if t.atm.enabled && !t.ts.Loitering {
				t.atm.diverging = false
				t.atm.time = t.ts.Now + t.atm.period
				t.atm.lastErr = t.ts.TrackPos.X
				t.atm.lastCourseErr = math.Abs(t.ts.CourseError)
			}

			if t.ctm.enabled {
				t.ctm.diverging = false
			}
		}

		t.runningMonitors = true
	}

	if t.runningMonitors {
		if t.atm.enabled && !t.ts.Loitering {
			t.monitorAlongTrackError()
		}

		if t.ctm.enabled {
			t.monitorCrossTrackError()
		}
	}

	if !t.ts.Loitering && t.ts.Nearby && t.ts.Loiter.Radius > 0 {
		t.ts.End = t.ts.Loiter.Center
		t.ts.Loitering = true
		t.ts.Nearby = false
		t.Inf("now loitering")
	}
}

func (t *PathController) updateTrackingState() {
	pos := coords.Point{X: t.estate.X, Y: t.estate.Y, Z: t.estate.Z}

	// Range and LOS angle to destination.
	t.ts.LOSAngle, t.ts.Range = coords.BearingAndRange(pos, t.ts.End)

	// Ground course and speed.
	if t.ts.CourseControl {
		t.ts.Course = math.Atan2(t.estate.Vy, t.estate.Vx)
		t.ts.Speed = math.Hypot(t.estate.Vx, t.estate.Vy)
	} else {
		t.ts.Course = t.estate.Psi
		t.ts.Speed = t.estate.U
	}

	if !t.ts.Loitering {
		t.ts.TrackPos.X, t.ts.TrackPos.Y = coords.TrackPosition(
			pos, t.ts.Start, t.ts.TrackBearing)
		t.ts.CourseError = coords.NormalizeRadian(t.ts.Course - t.ts.TrackBearing)

		errx := math.Abs(t.ts.TrackLength - t.ts.TrackPos.X)
		erry := math.Abs(t.ts.TrackPos.Y)
		s := math.Max(1.0, t.ts.Speed)

		if errx <= erry && erry < 2*cTimeFactor*s {
			t.ts.ETA = errx / s
		} else {
			t.ts.ETA = math.Hypot(errx, erry) / s
		}

		t.ts.ETA = math.Min(65535, t.ts.ETA-cTimeFactor)

		wasNearby := t.ts.Nearby

		if !t.ts.Nearby && t.ts.ETA <= 0 {
			t.ts.ETA = 0
			t.ts.Nearby = true
			t.ts.EndTime = t.ts.Now
		}

		if !wasNearby && t.ts.Nearby {
			t.Debug("near endpoint")
		}
	} else {
		t.ts.TrackPos.X = 0
		t.ts.TrackPos.Y = t.ts.Range - t.ts.Loiter.Radius

		if t.ts.Loiter.Clockwise {
			t.ts.TrackPos.Y = -t.ts.TrackPos.Y
		}

		if t.ts.Loiter.Clockwise {
			t.ts.CourseError = t.ts.Course - t.ts.LOSAngle + coords.HalfPi
		} else {
			t.ts.CourseError = t.ts.Course - t.ts.LOSAngle - coords.HalfPi
		}
		t.ts.CourseError = coords.NormalizeRadian(t.ts.CourseError)
		t.ts.ETA = 0
		t.ts.Nearby = false
	}

	t.ts.TrackPos.Z = t.estate.Z - t.ts.End.Z
	t.ts.TrackVel.X = t.ts.Speed * math.Cos(t.ts.CourseError)
	t.ts.TrackVel.Y = t.ts.Speed * math.Sin(t.ts.CourseError)
	t.ts.TrackVel.Z = math.Sin(t.estate.Theta) * t.estate.Vz
}

func (t *PathController) monitorAlongTrackError() {
	if t.ts.Now < t.atm.time {
		return
	}

	var curr, minExpected, progress float64

	if math.Abs(t.ts.CourseError) < coords.HalfPi {
		if t.atm.diverging && t.atm.lastCourseErr >= coords.HalfPi {
			t.atm.diverging = false
		}

		// Use along-track position to compute progress.
		curr = t.ts.TrackPos.X
		minExpected = t.atm.period * t.atm.minSpeed
		progress = curr - t.atm.lastErr
	} else {
		// Use course error to compute progress.
		curr = math.Abs(t.ts.CourseError)
		minExpected = t.atm.period * t.atm.minYaw
		progress = t.atm.lastCourseErr - curr
	}

	switch {
	case t.atm.diverging && progress >= minExpected:
		t.Debug("along-track monitor: no longer diverging")
		t.atm.diverging = false
	case t.atm.diverging:
		t.signalError("along-track divergence error")
	case progress < minExpected:
		t.Debug("along-track monitor: %0.2f progress, %0.2f expected, diverging",
			progress, minExpected)
		t.atm.diverging = true
	}

	t.atm.time += t.atm.period
	t.atm.lastErr = t.ts.TrackPos.X
	t.atm.lastCourseErr = math.Abs(t.ts.CourseError)
}

func (t *PathController) monitorCrossTrackError() {
	d := math.Abs(t.ts.TrackPos.Y)

	if d >= t.ctm.distanceLimit+t.ctm.navUncertainty {
		if !t.ctm.diverging {
			t.Debug("cross-track monitor -- %0.1f m from track -- diverging", d)
			t.ctm.diverging = true
			t.ctm.divergenceStarted = t.ts.Now
		} else if t.ts.Now-t.ctm.divergenceStarted >= t.ctm.timeLimit {
			t.signalError("cross-track divergence error")
			return
		}
	} else if t.ctm.diverging {
		t.ctm.diverging = false
		t.Debug("cross-track monitor -- %0.1f m from track -- recovered", d)
	}
}

func (t *PathController) consumeControlLoops(m *msgs.ControlLoops) {
	if m.Enable == msgs.CLEnable {
		t.aloops |= m.Mask
	} else {
		t.aloops &^= m.Mask
	}

	if m.Mask&msgs.CLPath == 0 {
		return
	}

	was := t.IsActive()
	will := m.Enable == msgs.CLEnable

	if was != will {
		if will {
			t.Activate()
		} else {
			t.Deactivate()
		}
	}
}

// OnActivation arms the controller for a fresh path.
func (t *PathController) OnActivation() {
	t.inError = false
	t.tracking = false
	t.braking = false
	t.Debug("enabling")
	t.handler.OnPathActivation()
	t.updateEntityState("")

	if t.btEnabled && t.btrack != nil {
		t.btrack.Activate()
	}
}

// OnDeactivation disarms the controller, releasing the vertical loop last
// used.
func (t *PathController) OnDeactivation() {
	if t.ts.ZControl {
		if t.zref.ZUnits == msgs.ZAltitude {
			t.disableControlLoops(msgs.CLAltitude)
		} else {
			t.disableControlLoops(msgs.CLDepth)
		}
	}

	t.ts.EndTime = t.Clock().Get()
	t.inError = false
	t.Debug("disabling")
	t.handler.OnPathDeactivation()
	t.updateEntityState("")

	if t.btEnabled && t.btrack != nil {
		t.btrack.Deactivate()

		if t.braking {
			t.DispatchLoop(&msgs.Brake{Op: msgs.BrakeStop})
			t.braking = false
		}
	}
}

func (t *PathController) signalError(msg string) {
	t.inError = true
	t.Err("%s", msg)
	t.updateEntityState(msg)
}

func (t *PathController) updateEntityState(msg string) {
	switch {
	case t.setup:
		t.SetEntityState(msgs.HealthBoot,
			"waiting for position estimate from navigation")
	case t.inError:
		t.SetEntityState(msgs.HealthError, msg)
	default:
		t.SetEntityState(msgs.HealthNormal, "active")
	}
}

func (t *PathController) enableControlLoops(mask uint32) {
	t.configureControlLoops(msgs.CLEnable, mask)
}

func (t *PathController) disableControlLoops(mask uint32) {
	t.configureControlLoops(msgs.CLDisable, mask)
}

func (t *PathController) configureControlLoops(enable uint8, mask uint32) {
	if enable == msgs.CLEnable {
		if mask&t.aloops == mask {
			return
		}
		t.aloops |= mask
	} else {
		if mask&^t.aloops == mask {
			return
		}
		t.aloops &^= mask
	}

	t.Dispatch(&msgs.ControlLoops{Enable: enable, Mask: mask})
}

func (t *PathController) reportPathControlState(force bool) {
	if !force && t.ts.Now-t.lastPCSReport < t.speriod {
		return
	}

	t.lastPCSReport = t.ts.Now

	if t.ts.Loitering {
		t.pcs.X = 0
	} else {
		t.pcs.X = t.ts.TrackLength - t.ts.TrackPos.X
	}

	t.pcs.Y = t.ts.TrackPos.Y
	t.pcs.Z = t.ts.TrackPos.Z
	t.pcs.Vx = t.ts.TrackVel.X
	t.pcs.Vy = t.ts.TrackVel.Y
	t.pcs.Vz = t.ts.TrackVel.Z
	t.pcs.CourseError = t.ts.CourseError

	if t.ts.Nearby {
		t.pcs.Flags |= msgs.PCSFlagNear
	} else {
		t.pcs.Flags &^= msgs.PCSFlagNear
	}

	if t.ts.Loitering {
		t.pcs.Flags |= msgs.PCSFlagLoitering
		t.pcs.LRadius = t.ts.Loiter.Radius
	} else {
		t.pcs.Flags &^= msgs.PCSFlagLoitering
		t.pcs.LRadius = 0
	}

	t.pcs.ETA = uint16(math.Round(math.Max(0, t.ts.ETA)))

	pcs := t.pcs
	t.Dispatch(&pcs)
}

// loiter remaps the track frame onto the loiter tangent and delegates to
// the handler's Step.
func (t *PathController) loiter(es *msgs.EstimatedState) {
	lts := t.ts

	b := math.Pi + t.ts.LOSAngle
	lts.Start = coords.DisplacePoint(t.ts.End, b, lts.Loiter.Radius)

	if lts.Loiter.Clockwise {
		b += coords.HalfPi
	} else {
		b -= coords.HalfPi
	}
	lts.End = coords.DisplacePoint(lts.Start, b, 500)

	lts.TrackBearing = b
	lts.TrackLength = 500
	lts.TrackPos.X = 0
	pos := coords.Point{X: es.X, Y: es.Y}
	lts.LOSAngle, _ = coords.BearingAndRange(pos, lts.End)

	t.handler.Step(es, &lts)
}

// TrackingSnapshot returns a copy of the controller's tracking state. Used
// by the monitoring server and tests.
func (t *PathController) TrackingSnapshot() TrackingState {
	return t.ts
}

// Tracker returns the nested terrain-protection machine, or nil when
// disabled.
func (t *PathController) Tracker() *BottomTracker {
	return t.btrack
}
