// Package supervisor arbitrates who commands the vehicle. The Vehicle task
// is the single source of truth for the operating mode; the EntityMonitor
// task aggregates entity health for it.
package supervisor

import (
	"fmt"
	"strings"

	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Printing period for entity error warnings.
const errorPeriod = 2.0

// Window for a new maneuver reference after MANEUVER_DONE.
const maneuverTimeout = 1.0

const maneuverTypeNone uint16 = 0xFFFF

// Vehicle supervises the operating mode against plan maneuvers, external
// overrides, and entity errors.
type Vehicle struct {
	*tasks.BaseTask

	freq     float64
	safeEnts []string

	// One-shot switch timer shared by calibration expiry and the
	// maneuver-done new-reference window. At most one consumer is armed.
	switchTime float64

	inSafePlan bool
	errPrintAt float64
	scopeRef   uint32

	vs          msgs.VehicleState
	calibration msgs.Calibration
	stop        msgs.StopManeuver
	idle        msgs.IdleManeuver
}

// NewVehicle creates the vehicle supervisor task.
func NewVehicle(ctx *tasks.Context) *Vehicle {
	t := &Vehicle{
		BaseTask:   tasks.NewBaseTask("Supervisors.Vehicle", ctx),
		switchTime: -1.0,
	}

	t.Param("Execution Frequency", &t.freq).
		DefaultValue("2").
		MinimumValue(0.1).
		Units("hertz").
		Description("State report frequency")

	t.Param("Safe Entities", &t.safeEnts).
		DefaultValue("").
		Description("Relevant entities when performing a safe plan")

	tasks.Subscribe(t.BaseTask, t.consumeAbort)
	tasks.Subscribe(t.BaseTask, t.consumeControlLoops)
	tasks.Subscribe(t.BaseTask, t.consumeEntityMonitoringState)
	tasks.Subscribe(t.BaseTask, t.consumeManeuverControlState)
	tasks.Subscribe(t.BaseTask, t.consumeVehicleCommand)
	tasks.Subscribe(t.BaseTask, t.consumePlanControl)
	tasks.Subscribe(t.BaseTask, t.consumeHeartbeat)
	tasks.Subscribe(t.BaseTask, t.consumeRestartSystem)

	return t
}

// OnUpdateParameters applies the configured execution frequency.
func (t *Vehicle) OnUpdateParameters() error {
	t.SetFrequency(t.freq)
	return nil
}

// OnResourceInitialization sets the initial supervisor state.
func (t *Vehicle) OnResourceInitialization() error {
	t.SetEntityState(msgs.HealthNormal, "active")

	t.vs = msgs.VehicleState{
		OpMode:        msgs.OpModeService,
		ManeuverType:  maneuverTypeNone,
		ManeuverSTime: -1,
		ManeuverETA:   0xFFFF,
		LastErrorTime: -1,
	}
	t.idle.Duration = 0

	return nil
}

// Tick publishes the vehicle state and expires the switch timer.
func (t *Vehicle) Tick() {
	t.Dispatch(&t.vs)

	if t.switchTime < 0 {
		return
	}

	delta := t.Clock().Get() - t.switchTime

	switch {
	case t.calibrationMode() && delta > float64(t.calibration.Duration):
		t.Debug("calibration over")
		t.changeMode(msgs.OpModeService, nil)
	case t.maneuverMode() && delta > maneuverTimeout:
		t.Inf("maneuver request timeout")
		t.reset()
		t.changeMode(msgs.OpModeService, nil)
	default:
		return
	}

	t.switchTime = -1.0
}

func (t *Vehicle) consumeAbort(_ *msgs.Abort) {
	t.vs.LastError = "got abort request"
	t.vs.LastErrorTime = t.Clock().GetSinceEpoch()
	t.Err("%s", t.vs.LastError)

	if !t.errorMode() {
		t.reset()

		if !t.externalMode() || !t.nonOverridableLoops() {
			t.changeMode(msgs.OpModeService, nil)
		}
	}
}

func (t *Vehicle) consumeControlLoops(m *msgs.ControlLoops) {
	// Obsolete scope references are ignored.
	if m.ScopeRef < t.scopeRef {
		return
	}
	t.scopeRef = m.ScopeRef

	was := t.vs.ControlLoops

	if m.Enable == msgs.CLEnable {
		t.vs.ControlLoops |= m.Mask

		if was == 0 && t.vs.ControlLoops != 0 {
			t.onEnabledControlLoops()
		}
	} else {
		t.vs.ControlLoops &^= m.Mask

		if was != 0 && t.vs.ControlLoops == 0 {
			t.onDisabledControlLoops()
		}
	}
}

func (t *Vehicle) onEnabledControlLoops() {
	t.Debug("some control loops are enabled now")

	switch t.vs.OpMode {
	case msgs.OpModeService:
		t.changeMode(msgs.OpModeExternal, nil)
	case msgs.OpModeError:
		if t.nonOverridableLoops() {
			t.changeMode(msgs.OpModeExternal, nil)
		} else {
			// try to disable the control loops
			t.reset()
		}
	}
}

func (t *Vehicle) onDisabledControlLoops() {
	t.Debug("no control loops are enabled now")

	if t.externalMode() {
		t.changeMode(msgs.OpModeService, nil)
	}
}

func (t *Vehicle) consumeEntityMonitoringState(m *msgs.EntityMonitoringState) {
	prevCount := t.vs.ErrorCount

	t.vs.ErrorCount = m.CCount + m.ECount

	if t.vs.ErrorCount > 0 && m.LastErrorTime > t.vs.LastErrorTime {
		t.vs.LastError = m.LastError
		t.vs.LastErrorTime = m.LastErrorTime
	}

	t.vs.ErrorEnts = ""
	if m.CCount > 0 {
		t.vs.ErrorEnts = m.CNames
	}
	if m.ECount > 0 {
		if m.CCount > 0 {
			t.vs.ErrorEnts += ","
		}
		t.vs.ErrorEnts += m.ENames
	}

	now := t.Clock().Get()
	if prevCount > 0 && t.vs.ErrorCount == 0 {
		t.War("entity errors cleared")
	} else if prevCount != t.vs.ErrorCount && now >= t.errPrintAt {
		t.War("vehicle errors: %s", t.vs.ErrorEnts)
		t.errPrintAt = now + errorPeriod
	}

	if t.errorMode() {
		if t.vs.ErrorCount == 0 {
			t.changeMode(msgs.OpModeService, nil)
		}
		return
	}

	if t.externalMode() || t.maneuverMode() {
		if t.entityError() && !t.nonOverridableLoops() && !t.teleoperationOn() {
			t.reset()
			t.changeMode(msgs.OpModeError, nil)
		}
		return
	}

	if t.entityError() && !t.calibrationMode() {
		t.reset()
		t.changeMode(msgs.OpModeError, nil)
	}
}

func (t *Vehicle) consumeManeuverControlState(m *msgs.ManeuverControlState) {
	if m.Src != t.Context().Bus.SystemID() {
		return
	}

	if !t.maneuverMode() {
		return
	}

	switch m.State {
	case msgs.MCSExecuting:
		if m.ETA != t.vs.ManeuverETA {
			t.vs.ManeuverETA = m.ETA
			t.Dispatch(&t.vs)
		}
	case msgs.MCSDone:
		t.Debug("%s maneuver done", msgs.AbbrevFromID(t.vs.ManeuverType))
		t.vs.ManeuverETA = 0
		t.vs.Flags |= msgs.VFlagManeuverDone
		t.Dispatch(&t.vs)
		// open the new-reference window
		t.switchTime = t.Clock().Get()
	case msgs.MCSError:
		t.vs.LastError = msgs.AbbrevFromID(t.vs.ManeuverType) +
			" maneuver error: " + m.Info
		t.vs.LastErrorTime = m.Time
		t.Debug("%s", t.vs.LastError)
		t.changeMode(msgs.OpModeService, nil)
		t.reset()
	}
}

func (t *Vehicle) consumePlanControl(m *msgs.PlanControl) {
	if m.Type == msgs.PCRequest && m.Op == msgs.PCStart {
		t.inSafePlan = m.Flags&msgs.PCFlagIgnoreErrors != 0
	}
}

func (t *Vehicle) consumeHeartbeat(_ *msgs.Heartbeat) {
	// Liveness only; a heartbeat never changes the operating mode.
}

func (t *Vehicle) consumeRestartSystem(_ *msgs.RestartSystem) {
	if !t.serviceMode() {
		t.War("ignoring restart request outside service mode")
		return
	}

	t.switchTime = -1.0
}

func (t *Vehicle) consumeVehicleCommand(cmd *msgs.VehicleCommand) {
	if cmd.Type != msgs.VCRequest {
		return
	}

	switch cmd.Command {
	case msgs.VCExecManeuver:
		t.startManeuver(cmd)
	case msgs.VCStopManeuver:
		t.stopManeuver(cmd)
	case msgs.VCStartCalibration:
		t.startCalibration(cmd)
	case msgs.VCStopCalibration:
		t.stopCalibration(cmd)
	default:
		t.requestFailed(cmd, fmt.Sprintf("unknown command %d", cmd.Command))
	}
}

func (t *Vehicle) answer(cmd *msgs.VehicleCommand, typ uint8, desc string) {
	reply := &msgs.VehicleCommand{
		Type:      typ,
		Command:   cmd.Command,
		RequestID: cmd.RequestID,
		Info:      desc,
	}
	reply.Dst = cmd.Src
	reply.DstEntity = cmd.SrcEntity
	t.Dispatch(reply)

	if typ == msgs.VCFailure {
		t.Err("%s", desc)
	} else {
		t.Debug("%s", desc)
	}
}

func (t *Vehicle) requestOK(cmd *msgs.VehicleCommand, desc string) {
	t.answer(cmd, msgs.VCSuccess, desc)
}

func (t *Vehicle) requestFailed(cmd *msgs.VehicleCommand, desc string) {
	t.answer(cmd, msgs.VCFailure, desc)
}

func (t *Vehicle) startCalibration(cmd *msgs.VehicleCommand) {
	if t.externalMode() {
		t.requestFailed(cmd, "cannot calibrate: vehicle is in external mode")
		return
	}

	// A running maneuver is torn down through SERVICE first; calibration
	// is never entered straight from MANEUVER.
	if t.maneuverMode() {
		t.reset()
		t.changeMode(msgs.OpModeService, nil)
	}

	t.changeMode(msgs.OpModeCalibration, nil)

	t.calibration.Duration = cmd.CalibTime
	t.Dispatch(&t.calibration)

	t.switchTime = t.Clock().Get()

	t.requestOK(cmd, fmt.Sprintf("calibrating vehicle for %d seconds",
		t.calibration.Duration))
}

func (t *Vehicle) stopCalibration(cmd *msgs.VehicleCommand) {
	if !t.calibrationMode() {
		t.requestOK(cmd, "cannot stop calibration: vehicle is not calibrating")
		return
	}

	t.requestOK(cmd, "stopped calibration")

	t.Debug("calibration over")
	t.changeMode(msgs.OpModeService, nil)
}

func (t *Vehicle) startManeuver(cmd *msgs.VehicleCommand) {
	m := cmd.ManeuverInline
	if m == nil {
		t.requestFailed(cmd, "no maneuver specified")
		return
	}

	mtype := msgs.AbbrevFromID(m.MsgID())

	if t.externalMode() {
		t.requestFailed(cmd, mtype+" maneuver cannot be started in current mode")
		return
	}

	// A maneuver never starts straight from CALIBRATION.
	if t.calibrationMode() {
		t.changeMode(msgs.OpModeService, nil)
	}

	t.Dispatch(&t.stop)
	t.changeMode(msgs.OpModeManeuver, m.Clone())

	t.requestOK(cmd, mtype+" maneuver started")
}

func (t *Vehicle) stopManeuver(cmd *msgs.VehicleCommand) {
	if !t.errorMode() {
		t.reset()

		if !t.externalMode() || !t.nonOverridableLoops() {
			t.changeMode(msgs.OpModeService, nil)
		}
	}

	t.requestOK(cmd, "OK")
}

// changeMode performs a supervisor transition. When entering MANEUVER the
// maneuver message is published; leaving MANEUVER for any reason clears the
// safe-plan latch.
func (t *Vehicle) changeMode(s msgs.OpMode, maneuver msgs.Msg) {
	if t.vs.OpMode != s {
		if s == msgs.OpModeService && t.entityError() {
			s = msgs.OpModeError
		}

		if t.vs.OpMode == msgs.OpModeManeuver && s != msgs.OpModeManeuver {
			t.inSafePlan = false
		}

		t.vs.OpMode = s
		t.War("now in '%s' mode", s)

		if !t.maneuverMode() {
			t.vs.ManeuverType = maneuverTypeNone
			t.vs.ManeuverSTime = -1
			t.vs.ManeuverETA = 0xFFFF
			t.vs.Flags &^= msgs.VFlagManeuverDone
		}
	}

	if t.maneuverMode() && maneuver != nil {
		t.Dispatch(maneuver)
		t.vs.ManeuverSTime = maneuver.Meta().Time
		t.vs.ManeuverType = maneuver.MsgID()
		t.vs.ManeuverETA = 0xFFFF
		t.vs.LastError = ""
		t.vs.LastErrorTime = -1
		t.vs.Flags &^= msgs.VFlagManeuverDone
	}

	t.switchTime = -1.0
	t.Dispatch(&t.vs)
}

// reset stops the active maneuver, clears granted loops, and idles the
// vehicle.
func (t *Vehicle) reset() {
	if t.maneuverMode() {
		t.Dispatch(&t.stop)
	}

	t.inSafePlan = false
	t.errPrintAt = 0
	t.vs.ControlLoops = 0

	t.Dispatch(&t.idle)
}

// entityError reports whether the current entity errors are relevant. In a
// safe plan only entities in the configured safe set count.
func (t *Vehicle) entityError() bool {
	if t.vs.ErrorCount == 0 {
		return false
	}

	if len(t.safeEnts) == 0 || !t.inSafePlan {
		return true
	}

	for _, name := range strings.Split(t.vs.ErrorEnts, ",") {
		for _, safe := range t.safeEnts {
			if name == safe {
				return true
			}
		}
	}

	return false
}

func (t *Vehicle) serviceMode() bool     { return t.vs.OpMode == msgs.OpModeService }
func (t *Vehicle) maneuverMode() bool    { return t.vs.OpMode == msgs.OpModeManeuver }
func (t *Vehicle) errorMode() bool       { return t.vs.OpMode == msgs.OpModeError }
func (t *Vehicle) externalMode() bool    { return t.vs.OpMode == msgs.OpModeExternal }
func (t *Vehicle) calibrationMode() bool { return t.vs.OpMode == msgs.OpModeCalibration }

func (t *Vehicle) teleoperationOn() bool {
	return t.vs.ManeuverType == msgs.IDTeleoperation
}

func (t *Vehicle) nonOverridableLoops() bool {
	return t.vs.ControlLoops&(msgs.CLTeleoperation|msgs.CLNoOverride) != 0
}

// VehicleStateSnapshot returns a copy of the current vehicle state report.
// Used by the monitoring server.
func (t *Vehicle) VehicleStateSnapshot() msgs.VehicleState {
	return t.vs
}
