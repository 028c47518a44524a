package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

type harness struct {
	clk *clock.Manual
	veh *Vehicle
	pub *bus.Client
	col *bus.Client
}

func newHarness(t *testing.T, section map[string]string) *harness {
	t.Helper()

	clk := clock.NewManual()
	clk.SetEpoch(1e9)

	ctx := &tasks.Context{
		Bus:      bus.New(clk, 27),
		Clock:    clk,
		Entities: tasks.NewEntityRegistry(),
	}

	col := ctx.Bus.NewClient("collector", 256)
	col.Subscribe(msgs.IDVehicleState)
	col.Subscribe(msgs.IDVehicleCommand)
	col.Subscribe(msgs.IDStopManeuver)
	col.Subscribe(msgs.IDIdleManeuver)
	col.Subscribe(msgs.IDCalibration)
	col.Subscribe(msgs.IDLoiter)

	veh := NewVehicle(ctx)
	require.NoError(t, tasks.Prepare(veh, section))
	require.NoError(t, veh.OnResourceInitialization())

	return &harness{
		clk: clk,
		veh: veh,
		pub: ctx.Bus.NewClient("injector", 16),
		col: col,
	}
}

// inject publishes a message and runs the supervisor's handlers.
func (h *harness) inject(m msgs.Msg) {
	h.pub.Publish(m)
	h.veh.ProcessPending()
}

func (h *harness) collect() []msgs.Msg {
	var out []msgs.Msg
	for {
		m, ok := h.col.Receive()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

// replies selects VehicleCommand replies, skipping injected requests the
// collector also receives.
func replies(ms []msgs.Msg) []*msgs.VehicleCommand {
	var out []*msgs.VehicleCommand
	for _, m := range ofType(ms, msgs.IDVehicleCommand) {
		vc := m.(*msgs.VehicleCommand)
		if vc.Type != msgs.VCRequest {
			out = append(out, vc)
		}
	}
	return out
}

func ofType(ms []msgs.Msg, id uint16) []msgs.Msg {
	var out []msgs.Msg
	for _, m := range ms {
		if m.MsgID() == id {
			out = append(out, m)
		}
	}
	return out
}

func lastVehicleState(t *testing.T, ms []msgs.Msg) *msgs.VehicleState {
	t.Helper()
	vss := ofType(ms, msgs.IDVehicleState)
	require.NotEmpty(t, vss, "expected a VehicleState report")
	return vss[len(vss)-1].(*msgs.VehicleState)
}

func execLoiter(h *harness, requestID uint16) {
	h.inject(&msgs.VehicleCommand{
		Type:      msgs.VCRequest,
		Command:   msgs.VCExecManeuver,
		RequestID: requestID,
		ManeuverInline: &msgs.Loiter{
			Lat: 0.7188, Lon: -0.152, Z: 2, ZUnits: msgs.ZDepth,
			Radius: 50, Speed: 1.0, SpeedUnits: msgs.SpeedMPS,
			Direction: msgs.LDClockwise,
		},
	})
}

func TestManeuverStartHappyPath(t *testing.T) {
	h := newHarness(t, map[string]string{})

	execLoiter(h, 42)

	got := h.collect()

	assert.Len(t, ofType(got, msgs.IDStopManeuver), 1)

	loiters := ofType(got, msgs.IDLoiter)
	require.Len(t, loiters, 1)
	assert.InDelta(t, 0.7188, loiters[0].(*msgs.Loiter).Lat, 1e-9)
	assert.InDelta(t, 50.0, loiters[0].(*msgs.Loiter).Radius, 1e-9)

	vs := lastVehicleState(t, got)
	assert.Equal(t, msgs.OpModeManeuver, vs.OpMode)
	assert.Equal(t, msgs.IDLoiter, vs.ManeuverType)

	rs := replies(got)
	require.Len(t, rs, 1)
	assert.Equal(t, msgs.VCSuccess, rs[0].Type)
	assert.Equal(t, uint16(42), rs[0].RequestID)
	assert.Equal(t, "Loiter maneuver started", rs[0].Info)
}

func TestEveryRequestGetsExactlyOneReply(t *testing.T) {
	h := newHarness(t, map[string]string{})

	// A maneuver command with no inline maneuver fails.
	h.inject(&msgs.VehicleCommand{
		Type: msgs.VCRequest, Command: msgs.VCExecManeuver, RequestID: 7,
	})

	rs := replies(h.collect())
	require.Len(t, rs, 1)
	assert.Equal(t, msgs.VCFailure, rs[0].Type)
	assert.Equal(t, uint16(7), rs[0].RequestID)

	// Stop-calibration outside calibration still replies, once.
	h.inject(&msgs.VehicleCommand{
		Type: msgs.VCRequest, Command: msgs.VCStopCalibration, RequestID: 8,
	})

	rs = replies(h.collect())
	require.Len(t, rs, 1)
	assert.Equal(t, uint16(8), rs[0].RequestID)
}

func TestEntityErrorDuringManeuver(t *testing.T) {
	h := newHarness(t, map[string]string{})

	execLoiter(h, 1)
	h.collect()

	h.inject(&msgs.EntityMonitoringState{
		ECount: 1, ENames: "IMU",
		LastError: "hard fault", LastErrorTime: h.clk.GetSinceEpoch(),
	})

	got := h.collect()
	assert.Len(t, ofType(got, msgs.IDStopManeuver), 1, "maneuver stopped")
	assert.Len(t, ofType(got, msgs.IDIdleManeuver), 1, "vehicle idled")

	vs := lastVehicleState(t, got)
	assert.Equal(t, msgs.OpModeError, vs.OpMode)
	assert.Equal(t, uint32(0), vs.ControlLoops, "loops cleared")
	assert.Equal(t, uint8(1), vs.ErrorCount)
	assert.Equal(t, "IMU", vs.ErrorEnts)

	// Errors clearing brings the vehicle back to service.
	h.inject(&msgs.EntityMonitoringState{})

	vs = lastVehicleState(t, h.collect())
	assert.Equal(t, msgs.OpModeService, vs.OpMode)
}

func TestNonOverridableExternalOverrideFromError(t *testing.T) {
	h := newHarness(t, map[string]string{})

	h.inject(&msgs.EntityMonitoringState{
		ECount: 1, ENames: "IMU",
		LastError: "hard fault", LastErrorTime: h.clk.GetSinceEpoch(),
	})
	vs := lastVehicleState(t, h.collect())
	require.Equal(t, msgs.OpModeError, vs.OpMode)

	h.inject(&msgs.ControlLoops{
		Enable: msgs.CLEnable, Mask: msgs.CLTeleoperation,
	})

	vs = lastVehicleState(t, h.collect())
	assert.Equal(t, msgs.OpModeExternal, vs.OpMode,
		"teleoperation must not be stuck in ERROR")
}

func TestAbortLeadsToServiceOrError(t *testing.T) {
	h := newHarness(t, map[string]string{})

	execLoiter(h, 3)
	h.collect()

	h.inject(&msgs.Abort{})

	got := h.collect()
	assert.Len(t, ofType(got, msgs.IDStopManeuver), 1)

	vs := lastVehicleState(t, got)
	assert.Equal(t, msgs.OpModeService, vs.OpMode)
}

func TestManeuverDoneOpensNewReferenceWindow(t *testing.T) {
	h := newHarness(t, map[string]string{})

	execLoiter(h, 4)
	h.collect()

	h.inject(&msgs.ManeuverControlState{State: msgs.MCSDone})

	vs := lastVehicleState(t, h.collect())
	assert.Equal(t, msgs.OpModeManeuver, vs.OpMode)
	assert.NotZero(t, vs.Flags&msgs.VFlagManeuverDone)

	// No new reference arrives within the window.
	h.clk.Advance(1.1)
	h.veh.Tick()

	got := h.collect()
	assert.Len(t, ofType(got, msgs.IDStopManeuver), 1)

	vs = lastVehicleState(t, got)
	assert.Equal(t, msgs.OpModeService, vs.OpMode)
	assert.Zero(t, vs.Flags&msgs.VFlagManeuverDone)
}

func TestCalibrationLifecycle(t *testing.T) {
	h := newHarness(t, map[string]string{})

	h.inject(&msgs.VehicleCommand{
		Type: msgs.VCRequest, Command: msgs.VCStartCalibration,
		RequestID: 5, CalibTime: 2,
	})

	got := h.collect()

	cals := ofType(got, msgs.IDCalibration)
	require.Len(t, cals, 1)
	assert.Equal(t, uint16(2), cals[0].(*msgs.Calibration).Duration)

	vs := lastVehicleState(t, got)
	assert.Equal(t, msgs.OpModeCalibration, vs.OpMode)

	// Calibration expires through the shared switch timer.
	h.clk.Advance(2.5)
	h.veh.Tick()

	vs = lastVehicleState(t, h.collect())
	assert.Equal(t, msgs.OpModeService, vs.OpMode)
}

func TestNoDirectManeuverCalibrationTransition(t *testing.T) {
	h := newHarness(t, map[string]string{})

	execLoiter(h, 6)
	h.collect()

	h.inject(&msgs.VehicleCommand{
		Type: msgs.VCRequest, Command: msgs.VCStartCalibration,
		RequestID: 9, CalibTime: 1,
	})

	var modes []msgs.OpMode
	for _, m := range ofType(h.collect(), msgs.IDVehicleState) {
		modes = append(modes, m.(*msgs.VehicleState).OpMode)
	}

	require.NotEmpty(t, modes)
	assert.Equal(t, msgs.OpModeCalibration, modes[len(modes)-1])
	assert.Contains(t, modes, msgs.OpModeService,
		"MANEUVER to CALIBRATION passes through SERVICE")
}

func TestSafePlanFiltersEntityErrors(t *testing.T) {
	h := newHarness(t, map[string]string{
		"Safe Entities": "Camera",
	})

	execLoiter(h, 10)
	h.collect()

	h.inject(&msgs.PlanControl{
		Type: msgs.PCRequest, Op: msgs.PCStart,
		Flags: msgs.PCFlagIgnoreErrors,
	})

	// An error on an entity outside the safe set is ignored.
	h.inject(&msgs.EntityMonitoringState{
		ECount: 1, ENames: "Sidescan",
		LastErrorTime: h.clk.GetSinceEpoch(),
	})

	assert.Equal(t, msgs.OpModeManeuver, h.veh.VehicleStateSnapshot().OpMode)

	// An error on a safe-set entity still matters.
	h.inject(&msgs.EntityMonitoringState{
		ECount: 1, ENames: "Camera",
		LastErrorTime: h.clk.GetSinceEpoch(),
	})

	vs := lastVehicleState(t, h.collect())
	assert.Equal(t, msgs.OpModeError, vs.OpMode)
}

func TestExternalModeFollowsControlLoops(t *testing.T) {
	h := newHarness(t, map[string]string{})

	h.inject(&msgs.ControlLoops{Enable: msgs.CLEnable, Mask: msgs.CLYaw})

	vs := lastVehicleState(t, h.collect())
	require.Equal(t, msgs.OpModeExternal, vs.OpMode)
	assert.Equal(t, msgs.CLYaw, vs.ControlLoops)

	// The reported mask is the union of grants minus later revocations.
	h.inject(&msgs.ControlLoops{Enable: msgs.CLEnable,
		Mask: msgs.CLSpeed | msgs.CLDepth})
	h.inject(&msgs.ControlLoops{Enable: msgs.CLDisable, Mask: msgs.CLDepth})

	assert.Equal(t, msgs.CLYaw|msgs.CLSpeed,
		h.veh.VehicleStateSnapshot().ControlLoops)

	h.inject(&msgs.ControlLoops{Enable: msgs.CLDisable,
		Mask: msgs.CLYaw | msgs.CLSpeed})

	vs = lastVehicleState(t, h.collect())
	assert.Equal(t, msgs.OpModeService, vs.OpMode)
	assert.Zero(t, vs.ControlLoops)
}
