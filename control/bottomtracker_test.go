package control

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/coords"
	"github.com/seaverlab/tethys/msgs"
)

type recordingDispatcher struct {
	msgs []msgs.Msg
}

func (d *recordingDispatcher) Dispatch(m msgs.Msg, _ ...bus.PublishFlag) {
	d.msgs = append(d.msgs, m.Clone())
}

func (d *recordingDispatcher) DispatchLoop(m msgs.Msg) {
	d.Dispatch(m)
}

func (d *recordingDispatcher) Debug(_ string, _ ...interface{}) {}

func (d *recordingDispatcher) drain() []msgs.Msg {
	out := d.msgs
	d.msgs = nil
	return out
}

func btOfType(ms []msgs.Msg, id uint16) []msgs.Msg {
	var out []msgs.Msg
	for _, m := range ms {
		if m.MsgID() == id {
			out = append(out, m)
		}
	}
	return out
}

type btHarness struct {
	clk  *clock.Manual
	disp *recordingDispatcher
	bt   *BottomTracker
}

func newBTHarness() *btHarness {
	clk := clock.NewManual()
	disp := &recordingDispatcher{}

	args := &BottomTrackerArgs{
		EID:           5,
		FSamples:      1,
		SafePitch:     coords.Radians(15),
		SlopeHyst:     coords.Radians(1.5),
		MinAlt:        1,
		MinRange:      4,
		AltTol:        2,
		DepthTol:      1,
		DepthLimit:    48,
		CheckTrend:    true,
		ControlFreq:   5,
		ControlPeriod: 0.2,
	}

	return &btHarness{
		clk:  clk,
		disp: disp,
		bt:   NewBottomTracker(args, disp, clk),
	}
}

// engage activates the tracker and feeds the altitude and speed references
// the machine requires before any transition.
func (h *btHarness) engage(t *testing.T, altRef float64) {
	t.Helper()

	h.bt.Activate()

	zref := &msgs.DesiredZ{Value: altRef, ZUnits: msgs.ZAltitude}
	h.bt.OnDesiredZ(zref, true)

	got := btOfType(h.disp.drain(), msgs.IDDesiredZ)
	require.Len(t, got, 1, "outgoing reference passes through while idle")

	h.bt.OnDesiredSpeed(&msgs.DesiredSpeed{Value: 1.5})
}

func (h *btHarness) step(t *testing.T, es *msgs.EstimatedState) {
	t.Helper()

	h.clk.Advance(0.3)
	require.NoError(t, h.bt.OnEstimatedState(es))
}

func TestTrackerEngagesOnAltitudeUnits(t *testing.T) {
	h := newBTHarness()
	h.engage(t, 3)

	assert.Equal(t, TrackerIdle, h.bt.State())

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.5})

	assert.Equal(t, TrackerTracking, h.bt.State())
}

func TestTrackerStaysIdleWithoutSpeed(t *testing.T) {
	h := newBTHarness()
	h.bt.Activate()

	h.bt.OnDesiredZ(&msgs.DesiredZ{Value: 3, ZUnits: msgs.ZAltitude}, true)
	h.disp.drain()

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.5})

	assert.Equal(t, TrackerIdle, h.bt.State())
}

func TestAvoidanceOnLowAltitude(t *testing.T) {
	h := newBTHarness()
	h.engage(t, 3)

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.5})
	require.Equal(t, TrackerTracking, h.bt.State())
	h.disp.drain()

	// Forward range collapses and altitude drops below the minimum.
	require.NoError(t, h.bt.OnDistance(&msgs.Distance{
		Value: 0.5, Validity: msgs.DistValid,
	}))
	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 0.8})

	got := h.disp.drain()
	brakes := btOfType(got, msgs.IDBrake)
	require.Len(t, brakes, 1)
	assert.Equal(t, msgs.BrakeStart, brakes[0].(*msgs.Brake).Op)
	assert.Equal(t, TrackerAvoiding, h.bt.State())

	// Buoyancy pulls the vehicle above the reference; the tracker stops
	// braking and re-dispatches the original reference.
	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.2})

	got = h.disp.drain()
	brakes = btOfType(got, msgs.IDBrake)
	require.Len(t, brakes, 1)
	assert.Equal(t, msgs.BrakeStop, brakes[0].(*msgs.Brake).Op)

	zs := btOfType(got, msgs.IDDesiredZ)
	require.Len(t, zs, 1)
	assert.InDelta(t, 3, zs[0].(*msgs.DesiredZ).Value, 1e-9)
	assert.Equal(t, msgs.ZAltitude, zs[0].(*msgs.DesiredZ).ZUnits)

	assert.Equal(t, TrackerTracking, h.bt.State())
}

func TestBrakeNeverStoppedWhileAvoiding(t *testing.T) {
	h := newBTHarness()
	h.engage(t, 3)

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.5})
	h.disp.drain()

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 0.8})
	require.Equal(t, TrackerAvoiding, h.bt.State())

	// Still below the reference: keep braking.
	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 1.4})

	for _, m := range btOfType(h.disp.drain(), msgs.IDBrake) {
		assert.NotEqual(t, msgs.BrakeStop, m.(*msgs.Brake).Op)
	}
	assert.Equal(t, TrackerAvoiding, h.bt.State())
}

func TestDepthLimitForcesDepthControl(t *testing.T) {
	h := newBTHarness()
	h.engage(t, 3)

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.5})
	require.Equal(t, TrackerTracking, h.bt.State())
	h.disp.drain()

	// depth + alt - ref beyond the limit plus hysteresis.
	h.step(t, &msgs.EstimatedState{Depth: 45, Alt: 8})

	got := h.disp.drain()
	zs := btOfType(got, msgs.IDDesiredZ)
	require.Len(t, zs, 1)
	assert.InDelta(t, 48, zs[0].(*msgs.DesiredZ).Value, 1e-9)
	assert.Equal(t, msgs.ZDepth, zs[0].(*msgs.DesiredZ).ZUnits)
	assert.Equal(t, TrackerDepth, h.bt.State())

	// Terrain rises again; depth control is released.
	h.step(t, &msgs.EstimatedState{Depth: 40, Alt: 5})

	got = h.disp.drain()
	zs = btOfType(got, msgs.IDDesiredZ)
	require.Len(t, zs, 1)
	assert.Equal(t, msgs.ZAltitude, zs[0].(*msgs.DesiredZ).ZUnits)
	assert.Equal(t, TrackerTracking, h.bt.State())
}

func TestSteepSlopeDispatchesSafeDepth(t *testing.T) {
	h := newBTHarness()
	h.engage(t, 3)

	h.step(t, &msgs.EstimatedState{Depth: 10, Alt: 5})
	require.Equal(t, TrackerTracking, h.bt.State())
	h.disp.drain()

	es := &msgs.EstimatedState{Depth: 10, Alt: 5}

	// Two closing ranges produce a 45 degree slope estimate.
	require.NoError(t, h.bt.OnDistance(&msgs.Distance{
		Value: 20, Validity: msgs.DistValid,
	}))
	require.NoError(t, h.bt.OnDistance(&msgs.Distance{
		Value: 10, Validity: msgs.DistValid,
	}))

	h.step(t, es)

	got := h.disp.drain()
	zs := btOfType(got, msgs.IDDesiredZ)
	require.Len(t, zs, 1)
	assert.Equal(t, msgs.ZDepth, zs[0].(*msgs.DesiredZ).ZUnits)
	// Depth at the slope top minus the altitude reference.
	assert.InDelta(t, 7, zs[0].(*msgs.DesiredZ).Value, 1e-6)
	assert.Equal(t, TrackerUnsafe, h.bt.State())

	// The slope flattens, but the top is still ahead: hold the override.
	require.NoError(t, h.bt.OnDistance(&msgs.Distance{
		Value: 10, Validity: msgs.DistValid,
	}))
	require.NoError(t, h.bt.OnDistance(&msgs.Distance{
		Value: 10, Validity: msgs.DistValid,
	}))

	h.step(t, es)
	require.Equal(t, TrackerUnsafe, h.bt.State())

	// Once the vehicle closes on the top, tracking resumes with the
	// original reference.
	passed := &msgs.EstimatedState{Depth: 10, Alt: 5, X: 7}
	h.step(t, passed)

	got = h.disp.drain()
	zs = btOfType(got, msgs.IDDesiredZ)
	require.Len(t, zs, 1)
	assert.Equal(t, msgs.ZAltitude, zs[0].(*msgs.DesiredZ).ZUnits)
	assert.InDelta(t, 3, zs[0].(*msgs.DesiredZ).Value, 1e-9)
	assert.Equal(t, TrackerTracking, h.bt.State())
}

func TestReferencesHeldBackWhileOverriding(t *testing.T) {
	h := newBTHarness()
	h.engage(t, 3)

	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 3.5})
	h.step(t, &msgs.EstimatedState{Depth: 5, Alt: 0.8})
	require.Equal(t, TrackerAvoiding, h.bt.State())
	h.disp.drain()

	// An outgoing reference from the parent must not reach the bus while
	// the tracker overrides the vertical plane.
	h.bt.OnDesiredZ(&msgs.DesiredZ{Value: 4, ZUnits: msgs.ZAltitude}, true)

	assert.Empty(t, btOfType(h.disp.drain(), msgs.IDDesiredZ))
}

func TestInactiveTrackerPassesReferencesThrough(t *testing.T) {
	h := newBTHarness()

	h.bt.OnDesiredZ(&msgs.DesiredZ{Value: 4, ZUnits: msgs.ZDepth}, true)

	zs := btOfType(h.disp.drain(), msgs.IDDesiredZ)
	require.Len(t, zs, 1)
	assert.InDelta(t, 4, zs[0].(*msgs.DesiredZ).Value, 1e-9)
}

func ExampleTrackerState_String() {
	fmt.Println(TrackerAvoiding)
	// Output: Avoiding
}
