package control

import (
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// losHandler is the stock guidance law: steer the line-of-sight angle to
// the effective end point.
type losHandler struct {
	pc *PathController
}

// NewLOSController builds a path controller with line-of-sight heading
// guidance.
func NewLOSController(name string, ctx *tasks.Context) *PathController {
	h := &losHandler{}
	pc := NewPathController(name, ctx, h)
	h.pc = pc

	return pc
}

func (h *losHandler) Step(_ *msgs.EstimatedState, ts *TrackingState) {
	h.pc.Dispatch(&msgs.DesiredHeading{Value: ts.LOSAngle})
}

func (h *losHandler) OnPathStartup(_ *msgs.EstimatedState, _ *TrackingState) {}

func (h *losHandler) OnPathActivation() {
	h.pc.enableControlLoops(msgs.CLYaw)
}

func (h *losHandler) OnPathDeactivation() {
	h.pc.disableControlLoops(msgs.CLYaw)
}

func (h *losHandler) HasSpecificZControl() bool { return false }
