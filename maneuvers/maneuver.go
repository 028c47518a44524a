// Package maneuvers provides the maneuver framework: a process-wide
// admission lock so at most one maneuver commands the vehicle, control-loop
// mask arbitration, and progress signaling.
package maneuvers

import (
	"sync"
	"time"

	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Lock admission poll back-off.
const lockBackoff = 500 * time.Millisecond

// Shared is the process-wide maneuver arbitration state: the admission
// lock and the active control-loop mask. It is created by the system
// assembly and injected into every maneuver task; it is never a package
// global.
type Shared struct {
	lock chan struct{}

	mu    sync.Mutex
	amask uint32
}

// NewShared creates the arbitration state.
func NewShared() *Shared {
	return &Shared{lock: make(chan struct{}, 1)}
}

// TryLock attempts to acquire the maneuver lock without blocking.
func (s *Shared) TryLock() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the maneuver lock.
func (s *Shared) Unlock() {
	select {
	case <-s.lock:
	default:
		panic("maneuver lock released while not held")
	}
}

// UpdateLoops folds a ControlLoops grant into the active mask.
func (s *Shared) UpdateLoops(cl *msgs.ControlLoops) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl.Enable == msgs.CLEnable {
		s.amask |= cl.Mask
	} else {
		s.amask &^= cl.Mask
	}
}

// ActiveMask returns the current active control-loop mask.
func (s *Shared) ActiveMask() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.amask
}

// Maneuver is the base of all maneuver tasks.
type Maneuver struct {
	*tasks.BaseTask

	shared *Shared
	locked bool

	mcs msgs.ManeuverControlState

	// stateReport, when set, runs every main-loop pass while active.
	stateReport func()
}

// NewManeuver creates the maneuver base state.
func NewManeuver(name string, ctx *tasks.Context, shared *Shared) *Maneuver {
	m := &Maneuver{
		BaseTask: tasks.NewBaseTask(name, ctx),
		shared:   shared,
	}

	tasks.Subscribe(m.BaseTask, m.consumeStopManeuver)

	return m
}

// SetStateReport installs the periodic progress hook.
func (m *Maneuver) SetStateReport(f func()) {
	m.stateReport = f
}

func (m *Maneuver) consumeStopManeuver(_ *msgs.StopManeuver) {
	if m.IsActive() {
		m.Deactivate()
	}
}

// AcquireControl takes the process-wide maneuver lock, polling with
// back-off until granted, then activates the task. It fails only when the
// task is stopping.
func (m *Maneuver) AcquireControl() bool {
	for !m.shared.TryLock() {
		if m.Stopping() {
			return false
		}
		time.Sleep(lockBackoff)
	}

	m.locked = true
	m.Activate()

	return true
}

// OnDeactivation releases the maneuver lock.
func (m *Maneuver) OnDeactivation() {
	if m.locked {
		m.locked = false
		m.shared.Unlock()
	}
}

// SetControl reconfigures the control loops claimed by this maneuver:
// everything is torn down, then the requested mask is enabled.
func (m *Maneuver) SetControl(mask uint32) {
	if mask == m.shared.ActiveMask() {
		return
	}

	cl := &msgs.ControlLoops{Enable: msgs.CLDisable, Mask: msgs.CLAll}
	m.Dispatch(cl)
	m.shared.UpdateLoops(cl)

	if mask != 0 {
		cl = &msgs.ControlLoops{Enable: msgs.CLEnable, Mask: mask}
		m.Dispatch(cl)
		m.shared.UpdateLoops(cl)
	}
}

// SignalError reports a failed maneuver and deactivates.
func (m *Maneuver) SignalError(text string) {
	m.Err("%s", text)
	m.Deactivate()

	m.mcs.State = msgs.MCSError
	m.mcs.Info = text
	m.mcs.ETA = 0
	m.Dispatch(&m.mcs)
}

// SignalNoAltitude reports the absence of a valid altitude.
func (m *Maneuver) SignalNoAltitude() {
	m.SignalError("no valid value for altitude has been received yet, " +
		"maneuver will not proceed")
}

// SignalCompletion reports a finished maneuver and deactivates.
func (m *Maneuver) SignalCompletion(text string) {
	m.Debug("%s", text)
	m.Deactivate()

	m.mcs.State = msgs.MCSDone
	m.mcs.Info = text
	m.mcs.ETA = 0
	m.Dispatch(&m.mcs)
}

// SignalProgress reports execution progress with a time-to-completion.
func (m *Maneuver) SignalProgress(eta uint16, text string) {
	m.mcs.State = msgs.MCSExecuting
	m.mcs.Info = text
	m.mcs.ETA = eta
	m.Dispatch(&m.mcs)
}

// OnMain is the maneuver event loop.
func (m *Maneuver) OnMain() {
	for !m.Stopping() {
		if m.IsActive() && m.stateReport != nil {
			m.stateReport()
		}

		m.WaitForMessages(time.Second)
	}
}
