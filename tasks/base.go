package tasks

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
)

// Context carries the process-wide services handed to every task.
type Context struct {
	Bus      *bus.Bus
	Clock    clock.Clock
	Entities *EntityRegistry
	Profile  string
}

// DefaultInboxCap is the bound of a task's bus inbox.
const DefaultInboxCap = 1024

// BaseTask provides the framework state and default hook implementations
// that concrete tasks embed.
type BaseTask struct {
	name   string
	ctx    *Context
	client *bus.Client
	logger *log.Logger
	params *ParamSet

	handlers       map[uint16][]func(msgs.Msg)
	defaultHandler func(msgs.Msg)
	eid            uint8
	frequency      float64

	self     Task
	active   bool
	stop     chan struct{}
	stopOnce sync.Once

	lastOverflows uint64
	entityState   msgs.EntityHealth
	entityDesc    string
}

// NewBaseTask creates the framework state for a task.
func NewBaseTask(name string, ctx *Context) *BaseTask {
	t := &BaseTask{
		name:     name,
		ctx:      ctx,
		client:   ctx.Bus.NewClient(name, DefaultInboxCap),
		logger:   log.New(os.Stderr, "["+name+"] ", log.LstdFlags|log.Lmicroseconds),
		params:   NewParamSet(),
		handlers: make(map[uint16][]func(msgs.Msg)),
		stop:     make(chan struct{}),
	}

	return t
}

// Name returns the task name.
func (t *BaseTask) Name() string { return t.name }

// Base returns the framework state.
func (t *BaseTask) Base() *BaseTask { return t }

// Context returns the process-wide services.
func (t *BaseTask) Context() *Context { return t.ctx }

// Client returns the task's bus endpoint.
func (t *BaseTask) Client() *bus.Client { return t.client }

// Clock returns the time service.
func (t *BaseTask) Clock() clock.Clock { return t.ctx.Clock }

// Params returns the task's parameter set.
func (t *BaseTask) Params() *ParamSet { return t.params }

// Param declares a configuration parameter bound to dst.
func (t *BaseTask) Param(name string, dst interface{}) *Param {
	return t.params.Bind(name, dst)
}

// SetFrequency sets the tick frequency of a periodic task.
func (t *BaseTask) SetFrequency(hz float64) {
	t.frequency = hz
}

// Frequency returns the tick frequency of a periodic task.
func (t *BaseTask) Frequency() float64 { return t.frequency }

// EntityID returns the task's default entity identifier.
func (t *BaseTask) EntityID() uint8 { return t.eid }

// ReserveEntity registers an additional entity label owned by this task.
func (t *BaseTask) ReserveEntity(label string) uint8 {
	return t.ctx.Entities.Reserve(label, t.name)
}

// Subscribe registers a handler for a message type. Handlers run on the
// task's own goroutine; a panic in a handler is caught and logged.
func Subscribe[M msgs.Msg](t *BaseTask, handler func(M)) {
	var zero M
	id := zero.MsgID()

	t.handlers[id] = append(t.handlers[id], func(m msgs.Msg) {
		handler(m.(M))
	})
	t.client.Subscribe(id)
}

// Dispatch publishes a message on the bus.
func (t *BaseTask) Dispatch(m msgs.Msg, flags ...bus.PublishFlag) {
	t.client.Publish(m, flags...)
}

// DispatchLoop publishes a message delivered to the publisher as well.
func (t *BaseTask) DispatchLoop(m msgs.Msg) {
	t.client.Publish(m, bus.LoopBack)
}

// WaitForMessages blocks until a message is ready or the timeout elapses,
// then drains and dispatches everything pending.
func (t *BaseTask) WaitForMessages(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.stop:
		return
	case m := <-t.client.Inbox():
		t.deliver(m)
	case <-timer.C:
		return
	}

	t.ProcessPending()
}

// ProcessPending dispatches every queued message without blocking.
func (t *BaseTask) ProcessPending() {
	for {
		m, ok := t.client.Receive()
		if !ok {
			break
		}
		t.deliver(m)
	}

	t.reportOverflows()
}

func (t *BaseTask) deliver(m msgs.Msg) {
	defer func() {
		if r := recover(); r != nil {
			t.Err("handler for %s panicked: %v", msgs.AbbrevFromID(m.MsgID()), r)
		}
	}()

	hs := t.handlers[m.MsgID()]
	if len(hs) == 0 && t.defaultHandler != nil {
		t.defaultHandler(m)
		return
	}

	for _, h := range hs {
		h(m)
	}
}

// SetDefaultHandler installs a handler for subscribed message types that
// have no specific handler. Transport tasks that bind by name use it to
// receive everything they asked for.
func (t *BaseTask) SetDefaultHandler(h func(msgs.Msg)) {
	t.defaultHandler = h
}

// reportOverflows degrades the entity state when the inbox dropped
// messages since the last check.
func (t *BaseTask) reportOverflows() {
	n := t.client.Overflows()
	if n > t.lastOverflows {
		t.lastOverflows = n
		t.SetEntityState(msgs.HealthFault, "message inbox overflow")
	}
}

// Stopping reports whether the task has been asked to stop. It is checked
// at every suspension point.
func (t *BaseTask) Stopping() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// StopChan exposes the stop signal for select loops.
func (t *BaseTask) StopChan() <-chan struct{} { return t.stop }

func (t *BaseTask) requestStop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// IsActive reports whether the task is activated.
func (t *BaseTask) IsActive() bool { return t.active }

// Activate runs the activation edge.
func (t *BaseTask) Activate() {
	if t.active {
		return
	}
	t.active = true
	if t.self != nil {
		t.self.OnActivation()
	}
}

// Deactivate runs the deactivation edge.
func (t *BaseTask) Deactivate() {
	if !t.active {
		return
	}
	t.active = false
	if t.self != nil {
		t.self.OnDeactivation()
	}
}

// SetEntityState updates the task's default entity health and publishes the
// change.
func (t *BaseTask) SetEntityState(s msgs.EntityHealth, desc string) {
	t.entityState = s
	t.entityDesc = desc

	if t.eid != UnknownEntity {
		t.ctx.Entities.SetState(t.eid, s, desc)
	}

	es := &msgs.EntityState{State: s, Description: desc}
	es.SrcEntity = t.eid
	t.Dispatch(es)
}

// EntityState returns the current health of the task's default entity.
func (t *BaseTask) EntityState() (msgs.EntityHealth, string) {
	return t.entityState, t.entityDesc
}

// Inf logs an informational message.
func (t *BaseTask) Inf(format string, args ...interface{}) {
	t.logger.Printf("[INFO] "+format, args...)
}

// War logs a warning.
func (t *BaseTask) War(format string, args ...interface{}) {
	t.logger.Printf("[WARN] "+format, args...)
}

// Err logs an error.
func (t *BaseTask) Err(format string, args ...interface{}) {
	t.logger.Printf("[ERROR] "+format, args...)
}

// Debug logs a debug message.
func (t *BaseTask) Debug(format string, args ...interface{}) {
	t.logger.Printf("[DEBUG] "+format, args...)
}

// Default no-op lifecycle hooks.

// OnUpdateParameters recomputes derived state after binding.
func (t *BaseTask) OnUpdateParameters() error { return nil }

// OnEntityReservation reserves extra entities.
func (t *BaseTask) OnEntityReservation() {}

// OnEntityResolution resolves entity labels of other tasks.
func (t *BaseTask) OnEntityResolution() error { return nil }

// OnResourceAcquisition acquires OS resources.
func (t *BaseTask) OnResourceAcquisition() error { return nil }

// OnResourceInitialization initializes acquired resources.
func (t *BaseTask) OnResourceInitialization() error { return nil }

// OnResourceRelease releases resources. Idempotent.
func (t *BaseTask) OnResourceRelease() {}

// OnActivation runs when the task is activated.
func (t *BaseTask) OnActivation() {}

// OnDeactivation runs when the task is deactivated.
func (t *BaseTask) OnDeactivation() {}
