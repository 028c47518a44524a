package tasks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
)

func newTestContext() *Context {
	clk := clock.NewReal()
	return &Context{
		Bus:      bus.New(clk, 1),
		Clock:    clk,
		Entities: NewEntityRegistry(),
	}
}

type flakyTask struct {
	*BaseTask

	failuresLeft int
	events       []string
	stateSeen    []msgs.EntityHealth
}

func newFlakyTask(ctx *Context, failures int) *flakyTask {
	return &flakyTask{
		BaseTask:     NewBaseTask("Test.Flaky", ctx),
		failuresLeft: failures,
	}
}

func (t *flakyTask) OnResourceAcquisition() error {
	if t.failuresLeft > 0 {
		t.failuresLeft--
		return &RestartNeeded{After: 5 * time.Millisecond, Reason: "port busy"}
	}

	// Capture what the restart policy did to the entity in between
	// attempts.
	for _, e := range t.Context().Entities.Snapshot() {
		if e.ID == t.EntityID() {
			t.stateSeen = append(t.stateSeen, e.State)
		}
	}

	t.events = append(t.events, "acquire")
	return nil
}

func (t *flakyTask) OnResourceInitialization() error {
	t.events = append(t.events, "init")
	return nil
}

func (t *flakyTask) OnResourceRelease() {
	t.events = append(t.events, "release")
}

func (t *flakyTask) OnMain() {
	t.events = append(t.events, "main")
	for !t.Stopping() {
		t.WaitForMessages(10 * time.Millisecond)
	}
}

func TestRunnerRestartWithBackoff(t *testing.T) {
	ctx := newTestContext()
	task := newFlakyTask(ctx, 2)

	require.NoError(t, Prepare(task, map[string]string{}))
	require.NoError(t, Resolve(task))

	var wg sync.WaitGroup
	start := time.Now()
	Launch(task, &wg)

	time.Sleep(50 * time.Millisecond)
	Stop(task)
	wg.Wait()

	assert.Equal(t, []string{"acquire", "init", "main", "release"}, task.events)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond,
		"two restarts of 5ms must delay acquisition")
	require.NotEmpty(t, task.stateSeen)
	assert.Equal(t, msgs.HealthFault, task.stateSeen[0],
		"entity is FAULT between acquisition attempts")
}

type fatalTask struct {
	*BaseTask
	released bool
}

func (t *fatalTask) OnResourceAcquisition() error {
	return assert.AnError
}

func (t *fatalTask) OnResourceRelease() { t.released = true }

func (t *fatalTask) OnMain() {}

func TestRunnerFatalAcquisition(t *testing.T) {
	ctx := newTestContext()
	task := &fatalTask{BaseTask: NewBaseTask("Test.Fatal", ctx)}

	require.NoError(t, Prepare(task, map[string]string{}))

	var wg sync.WaitGroup
	Launch(task, &wg)
	wg.Wait()

	assert.True(t, task.released, "release runs on every exit path")

	state, _ := task.EntityState()
	assert.Equal(t, msgs.HealthFailure, state)
}

type tickingTask struct {
	*BaseTask
	ticks int
}

func (t *tickingTask) Tick() { t.ticks++ }

func TestRunnerPeriodicTicks(t *testing.T) {
	ctx := newTestContext()
	task := &tickingTask{BaseTask: NewBaseTask("Test.Ticker", ctx)}
	task.SetFrequency(50)

	require.NoError(t, Prepare(task, map[string]string{}))

	var wg sync.WaitGroup
	Launch(task, &wg)

	time.Sleep(100 * time.Millisecond)
	Stop(task)
	wg.Wait()

	assert.GreaterOrEqual(t, task.ticks, 2)
	assert.LessOrEqual(t, task.ticks, 10)
}

func TestPrepareRejectsInvalidParameters(t *testing.T) {
	ctx := newTestContext()
	task := &tickingTask{BaseTask: NewBaseTask("Test.Bad", ctx)}

	var f float64
	task.Param("Frequency", &f).DefaultValue("1").MinimumValue(0.5)

	err := Prepare(task, map[string]string{"Frequency": "0.1"})
	assert.Error(t, err)

	state, _ := task.EntityState()
	assert.Equal(t, msgs.HealthFailure, state)
}

type panickyTask struct {
	*BaseTask
	after int
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	ctx := newTestContext()
	task := &panickyTask{BaseTask: NewBaseTask("Test.Panicky", ctx)}

	Subscribe(task.BaseTask, func(_ *msgs.Abort) { panic("boom") })
	Subscribe(task.BaseTask, func(_ *msgs.Heartbeat) { task.after++ })

	require.NoError(t, Prepare(task, map[string]string{}))

	pub := ctx.Bus.NewClient("pub", 8)
	pub.Publish(&msgs.Abort{})
	pub.Publish(&msgs.Heartbeat{})

	assert.NotPanics(t, func() { task.ProcessPending() })
	assert.Equal(t, 1, task.after, "later messages still dispatch")
}
