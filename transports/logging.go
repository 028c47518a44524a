// Package transports hosts tasks that move messages across the process
// boundary. The Logging task is the onboard flight recorder: it binds a
// configured list of message types by name and persists every one it
// receives.
package transports

import (
	"time"

	"github.com/seaverlab/tethys/datarecording"
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

// Logging records a configured set of message types.
type Logging struct {
	*tasks.BaseTask

	messages []string
	output   string

	rec      datarecording.DataRecorder
	recorder *datarecording.BusRecorder
}

// NewLogging creates the logging transport task.
func NewLogging(ctx *tasks.Context) *Logging {
	t := &Logging{
		BaseTask: tasks.NewBaseTask("Transports.Logging", ctx),
	}

	t.Param("Transport Messages", &t.messages).
		DefaultValue("EstimatedState, VehicleState, PathControlState, DesiredPath").
		Description("Message types to log, by abbreviated name")

	t.Param("Output Name", &t.output).
		DefaultValue("").
		Description("Recording database name, empty for a generated one")

	t.SetDefaultHandler(t.record)

	return t
}

// OnUpdateParameters binds the configured message list. An unknown name is
// a fatal configuration error.
func (t *Logging) OnUpdateParameters() error {
	return t.Client().BindToList(t.messages)
}

// OnResourceAcquisition opens the recording database.
func (t *Logging) OnResourceAcquisition() error {
	if t.rec == nil {
		t.rec = datarecording.New(t.output)
		t.recorder = datarecording.NewBusRecorder(t.rec)
	}

	return nil
}

// OnResourceRelease flushes pending rows. Safe to run repeatedly.
func (t *Logging) OnResourceRelease() {
	if t.rec != nil {
		t.rec.Flush()
	}
}

// SetRecorder substitutes the storage backend. It must be called before
// the task starts; the stock backend is a fresh SQLite file.
func (t *Logging) SetRecorder(rec datarecording.DataRecorder) {
	t.rec = rec
	t.recorder = datarecording.NewBusRecorder(rec)
}

func (t *Logging) record(m msgs.Msg) {
	if t.recorder == nil {
		return
	}

	t.recorder.Record(m)
}

// OnMain is the logging loop.
func (t *Logging) OnMain() {
	for !t.Stopping() {
		t.WaitForMessages(time.Second)
	}
}
