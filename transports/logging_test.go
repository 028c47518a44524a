package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
	"github.com/seaverlab/tethys/tasks"
)

type fakeRecorder struct {
	tables  []string
	inserts map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{inserts: make(map[string]int)}
}

func (r *fakeRecorder) CreateTable(name string, _ any) {
	r.tables = append(r.tables, name)
}

func (r *fakeRecorder) InsertData(name string, _ any) {
	r.inserts[name]++
}

func (r *fakeRecorder) ListTables() []string { return r.tables }

func (r *fakeRecorder) Flush() {}

func newLoggingHarness(t *testing.T, section map[string]string) (*Logging, *bus.Client, *fakeRecorder) {
	t.Helper()

	clk := clock.NewManual()
	ctx := &tasks.Context{
		Bus:      bus.New(clk, 27),
		Clock:    clk,
		Entities: tasks.NewEntityRegistry(),
	}

	l := NewLogging(ctx)
	rec := newFakeRecorder()
	l.SetRecorder(rec)

	require.NoError(t, tasks.Prepare(l, section))

	return l, ctx.Bus.NewClient("injector", 16), rec
}

func TestLoggingRecordsBoundTypes(t *testing.T) {
	l, pub, rec := newLoggingHarness(t, map[string]string{
		"Transport Messages": "DesiredZ, Brake",
	})

	pub.Publish(&msgs.DesiredZ{Value: 3, ZUnits: msgs.ZDepth})
	pub.Publish(&msgs.DesiredZ{Value: 4, ZUnits: msgs.ZDepth})
	pub.Publish(&msgs.Brake{Op: msgs.BrakeStart})
	pub.Publish(&msgs.Abort{}) // not in the bound list

	l.ProcessPending()

	assert.ElementsMatch(t, []string{"DesiredZ", "Brake"}, rec.tables)
	assert.Equal(t, 2, rec.inserts["DesiredZ"])
	assert.Equal(t, 1, rec.inserts["Brake"])
	assert.Zero(t, rec.inserts["Abort"])
}

func TestLoggingRejectsUnknownMessageName(t *testing.T) {
	clk := clock.NewManual()
	ctx := &tasks.Context{
		Bus:      bus.New(clk, 27),
		Clock:    clk,
		Entities: tasks.NewEntityRegistry(),
	}

	l := NewLogging(ctx)
	l.SetRecorder(newFakeRecorder())

	err := tasks.Prepare(l, map[string]string{
		"Transport Messages": "DesiredZ, WarpDrive",
	})
	assert.Error(t, err)
}
