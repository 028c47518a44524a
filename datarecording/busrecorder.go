package datarecording

import (
	"reflect"
	"sync"

	"github.com/seaverlab/tethys/bus"
	"github.com/seaverlab/tethys/msgs"
)

var metaType = reflect.TypeOf(msgs.MsgMeta{})

// BusRecorder is a bus hook that flattens every published message into a
// table named after its type. Rows carry the message meta data plus every
// scalar payload field; non-scalar payload fields are skipped.
type BusRecorder struct {
	rec DataRecorder

	mu    sync.Mutex
	known map[uint16]*rowSpec
}

// NewBusRecorder creates the recording hook.
func NewBusRecorder(rec DataRecorder) *BusRecorder {
	return &BusRecorder{
		rec:   rec,
		known: make(map[uint16]*rowSpec),
	}
}

// Func records published messages.
func (r *BusRecorder) Func(ctx bus.HookCtx) {
	if ctx.Pos != bus.HookPosPublish {
		return
	}

	m, ok := ctx.Item.(msgs.Msg)
	if !ok {
		return
	}

	r.Record(m)
}

// Record flattens one message into its table.
func (r *BusRecorder) Record(m msgs.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, found := r.known[m.MsgID()]
	if !found {
		spec = newRowSpec(m)
		r.known[m.MsgID()] = spec
		r.rec.CreateTable(spec.table, spec.zeroRow())
	}

	r.rec.InsertData(spec.table, spec.fill(m))
}

type fieldPair struct {
	src int
	dst int
}

// rowSpec maps a message type onto a flat, scalar-only row struct built
// with reflect.StructOf.
type rowSpec struct {
	table   string
	rowType reflect.Type
	pairs   []fieldPair
}

func newRowSpec(m msgs.Msg) *rowSpec {
	mt := reflect.TypeOf(m).Elem()

	fields := []reflect.StructField{
		{Name: "Time", Type: reflect.TypeOf(float64(0))},
		{Name: "UID", Type: reflect.TypeOf("")},
		{Name: "Src", Type: reflect.TypeOf(uint16(0))},
		{Name: "SrcEntity", Type: reflect.TypeOf(uint8(0))},
		{Name: "Dst", Type: reflect.TypeOf(uint16(0))},
		{Name: "DstEntity", Type: reflect.TypeOf(uint8(0))},
	}

	var pairs []fieldPair
	for i := 0; i < mt.NumField(); i++ {
		f := mt.Field(i)
		if f.Type == metaType {
			continue
		}
		if !isAllowedType(f.Type.Kind()) {
			continue
		}

		pairs = append(pairs, fieldPair{src: i, dst: len(fields)})
		fields = append(fields, reflect.StructField{
			Name: f.Name,
			// Named scalar types (units, enums) become their base type so
			// the SQL driver can bind them.
			Type: basicType(f.Type.Kind()),
		})
	}

	return &rowSpec{
		table:   msgs.AbbrevFromID(m.MsgID()),
		rowType: reflect.StructOf(fields),
		pairs:   pairs,
	}
}

func (s *rowSpec) zeroRow() any {
	return reflect.New(s.rowType).Elem().Interface()
}

func (s *rowSpec) fill(m msgs.Msg) any {
	mv := reflect.ValueOf(m).Elem()
	row := reflect.New(s.rowType).Elem()

	meta := m.Meta()
	row.Field(0).SetFloat(meta.Time)
	row.Field(1).SetString(meta.UID)
	row.Field(2).SetUint(uint64(meta.Src))
	row.Field(3).SetUint(uint64(meta.SrcEntity))
	row.Field(4).SetUint(uint64(meta.Dst))
	row.Field(5).SetUint(uint64(meta.DstEntity))

	for _, p := range s.pairs {
		dst := row.Field(p.dst)
		dst.Set(mv.Field(p.src).Convert(dst.Type()))
	}

	return row.Interface()
}

func basicType(k reflect.Kind) reflect.Type {
	switch k {
	case reflect.Bool:
		return reflect.TypeOf(false)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.TypeOf(int64(0))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return reflect.TypeOf(int64(0))
	case reflect.Float32, reflect.Float64:
		return reflect.TypeOf(float64(0))
	case reflect.String:
		return reflect.TypeOf("")
	default:
		panic("unsupported scalar kind " + k.String())
	}
}
