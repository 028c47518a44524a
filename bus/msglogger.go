package bus

import (
	"log"
	"reflect"

	"github.com/seaverlab/tethys/msgs"
)

// MsgLogger is a hook for logging messages as they cross the bus.
type MsgLogger struct {
	*log.Logger
}

// NewMsgLogger returns a new MsgLogger which will write into the logger.
func NewMsgLogger(logger *log.Logger) *MsgLogger {
	h := new(MsgLogger)
	h.Logger = logger
	return h
}

// Func writes the message information into the logger.
func (h *MsgLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosPublish {
		return
	}

	msg, ok := ctx.Item.(msgs.Msg)
	if !ok {
		return
	}

	meta := msg.Meta()
	h.Logger.Printf("%.4f,%s,%s,%d/%d,%d/%d,%s\n",
		meta.Time, ctx.Detail,
		reflect.TypeOf(msg).Elem().Name(),
		meta.Src, meta.SrcEntity,
		meta.Dst, meta.DstEntity,
		meta.UID)
}
