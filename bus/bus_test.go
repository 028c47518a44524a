package bus

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
)

var _ = Describe("Bus", func() {
	var (
		clk *clock.Manual
		b   *Bus
		pub *Client
		sub *Client
	)

	BeforeEach(func() {
		clk = clock.NewManual()
		clk.SetEpoch(1000)
		b = New(clk, 27)
		pub = b.NewClient("publisher", 16)
		sub = b.NewClient("subscriber", 16)
	})

	drain := func(c *Client) []msgs.Msg {
		var out []msgs.Msg
		for {
			m, ok := c.Receive()
			if !ok {
				return out
			}
			out = append(out, m)
		}
	}

	It("should deliver to subscribers of the type", func() {
		sub.Subscribe(msgs.IDAbort)

		pub.Publish(&msgs.Abort{})

		got := drain(sub)
		Expect(got).To(HaveLen(1))
		Expect(got[0].MsgID()).To(Equal(msgs.IDAbort))
	})

	It("should not deliver other types", func() {
		sub.Subscribe(msgs.IDAbort)

		pub.Publish(&msgs.Heartbeat{})

		Expect(drain(sub)).To(BeEmpty())
	})

	It("should stamp source system, time, and broadcast destination", func() {
		sub.Subscribe(msgs.IDAbort)
		clk.Advance(3)

		pub.Publish(&msgs.Abort{})

		got := drain(sub)
		Expect(got[0].Meta().Src).To(Equal(uint16(27)))
		Expect(got[0].Meta().Dst).To(Equal(msgs.AddressAny))
		Expect(got[0].Meta().Time).To(BeNumerically("~", 1003, 1e-9))
	})

	It("should keep the timestamp with KeepTime", func() {
		sub.Subscribe(msgs.IDAbort)

		m := &msgs.Abort{}
		m.Time = 42

		pub.Publish(m, KeepTime)

		got := drain(sub)
		Expect(got[0].Meta().Time).To(BeNumerically("==", 42))
	})

	It("should not loop back by default", func() {
		pub.Subscribe(msgs.IDAbort)
		sub.Subscribe(msgs.IDAbort)

		pub.Publish(&msgs.Abort{})

		Expect(drain(pub)).To(BeEmpty())
		Expect(drain(sub)).To(HaveLen(1))
	})

	It("should loop back with the LoopBack flag", func() {
		pub.Subscribe(msgs.IDAbort)

		pub.Publish(&msgs.Abort{}, LoopBack)

		Expect(drain(pub)).To(HaveLen(1))
	})

	It("should preserve per-publisher FIFO order", func() {
		sub.Subscribe(msgs.IDDesiredZ)

		for i := 1; i <= 10; i++ {
			pub.Publish(&msgs.DesiredZ{Value: float64(i)})
		}

		got := drain(sub)
		Expect(got).To(HaveLen(10))
		for i, m := range got {
			Expect(m.(*msgs.DesiredZ).Value).To(
				BeNumerically("==", float64(i+1)))
		}
	})

	It("should snapshot messages at publish time", func() {
		sub.Subscribe(msgs.IDDesiredZ)

		m := &msgs.DesiredZ{Value: 5}
		pub.Publish(m)
		m.Value = 99

		got := drain(sub)
		Expect(got[0].(*msgs.DesiredZ).Value).To(BeNumerically("==", 5))
	})

	It("should count overflows instead of blocking", func() {
		small := b.NewClient("small", 2)
		small.Subscribe(msgs.IDAbort)

		for i := 0; i < 5; i++ {
			pub.Publish(&msgs.Abort{})
		}

		Expect(small.Pending()).To(Equal(2))
		Expect(small.Overflows()).To(Equal(uint64(3)))
		Expect(small.Delivered()).To(Equal(uint64(2)))
	})

	It("should bind to a list of abbreviated names", func() {
		Expect(sub.BindToList([]string{"Abort", "DesiredZ"})).To(Succeed())

		pub.Publish(&msgs.Abort{})
		pub.Publish(&msgs.DesiredZ{})

		Expect(drain(sub)).To(HaveLen(2))
	})

	It("should fail binding an unknown name", func() {
		Expect(sub.BindToList([]string{"NoSuchMessage"})).ToNot(Succeed())
	})

	It("should panic on duplicate client names", func() {
		Expect(func() { b.NewClient("publisher", 4) }).To(Panic())
	})

	It("should invoke hooks on publish and deliver", func() {
		sub.Subscribe(msgs.IDAbort)

		hook := &countingHook{}
		b.AcceptHook(hook)

		pub.Publish(&msgs.Abort{})

		Expect(hook.published).To(Equal(1))
		Expect(hook.delivered).To(Equal(1))
	})
})

type countingHook struct {
	published int
	delivered int
}

func (h *countingHook) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosPublish:
		h.published++
	case HookPosDeliver:
		h.delivered++
	}
}
