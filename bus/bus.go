// Package bus implements the process-wide typed publish/subscribe transport.
// Every task owns a Client with an independent bounded inbox; publishers
// never run subscriber handlers inline and are never blocked by slow
// subscribers. Inbox overflow is counted and surfaced, not silently hidden.
package bus

import (
	"fmt"
	"sync"

	"github.com/seaverlab/tethys/clock"
	"github.com/seaverlab/tethys/msgs"
)

// PublishFlag modifies the behavior of a single publish.
type PublishFlag uint8

const (
	// LoopBack delivers the message to the publisher as well.
	LoopBack PublishFlag = 1 << iota

	// KeepTime preserves the timestamp already present in the message.
	KeepTime
)

// A Bus routes typed messages between clients in the same process.
type Bus struct {
	HookableBase

	clock    clock.Clock
	systemID uint16

	mu      sync.RWMutex
	clients map[string]*Client
	subs    map[uint16][]*Client
}

// New creates a Bus. All messages published through it carry the given
// system identifier as their source system.
func New(c clock.Clock, systemID uint16) *Bus {
	return &Bus{
		clock:    c,
		systemID: systemID,
		clients:  make(map[string]*Client),
		subs:     make(map[uint16][]*Client),
	}
}

// SystemID returns the source system identifier stamped on published
// messages.
func (b *Bus) SystemID() uint16 {
	return b.systemID
}

// NewClient registers a named bus endpoint with a bounded inbox.
func (b *Bus) NewClient(name string, inboxCap int) *Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, found := b.clients[name]; found {
		panic("bus client " + name + " already registered")
	}

	c := &Client{
		bus:   b,
		name:  name,
		inbox: make(chan msgs.Msg, inboxCap),
	}
	b.clients[name] = c

	return c
}

// Clients returns a snapshot of all registered clients.
func (b *Bus) Clients() []*Client {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cs := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		cs = append(cs, c)
	}

	return cs
}

func (b *Bus) subscribe(c *Client, id uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs[id] {
		if s == c {
			return
		}
	}

	b.subs[id] = append(b.subs[id], c)
}

// publish stamps the message and enqueues a snapshot for every subscriber.
func (b *Bus) publish(src *Client, m msgs.Msg, flags PublishFlag) {
	meta := m.Meta()

	if meta.Src == 0 {
		meta.Src = b.systemID
	}
	if meta.SrcEntity == 0 {
		meta.SrcEntity = src.entity
	}
	if meta.Dst == 0 {
		meta.Dst = msgs.AddressAny
	}
	if flags&KeepTime == 0 {
		meta.Time = b.clock.GetSinceEpoch()
	}
	if meta.UID == "" {
		meta.UID = msgs.NewUID()
	}

	// One immutable snapshot per publish; the publisher is free to keep
	// mutating its own copy afterwards.
	snapshot := m.Clone()
	snapshot.Meta().UID = meta.UID

	if b.NumHooks() > 0 {
		b.InvokeHook(HookCtx{
			Domain: b,
			Pos:    HookPosPublish,
			Item:   snapshot,
			Detail: src.name,
		})
	}

	b.mu.RLock()
	targets := b.subs[m.MsgID()]
	b.mu.RUnlock()

	for _, t := range targets {
		if t == src && flags&LoopBack == 0 {
			continue
		}

		t.deliver(snapshot)
	}
}

// A Client is a task's endpoint on the bus. A client's inbox preserves
// arrival order; per (publisher, type) the order matches publish order.
type Client struct {
	bus    *Bus
	name   string
	entity uint8

	inbox chan msgs.Msg

	statsLock sync.Mutex
	delivered uint64
	overflows uint64
}

// Name returns the name of the client.
func (c *Client) Name() string {
	return c.name
}

// SetEntity sets the default source entity stamped on published messages
// that carry no explicit source entity.
func (c *Client) SetEntity(id uint8) {
	c.entity = id
}

// Subscribe registers interest in a message type.
func (c *Client) Subscribe(id uint16) {
	c.bus.subscribe(c, id)
}

// BindToList subscribes by abbreviated type names. An unknown name is a
// fatal configuration error.
func (c *Client) BindToList(names []string) error {
	for _, n := range names {
		id, err := msgs.IDFromAbbrev(n)
		if err != nil {
			return fmt.Errorf("bind list for %s: %w", c.name, err)
		}

		c.Subscribe(id)
	}

	return nil
}

// Publish sends a message to all subscribers of its type.
func (c *Client) Publish(m msgs.Msg, flags ...PublishFlag) {
	var f PublishFlag
	for _, fl := range flags {
		f |= fl
	}

	c.bus.publish(c, m, f)
}

func (c *Client) deliver(m msgs.Msg) {
	select {
	case c.inbox <- m:
		c.statsLock.Lock()
		c.delivered++
		c.statsLock.Unlock()

		if c.bus.NumHooks() > 0 {
			c.bus.InvokeHook(HookCtx{
				Domain: c.bus,
				Pos:    HookPosDeliver,
				Item:   m,
				Detail: c.name,
			})
		}
	default:
		c.statsLock.Lock()
		c.overflows++
		c.statsLock.Unlock()

		if c.bus.NumHooks() > 0 {
			c.bus.InvokeHook(HookCtx{
				Domain: c.bus,
				Pos:    HookPosOverflow,
				Item:   m,
				Detail: c.name,
			})
		}
	}
}

// Inbox exposes the receive channel. It is intended for select loops in
// task runners; regular consumers should use Receive.
func (c *Client) Inbox() <-chan msgs.Msg {
	return c.inbox
}

// Receive pops the next pending message without blocking. It returns false
// when the inbox is empty.
func (c *Client) Receive() (msgs.Msg, bool) {
	select {
	case m := <-c.inbox:
		return m, true
	default:
		return nil, false
	}
}

// Pending returns the number of queued messages.
func (c *Client) Pending() int {
	return len(c.inbox)
}

// Capacity returns the inbox capacity.
func (c *Client) Capacity() int {
	return cap(c.inbox)
}

// Overflows returns the number of messages rejected because the inbox was
// full. Tasks surface a growing value as entity-state degradation.
func (c *Client) Overflows() uint64 {
	c.statsLock.Lock()
	defer c.statsLock.Unlock()
	return c.overflows
}

// Delivered returns the number of messages accepted into the inbox.
func (c *Client) Delivered() uint64 {
	c.statsLock.Lock()
	defer c.statsLock.Unlock()
	return c.delivered
}
