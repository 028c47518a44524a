package bus

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// HookPosPublish marks when a message is accepted from a publisher.
var HookPosPublish = &HookPos{Name: "Bus Msg Publish"}

// HookPosDeliver marks when a message is placed in a subscriber inbox.
var HookPosDeliver = &HookPos{Name: "Bus Msg Deliver"}

// HookPosOverflow marks when a subscriber inbox rejects a message.
var HookPosOverflow = &HookPos{Name: "Bus Inbox Overflow"}

// HookCtx is the context that holds all the information about the site that
// a hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accepts Hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides some utility functions for types that implement
// the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook triggers the registered Hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
