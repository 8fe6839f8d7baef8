// Package event defines the event codes and event values exchanged between
// owner objects and the components that notify them.
package event

import (
	"fmt"
	"sync/atomic"
)

// Code labels an event. Codes below CodeLast are predefined; the rest are
// handed out at runtime by a Registry.
type Code uint32

const (
	// CodeAll is only meaningful as a callback filter and matches every code.
	CodeAll Code = iota
	// CodeDelete is sent to an object right before it is destroyed.
	CodeDelete
	// CodeChildDeleted is sent to a parent after one of its children was destroyed.
	CodeChildDeleted

	// CodeLast is the first code available for runtime registration.
	CodeLast
)

func (c Code) String() string {
	switch c {
	case CodeAll:
		return "all"
	case CodeDelete:
		return "delete"
	case CodeChildDeleted:
		return "child_deleted"
	default:
		return fmt.Sprintf("custom(%d)", uint32(c))
	}
}

// Event is the value passed to event callbacks.
type Event struct {
	Code          Code
	Target        any
	CurrentTarget any
	Param         any
	UserData      any

	stopped bool
}

// Stop prevents callbacks registered after the current one from running.
func (e *Event) Stop() { e.stopped = true }

// Stopped reports whether Stop was called.
func (e *Event) Stopped() bool { return e.stopped }

// Registry allocates event codes from the shared code space.
type Registry struct {
	last atomic.Uint32
}

// NewRegistry returns a Registry whose first allocation is CodeLast.
func NewRegistry() *Registry {
	r := &Registry{}
	r.last.Store(uint32(CodeLast) - 1)
	return r
}

// RegisterID reserves a new, never before returned event code.
func (r *Registry) RegisterID() Code {
	return Code(r.last.Add(1))
}
