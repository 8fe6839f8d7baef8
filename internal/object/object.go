// Package object implements the owner objects that subscriptions can be
// bound to: a small tree of named nodes that receive labelled events and
// announce their own destruction.
//
// Objects are not safe for concurrent use. They are meant to be driven from
// the same goroutine as the bus that notifies them.
package object

import (
	"github.com/ccheshirecat/msgbus/internal/event"
)

// Callback handles an event delivered to an object.
type Callback func(e *event.Event)

// Registration identifies a callback added with AddEventCallback.
type Registration struct {
	cb       Callback
	filter   event.Code
	userData any
	removed  bool
}

// Object is a node that can receive events and be deleted.
type Object struct {
	name     string
	parent   *Object
	children []*Object
	handlers []*Registration
	deleting bool
	deleted  bool
}

// New creates an object and attaches it to parent when parent is not nil.
func New(parent *Object, name string) *Object {
	o := &Object{name: name}
	if parent != nil && !parent.deleted {
		o.parent = parent
		parent.children = append(parent.children, o)
	}
	return o
}

func (o *Object) Name() string { return o.name }

func (o *Object) Parent() *Object { return o.parent }

// Children returns a copy of the object's direct children.
func (o *Object) Children() []*Object {
	out := make([]*Object, len(o.children))
	copy(out, o.children)
	return out
}

// Deleted reports whether Delete has completed for the object.
func (o *Object) Deleted() bool { return o.deleted }

// AddEventCallback registers cb for events whose code equals filter, or for
// every event when filter is event.CodeAll. userData is surfaced to cb as
// Event.UserData. It returns nil once Delete has started.
func (o *Object) AddEventCallback(cb Callback, filter event.Code, userData any) *Registration {
	if cb == nil || o.deleted || o.deleting {
		return nil
	}
	reg := &Registration{cb: cb, filter: filter, userData: userData}
	o.handlers = append(o.handlers, reg)
	return reg
}

// RemoveEventCallback unregisters reg. It reports false when reg does not
// belong to the object or was already removed.
func (o *Object) RemoveEventCallback(reg *Registration) bool {
	if reg == nil || reg.removed {
		return false
	}
	for i, h := range o.handlers {
		if h == reg {
			reg.removed = true
			o.handlers = append(o.handlers[:i:i], o.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// CallbackCount returns how many live callbacks would receive an event with
// the given code.
func (o *Object) CallbackCount(code event.Code) int {
	n := 0
	for _, h := range o.handlers {
		if matches(h.filter, code) {
			n++
		}
	}
	return n
}

// SendEvent delivers an event to the object's callbacks in registration
// order. Events sent to a deleted object are dropped.
func (o *Object) SendEvent(code event.Code, param any) {
	if o.deleted {
		return
	}
	e := &event.Event{Code: code, Target: o, CurrentTarget: o, Param: param}
	o.dispatch(e)
}

func (o *Object) dispatch(e *event.Event) {
	// Callbacks may add or remove registrations while we walk.
	handlers := make([]*Registration, len(o.handlers))
	copy(handlers, o.handlers)
	for _, h := range handlers {
		if h.removed || !matches(h.filter, e.Code) {
			continue
		}
		e.UserData = h.userData
		h.cb(e)
		if e.Stopped() {
			return
		}
	}
}

// OnDelete runs fn when the object is deleted. It reports false when the
// object is already being deleted and fn will never run.
func (o *Object) OnDelete(fn func()) bool {
	if fn == nil {
		return false
	}
	return o.AddEventCallback(func(*event.Event) { fn() }, event.CodeDelete, nil) != nil
}

// Delete destroys the object and its descendants. Children are deleted
// first; every deleted object receives event.CodeDelete and its parent
// receives event.CodeChildDeleted afterwards. Deleting twice is a no-op.
func (o *Object) Delete() {
	if o.deleted || o.deleting {
		return
	}
	o.deleting = true

	for _, child := range o.Children() {
		child.Delete()
	}

	o.dispatch(&event.Event{Code: event.CodeDelete, Target: o, CurrentTarget: o})

	parent := o.parent
	if parent != nil {
		parent.detach(o)
		o.parent = nil
	}
	o.deleted = true
	o.handlers = nil

	if parent != nil {
		parent.SendEvent(event.CodeChildDeleted, o)
	}
}

func (o *Object) detach(child *Object) {
	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i:i], o.children[i+1:]...)
			return
		}
	}
}

func matches(filter, code event.Code) bool {
	return filter == event.CodeAll || filter == code
}
