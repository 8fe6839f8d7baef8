// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package msgbus

import (
	"log/slog"

	"github.com/ccheshirecat/msgbus/internal/event"
)

// Handler receives messages for a plain subscription.
type Handler interface {
	HandleMessage(h Handle, m *Message)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(h Handle, m *Message)

// HandleMessage calls f(h, m).
func (f HandlerFunc) HandleMessage(h Handle, m *Message) { f(h, m) }

// CodeRegistry hands out event codes. *event.Registry satisfies it.
type CodeRegistry interface {
	RegisterID() event.Code
}

// Bus dispatches messages to subscriptions.
type Bus struct {
	logger *slog.Logger
	reg    registry
	code   event.Code
	owners map[Owner]struct{}
	closed bool
}

// New creates a bus and reserves its message code from codes. A nil codes
// uses a private registry.
func New(codes CodeRegistry, opts ...Option) *Bus {
	if codes == nil {
		codes = event.NewRegistry()
	}
	b := &Bus{
		logger: slog.New(slog.DiscardHandler),
		reg:    newRegistry(0),
		owners: make(map[Owner]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.code = codes.RegisterID()
	return b
}

// MessageCode returns the event code used when forwarding messages to owners.
func (b *Bus) MessageCode() event.Code { return b.code }

// Len returns the number of live subscriptions.
func (b *Bus) Len() int { return b.reg.len() }

// Subscribe registers handler for topic. userData is surfaced to the handler
// through Message.UserData.
func (b *Bus) Subscribe(topic Topic, handler Handler, userData any) (Handle, error) {
	if handler == nil {
		return Handle{}, ErrNilHandler
	}
	return b.insert(record{topic: topic, kind: kindPlain, handler: handler, userData: userData})
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(topic Topic, fn func(h Handle, m *Message), userData any) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilHandler
	}
	return b.Subscribe(topic, HandlerFunc(fn), userData)
}

func (b *Bus) insert(rec record) (Handle, error) {
	if b.closed {
		return Handle{}, ErrClosed
	}
	h, err := b.reg.insert(rec)
	if err != nil {
		b.logger.Warn("subscribe rejected", "topic", uint32(rec.topic), "error", err)
		return Handle{}, err
	}
	b.logger.Debug("subscribed", "topic", uint32(rec.topic), "handle", h.String(), "owner_bound", rec.kind == kindOwner)
	return h, nil
}

// Unsubscribe removes the subscription referenced by h. A handle that does
// not reference a live subscription yields ErrInvalidHandle.
func (b *Bus) Unsubscribe(h Handle) error {
	if err := b.reg.remove(h); err != nil {
		return err
	}
	b.logger.Debug("unsubscribed", "handle", h.String())
	return nil
}

// Send delivers payload to every subscription of topic and of TopicAny, in
// registration order, before returning.
func (b *Bus) Send(topic Topic, payload any) {
	b.reg.walk(func(h Handle, rec record) {
		if rec.topic != topic && rec.topic != TopicAny {
			return
		}
		m := Message{topic: topic, payload: payload, userData: rec.userData, owner: rec.owner}
		switch rec.kind {
		case kindPlain:
			rec.handler.HandleMessage(h, &m)
		case kindOwner:
			b.forward(&m)
		}
	})
}

// Close drops every subscription. Subscribe calls fail with ErrClosed
// afterwards; Send becomes a no-op.
func (b *Bus) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.reg.reset()
	clear(b.owners)
	b.logger.Debug("bus closed")
}
