package msgbus

import (
	"math"

	"github.com/ccheshirecat/msgbus/internal/event"
)

// Topic identifies a message category.
type Topic uint32

// TopicAny subscribes to every topic.
const TopicAny Topic = math.MaxUint32

// Message is the view of a sent message handed to one subscription. It is
// only valid for the duration of the handler call.
type Message struct {
	topic    Topic
	payload  any
	userData any
	owner    Owner
}

// Topic returns the topic the message was sent on.
func (m *Message) Topic() Topic { return m.topic }

// Payload returns the value passed to Send. It is borrowed from the sender
// and must not be retained after the handler returns.
func (m *Message) Payload() any { return m.payload }

// UserData returns the value supplied when the subscription was created.
func (m *Message) UserData() any { return m.userData }

// Owner returns the owner of an owner-bound subscription, or nil.
func (m *Message) Owner() Owner { return m.owner }

// MessageFromEvent recovers the message carried by an event forwarded to an
// owner. Events with any other code are reported as absent.
func (b *Bus) MessageFromEvent(e *event.Event) (*Message, bool) {
	if e == nil {
		b.logger.Warn("nil event is not a bus message")
		return nil, false
	}
	if e.Code != b.code {
		b.logger.Warn("event code is not the bus message code", "code", e.Code.String(), "want", b.code.String())
		return nil, false
	}
	m, ok := e.Param.(*Message)
	if !ok || m == nil {
		b.logger.Warn("bus message event carries no message", "code", e.Code.String())
		return nil, false
	}
	return m, true
}
