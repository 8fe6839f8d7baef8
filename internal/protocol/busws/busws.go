// Package busws defines the JSON frames exchanged over the bus websocket.
package busws

import "encoding/json"

// Client operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpSend        = "send"
)

// Server frame types.
const (
	TypeMessage = "message"
	TypeAck     = "ack"
	TypeError   = "error"
)

// AnyTopic is the wildcard topic id. Subscribing to it replaces the
// session's per-topic subscriptions, and later per-topic subscribes are
// acknowledged without adding a second delivery. It cannot be sent to.
const AnyTopic = ^uint32(0)

// Request is sent by a client.
type Request struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Topic   uint32          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is sent by the server.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op,omitempty"`
	Topic   uint32          `json:"topic"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Removed int             `json:"removed,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Message builds a delivery frame.
func Message(topic uint32, name string, payload json.RawMessage) Frame {
	return Frame{Type: TypeMessage, Topic: topic, Name: name, Payload: payload}
}

// Ack acknowledges req.
func Ack(req Request) Frame {
	return Frame{Type: TypeAck, ID: req.ID, Op: req.Op, Topic: req.Topic}
}

// Error reports a failed request.
func Error(req Request, err error) Frame {
	return Frame{Type: TypeError, ID: req.ID, Op: req.Op, Topic: req.Topic, Error: err.Error()}
}
