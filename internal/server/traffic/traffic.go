// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

// Package traffic counts messages crossing the bus.
package traffic

import (
	"sort"
	"time"

	"github.com/ccheshirecat/msgbus/internal/msgbus"
)

// Counter tallies sends per topic through a wildcard subscription. All
// methods must run on the goroutine that owns the bus.
type Counter struct {
	handle   msgbus.Handle
	total    uint64
	perTopic map[msgbus.Topic]uint64
	last     time.Time
	now      func() time.Time
}

// NewCounter returns a detached counter.
func NewCounter() *Counter {
	return &Counter{perTopic: make(map[msgbus.Topic]uint64), now: time.Now}
}

// Attach subscribes the counter to every topic on b.
func (c *Counter) Attach(b *msgbus.Bus) error {
	h, err := b.Subscribe(msgbus.TopicAny, c, nil)
	if err != nil {
		return err
	}
	c.handle = h
	return nil
}

// Detach removes the counter's subscription.
func (c *Counter) Detach(b *msgbus.Bus) error {
	if !c.handle.Valid() {
		return nil
	}
	err := b.Unsubscribe(c.handle)
	c.handle = msgbus.Handle{}
	return err
}

// HandleMessage implements msgbus.Handler.
func (c *Counter) HandleMessage(_ msgbus.Handle, m *msgbus.Message) {
	c.total++
	c.perTopic[m.Topic()]++
	c.last = c.now()
}

// TopicCount is the number of sends seen on one topic.
type TopicCount struct {
	Topic uint32 `json:"topic"`
	Count uint64 `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total  uint64       `json:"total"`
	Last   *time.Time   `json:"last,omitempty"`
	Topics []TopicCount `json:"topics"`
}

// Snapshot copies the current counters, ordered by topic.
func (c *Counter) Snapshot() Snapshot {
	s := Snapshot{Total: c.total, Topics: make([]TopicCount, 0, len(c.perTopic))}
	if !c.last.IsZero() {
		last := c.last
		s.Last = &last
	}
	for topic, n := range c.perTopic {
		s.Topics = append(s.Topics, TopicCount{Topic: uint32(topic), Count: n})
	}
	sort.Slice(s.Topics, func(i, j int) bool { return s.Topics[i].Topic < s.Topics[j].Topic })
	return s
}
