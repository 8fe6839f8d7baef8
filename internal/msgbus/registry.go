package msgbus

import (
	"fmt"
	"math"
)

// Handle identifies a subscription. The zero Handle is never returned for a
// successful subscribe call.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was returned by a successful subscribe call. It
// does not report whether the subscription is still live.
func (h Handle) Valid() bool { return h.gen != 0 }

func (h Handle) String() string {
	if !h.Valid() {
		return "sub(invalid)"
	}
	return fmt.Sprintf("sub(%d#%d)", h.index, h.gen)
}

type recordKind uint8

const (
	kindPlain recordKind = iota + 1
	kindOwner
)

// record is a single subscription. Plain records carry a handler, owner-bound
// records carry the owner their messages are forwarded to.
type record struct {
	topic    Topic
	kind     recordKind
	handler  Handler
	owner    Owner
	userData any
	seq      uint64
}

const none = int32(-1)

type slot struct {
	rec  record
	gen  uint32
	live bool
	prev int32
	next int32
}

// cursor is the state of one walk. remove moves a cursor past a slot that
// is about to be released so nested walks never land on a dead slot.
type cursor struct {
	next   int32
	maxSeq uint64
}

// registry stores records in a slot arena linked in insertion order.
type registry struct {
	slots   []slot
	free    []int32
	head    int32
	tail    int32
	live    int
	limit   int
	seq     uint64
	cursors []*cursor
}

func newRegistry(limit int) registry {
	return registry{head: none, tail: none, limit: limit}
}

func (r *registry) len() int { return r.live }

func (r *registry) insert(rec record) (Handle, error) {
	if r.limit > 0 && r.live >= r.limit {
		return Handle{}, ErrRegistryFull
	}

	var idx int32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if len(r.slots) >= math.MaxInt32 {
			return Handle{}, ErrRegistryFull
		}
		r.slots = append(r.slots, slot{})
		idx = int32(len(r.slots) - 1)
	}

	r.seq++
	rec.seq = r.seq

	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.rec = rec
	s.live = true
	s.prev = r.tail
	s.next = none

	if r.tail != none {
		r.slots[r.tail].next = idx
	} else {
		r.head = idx
	}
	r.tail = idx
	r.live++

	return Handle{index: uint32(idx), gen: s.gen}, nil
}

func (r *registry) lookup(h Handle) (int32, bool) {
	if !h.Valid() || h.index >= uint32(len(r.slots)) {
		return none, false
	}
	idx := int32(h.index)
	s := &r.slots[idx]
	if !s.live || s.gen != h.gen {
		return none, false
	}
	return idx, true
}

func (r *registry) get(h Handle) (record, bool) {
	idx, ok := r.lookup(h)
	if !ok {
		return record{}, false
	}
	return r.slots[idx].rec, true
}

func (r *registry) remove(h Handle) error {
	idx, ok := r.lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	s := &r.slots[idx]

	for _, c := range r.cursors {
		if c.next == idx {
			c.next = s.next
		}
	}

	if s.prev != none {
		r.slots[s.prev].next = s.next
	} else {
		r.head = s.next
	}
	if s.next != none {
		r.slots[s.next].prev = s.prev
	} else {
		r.tail = s.prev
	}

	s.rec = record{}
	s.live = false
	s.prev, s.next = none, none
	r.free = append(r.free, idx)
	r.live--
	return nil
}

// walk calls fn for every record that was live when the walk started and is
// still live when the walk reaches it. fn receives a copy of the record and
// may insert or remove records, including the current one.
func (r *registry) walk(fn func(h Handle, rec record)) {
	c := &cursor{next: r.head, maxSeq: r.seq}
	r.cursors = append(r.cursors, c)
	defer r.release(c)

	for c.next != none {
		idx := c.next
		s := r.slots[idx]
		c.next = s.next
		if s.rec.seq > c.maxSeq {
			// Appended after the walk started; everything behind it is newer.
			return
		}
		fn(Handle{index: uint32(idx), gen: s.gen}, s.rec)
	}
}

func (r *registry) release(c *cursor) {
	for i := len(r.cursors) - 1; i >= 0; i-- {
		if r.cursors[i] == c {
			r.cursors = append(r.cursors[:i], r.cursors[i+1:]...)
			return
		}
	}
}

// reset drops every record and stops any walk in progress.
func (r *registry) reset() {
	for _, c := range r.cursors {
		c.next = none
	}
	for i := range r.slots {
		r.slots[i].rec = record{}
		r.slots[i].live = false
	}
	r.free = r.free[:0]
	for i := len(r.slots) - 1; i >= 0; i-- {
		r.free = append(r.free, int32(i))
	}
	r.head, r.tail = none, none
	r.live = 0
}
