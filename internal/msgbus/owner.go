package msgbus

import (
	"reflect"

	"github.com/ccheshirecat/msgbus/internal/event"
)

// Owner is an externally managed object that subscriptions can be bound to.
// Owners are used as lookup keys: the dynamic value must be comparable, so
// pointers are the usual choice. Structs holding slices, maps or funcs, even
// behind interface fields, are rejected.
type Owner interface {
	// SendEvent delivers a labelled event to the owner.
	SendEvent(code event.Code, param any)
	// OnDelete registers fn to run when the owner is destroyed. It reports
	// false when the owner is already destroyed or being destroyed.
	OnDelete(fn func()) bool
}

// SubscribeOwner creates a subscription whose messages are forwarded to
// owner as events carrying MessageCode. The subscription is removed when
// owner is deleted. Only one delete hook is installed per owner no matter how
// many topics it subscribes to.
func (b *Bus) SubscribeOwner(topic Topic, owner Owner, userData any) (Handle, error) {
	if owner == nil {
		return Handle{}, ErrNilOwner
	}
	if !reflect.ValueOf(owner).Comparable() {
		return Handle{}, ErrOwnerNotComparable
	}

	h, err := b.insert(record{topic: topic, kind: kindOwner, owner: owner, userData: userData})
	if err != nil {
		return Handle{}, err
	}

	if _, hooked := b.owners[owner]; !hooked {
		if !owner.OnDelete(func() { b.sweep(owner) }) {
			_ = b.reg.remove(h)
			b.logger.Debug("subscribe rejected", "topic", uint32(topic), "error", ErrOwnerDeleted)
			return Handle{}, ErrOwnerDeleted
		}
		b.owners[owner] = struct{}{}
	}
	return h, nil
}

// UnsubscribeOwner removes owner-bound subscriptions that match topic and
// owner and returns how many were removed. A subscription matches topic when
// its own topic equals it, when it was made for TopicAny, or when topic is
// TopicAny. A nil owner matches every owner.
func (b *Bus) UnsubscribeOwner(topic Topic, owner Owner) int {
	removed := 0
	b.reg.walk(func(h Handle, rec record) {
		if rec.kind != kindOwner {
			return
		}
		if topic != TopicAny && rec.topic != TopicAny && rec.topic != topic {
			return
		}
		if owner != nil && rec.owner != owner {
			return
		}
		if err := b.reg.remove(h); err == nil {
			removed++
		}
	})
	if removed > 0 {
		b.logger.Debug("owner subscriptions removed", "topic", uint32(topic), "count", removed)
	}
	return removed
}

// Owners returns the number of owners with an installed delete hook.
func (b *Bus) Owners() int { return len(b.owners) }

// sweep runs when owner is deleted and drops every subscription bound to it.
func (b *Bus) sweep(owner Owner) {
	removed := 0
	b.reg.walk(func(h Handle, rec record) {
		if rec.kind != kindOwner || rec.owner != owner {
			return
		}
		if err := b.reg.remove(h); err == nil {
			removed++
		}
	})
	delete(b.owners, owner)
	b.logger.Debug("owner deleted", "count", removed)
}

func (b *Bus) forward(m *Message) {
	m.owner.SendEvent(b.code, m)
}
