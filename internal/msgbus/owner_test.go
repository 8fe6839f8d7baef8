package msgbus

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccheshirecat/msgbus/internal/event"
	"github.com/ccheshirecat/msgbus/internal/object"
)

type forwarded struct {
	code     event.Code
	topic    Topic
	payload  any
	userData any
	owner    Owner
}

// fakeOwner records forwarded events and lets tests fire its delete hooks.
type fakeOwner struct {
	name     string
	received []forwarded
	hooks    []func()
	deleted  bool
}

func (o *fakeOwner) SendEvent(code event.Code, param any) {
	f := forwarded{code: code}
	if m, ok := param.(*Message); ok {
		f.topic, f.payload, f.userData, f.owner = m.Topic(), m.Payload(), m.UserData(), m.Owner()
	}
	o.received = append(o.received, f)
}

func (o *fakeOwner) OnDelete(fn func()) bool {
	if o.deleted {
		return false
	}
	o.hooks = append(o.hooks, fn)
	return true
}

func (o *fakeOwner) destroy() {
	o.deleted = true
	for _, fn := range o.hooks {
		fn()
	}
}

type sliceOwner []int

func (sliceOwner) SendEvent(event.Code, any) {}
func (sliceOwner) OnDelete(func()) bool      { return true }

type boxedOwner struct{ tag any }

func (boxedOwner) SendEvent(event.Code, any) {}
func (boxedOwner) OnDelete(func()) bool      { return true }

func mustSubscribeOwner(t *testing.T, b *Bus, topic Topic, owner Owner, userData any) Handle {
	t.Helper()
	h, err := b.SubscribeOwner(topic, owner, userData)
	require.NoError(t, err)
	require.True(t, h.Valid())
	return h
}

func TestOwnerSubscriptionForwardsMessage(t *testing.T) {
	b := New(nil)
	owner := &fakeOwner{name: "o"}
	mustSubscribeOwner(t, b, 7, owner, "D")

	b.Send(7, "P")

	require.Len(t, owner.received, 1)
	got := owner.received[0]
	assert.Equal(t, b.MessageCode(), got.code)
	assert.Equal(t, Topic(7), got.topic)
	assert.Equal(t, "P", got.payload)
	assert.Equal(t, "D", got.userData)
	assert.Same(t, owner, got.owner)
}

func TestOwnerHookInstalledOnce(t *testing.T) {
	b := New(nil)
	owner := &fakeOwner{}
	mustSubscribeOwner(t, b, 1, owner, nil)
	mustSubscribeOwner(t, b, 2, owner, nil)
	mustSubscribeOwner(t, b, TopicAny, owner, nil)

	assert.Len(t, owner.hooks, 1)
	assert.Equal(t, 1, b.Owners())
	assert.Equal(t, 3, b.Len())
}

func TestOwnerDestroyedBeforeSend(t *testing.T) {
	b := New(nil)
	owner := &fakeOwner{}
	mustSubscribeOwner(t, b, 7, owner, "D")

	owner.destroy()
	b.Send(7, "P")

	assert.Empty(t, owner.received)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Owners())
}

func TestOwnerSweepRemovesOnlyThatOwner(t *testing.T) {
	b := New(nil)
	rec := &recorder{}
	doomed := &fakeOwner{name: "doomed"}
	survivor := &fakeOwner{name: "survivor"}

	mustSubscribeOwner(t, b, 1, doomed, nil)
	mustSubscribe(t, b, 1, rec.handler("plain"), nil)
	mustSubscribeOwner(t, b, 2, doomed, nil)
	mustSubscribeOwner(t, b, 1, survivor, nil)
	mustSubscribeOwner(t, b, TopicAny, doomed, nil)
	require.Equal(t, 5, b.Len())

	doomed.destroy()
	assert.Equal(t, 2, b.Len())

	doomed.destroy()
	assert.Equal(t, 2, b.Len())

	b.Send(1, nil)
	assert.Empty(t, doomed.received)
	assert.Len(t, survivor.received, 1)
	assert.Equal(t, []string{"plain"}, rec.names())
}

func TestOwnerDestroyedDuringDispatch(t *testing.T) {
	b := New(nil)
	rec := &recorder{}
	owner := &fakeOwner{}
	mustSubscribe(t, b, 1, HandlerFunc(func(h Handle, m *Message) {
		rec.handler("killer")(h, m)
		owner.destroy()
	}), nil)
	mustSubscribeOwner(t, b, 1, owner, nil)
	mustSubscribeOwner(t, b, 1, owner, nil)
	mustSubscribe(t, b, 1, rec.handler("tail"), nil)

	b.Send(1, nil)

	assert.Empty(t, owner.received)
	assert.Equal(t, []string{"killer", "tail"}, rec.names())
}

func TestUnsubscribeOwnerAnyOwner(t *testing.T) {
	b := New(nil)
	o1 := &fakeOwner{name: "o1"}
	o2 := &fakeOwner{name: "o2"}
	mustSubscribeOwner(t, b, 3, o1, nil)
	mustSubscribeOwner(t, b, 4, o1, nil)
	mustSubscribeOwner(t, b, 3, o2, nil)

	assert.Equal(t, 2, b.UnsubscribeOwner(3, nil))
	assert.Equal(t, 1, b.Len())

	b.Send(4, nil)
	b.Send(3, nil)
	assert.Len(t, o1.received, 1)
	assert.Equal(t, Topic(4), o1.received[0].topic)
	assert.Empty(t, o2.received)
}

func TestUnsubscribeOwnerSpecificOwner(t *testing.T) {
	b := New(nil)
	o1 := &fakeOwner{}
	o2 := &fakeOwner{}
	mustSubscribeOwner(t, b, 3, o1, nil)
	mustSubscribeOwner(t, b, 3, o2, nil)

	assert.Equal(t, 1, b.UnsubscribeOwner(3, o2))

	b.Send(3, nil)
	assert.Len(t, o1.received, 1)
	assert.Empty(t, o2.received)
}

func TestUnsubscribeOwnerNoMatch(t *testing.T) {
	b := New(nil)
	o1 := &fakeOwner{}
	stranger := &fakeOwner{}
	mustSubscribeOwner(t, b, 3, o1, nil)
	mustSubscribe(t, b, 9, HandlerFunc(func(Handle, *Message) {}), nil)

	assert.Zero(t, b.UnsubscribeOwner(9, nil))
	assert.Zero(t, b.UnsubscribeOwner(3, stranger))
	assert.Zero(t, b.UnsubscribeOwner(5, o1))
	assert.Equal(t, 2, b.Len())
}

func TestUnsubscribeOwnerWildcards(t *testing.T) {
	b := New(nil)
	o := &fakeOwner{}
	mustSubscribeOwner(t, b, TopicAny, o, nil)
	mustSubscribeOwner(t, b, 8, o, nil)
	mustSubscribeOwner(t, b, 9, o, nil)

	assert.Equal(t, 2, b.UnsubscribeOwner(8, o), "topic match plus wildcard record")
	assert.Equal(t, 1, b.UnsubscribeOwner(TopicAny, nil))
	assert.Zero(t, b.Len())
}

func TestSubscribeOwnerValidation(t *testing.T) {
	b := New(nil)

	_, err := b.SubscribeOwner(1, nil, nil)
	assert.ErrorIs(t, err, ErrNilOwner)

	_, err = b.SubscribeOwner(1, sliceOwner{1}, nil)
	assert.ErrorIs(t, err, ErrOwnerNotComparable)

	_, err = b.SubscribeOwner(1, boxedOwner{tag: []int{1}}, nil)
	assert.ErrorIs(t, err, ErrOwnerNotComparable)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Owners())

	mustSubscribeOwner(t, b, 1, boxedOwner{tag: "label"}, nil)
	assert.Equal(t, 1, b.Owners())
}

func TestSubscribeDeletedOwnerRejected(t *testing.T) {
	b := New(nil)
	owner := &fakeOwner{}
	owner.destroy()

	h, err := b.SubscribeOwner(1, owner, nil)
	assert.ErrorIs(t, err, ErrOwnerDeleted)
	assert.False(t, h.Valid())
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Owners())
}

func TestSubscribeDeletedObjectRejected(t *testing.T) {
	b := New(nil)
	obj := object.New(nil, "gone")
	obj.Delete()

	_, err := b.SubscribeOwner(1, obj, nil)
	assert.ErrorIs(t, err, ErrOwnerDeleted)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Owners())

	obj.Delete()
	assert.Zero(t, b.Len())
}

func TestSubscribeObjectWhileDeleting(t *testing.T) {
	b := New(nil)
	hooked := object.New(nil, "hooked")
	fresh := object.New(nil, "fresh")

	var hookedErr, freshErr error
	hooked.AddEventCallback(func(*event.Event) {
		_, hookedErr = b.SubscribeOwner(2, hooked, nil)
	}, event.CodeDelete, nil)
	mustSubscribeOwner(t, b, 1, hooked, nil)
	fresh.AddEventCallback(func(*event.Event) {
		_, freshErr = b.SubscribeOwner(2, fresh, nil)
	}, event.CodeDelete, nil)

	hooked.Delete()
	fresh.Delete()

	assert.NoError(t, hookedErr, "the pending sweep still covers it")
	assert.ErrorIs(t, freshErr, ErrOwnerDeleted)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Owners())
}

func TestSubscribeOwnerCapacity(t *testing.T) {
	b := New(nil, WithCapacity(1))
	o := &fakeOwner{}
	mustSubscribeOwner(t, b, 1, o, nil)

	_, err := b.SubscribeOwner(2, &fakeOwner{}, nil)
	assert.ErrorIs(t, err, ErrRegistryFull)
	assert.Equal(t, 1, b.Owners())
}

func TestMessageFromEvent(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	codes := event.NewRegistry()
	b := New(codes, WithLogger(logger))

	msg := &Message{topic: 2, payload: "p"}
	got, ok := b.MessageFromEvent(&event.Event{Code: b.MessageCode(), Param: msg})
	require.True(t, ok)
	assert.Same(t, msg, got)
	assert.Empty(t, logs.String())

	got, ok = b.MessageFromEvent(&event.Event{Code: event.CodeDelete, Param: msg})
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Contains(t, logs.String(), "level=WARN")

	_, ok = b.MessageFromEvent(nil)
	assert.False(t, ok)

	_, ok = b.MessageFromEvent(&event.Event{Code: b.MessageCode(), Param: "not a message"})
	assert.False(t, ok)
}

func TestBusesReserveDistinctCodes(t *testing.T) {
	codes := event.NewRegistry()
	a := New(codes)
	b := New(codes)

	assert.NotEqual(t, a.MessageCode(), b.MessageCode())
	assert.GreaterOrEqual(t, a.MessageCode(), event.CodeLast)
}

func TestObjectOwnerEndToEnd(t *testing.T) {
	codes := event.NewRegistry()
	b := New(codes)
	screen := object.New(nil, "screen")
	label := object.New(screen, "label")

	var texts []string
	label.AddEventCallback(func(e *event.Event) {
		m, ok := b.MessageFromEvent(e)
		require.True(t, ok)
		assert.Same(t, label, m.Owner())
		texts = append(texts, m.Payload().(string)+"/"+m.UserData().(string))
	}, b.MessageCode(), nil)

	mustSubscribeOwner(t, b, 10, label, "temp")
	mustSubscribeOwner(t, b, 11, label, "humidity")
	mustSubscribeOwner(t, b, 10, screen, "screen")

	b.Send(10, "21C")
	b.Send(11, "40%")
	assert.Equal(t, []string{"21C/temp", "40%/humidity"}, texts)
	assert.Equal(t, 2, b.Owners())

	screen.Delete()

	assert.Zero(t, b.Len())
	assert.Zero(t, b.Owners())
	b.Send(10, "22C")
	assert.Len(t, texts, 2)
}
