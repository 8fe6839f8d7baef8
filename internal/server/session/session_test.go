package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccheshirecat/msgbus/internal/msgbus"
	"github.com/ccheshirecat/msgbus/internal/msgbus/loop"
	"github.com/ccheshirecat/msgbus/internal/protocol/busws"
)

type staticNames map[uint32]string

func (n staticNames) TopicName(_ context.Context, id uint32) (string, bool) {
	name, ok := n[id]
	return name, ok
}

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(msgbus.New(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	u := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, req busws.Request) busws.Frame {
	t.Helper()
	require.NoError(t, ws.WriteJSON(req))
	return readFrame(t, ws)
}

func readFrame(t *testing.T, ws *websocket.Conn) busws.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f busws.Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func busLen(t *testing.T, l *loop.Loop) int {
	t.Helper()
	n := -1
	require.NoError(t, l.Do(context.Background(), func(b *msgbus.Bus) { n = b.Len() }))
	return n
}

func TestSubscribeAndReceive(t *testing.T) {
	l := startLoop(t)
	srv := NewServer(l, staticNames{7: "sensors.temperature"}, nil)
	ws := dial(t, srv)

	ack := roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, ID: "1", Topic: 7})
	assert.Equal(t, busws.TypeAck, ack.Type)
	assert.Equal(t, "1", ack.ID)

	require.NoError(t, l.Do(context.Background(), func(b *msgbus.Bus) {
		b.Send(7, json.RawMessage(`{"c":21}`))
		b.Send(8, json.RawMessage(`{"c":0}`))
	}))

	msg := readFrame(t, ws)
	assert.Equal(t, busws.TypeMessage, msg.Type)
	assert.Equal(t, uint32(7), msg.Topic)
	assert.Equal(t, "sensors.temperature", msg.Name)
	assert.JSONEq(t, `{"c":21}`, string(msg.Payload))
}

func TestDuplicateSubscribeKeepsOneRecord(t *testing.T) {
	l := startLoop(t)
	ws := dial(t, NewServer(l, nil, nil))

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 3})
	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 3})
	assert.Equal(t, 1, busLen(t, l))
}

func TestSendEchoesToOwnSubscription(t *testing.T) {
	l := startLoop(t)
	ws := dial(t, NewServer(l, nil, nil))

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: busws.AnyTopic})
	require.NoError(t, ws.WriteJSON(busws.Request{Op: busws.OpSend, ID: "s", Topic: 4, Payload: json.RawMessage(`"hi"`)}))

	// delivery is queued during Send, before the ack
	msg := readFrame(t, ws)
	assert.Equal(t, busws.TypeMessage, msg.Type)
	assert.Equal(t, uint32(4), msg.Topic)
	assert.JSONEq(t, `"hi"`, string(msg.Payload))

	ack := readFrame(t, ws)
	assert.Equal(t, busws.TypeAck, ack.Type)
	assert.Equal(t, "s", ack.ID)
}

func TestUnsubscribeReportsRemoved(t *testing.T) {
	l := startLoop(t)
	ws := dial(t, NewServer(l, nil, nil))

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 1})
	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 2})

	ack := roundTrip(t, ws, busws.Request{Op: busws.OpUnsubscribe, Topic: 1})
	assert.Equal(t, busws.TypeAck, ack.Type)
	assert.Equal(t, 1, ack.Removed)
	assert.Equal(t, 1, busLen(t, l))

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 1})
	assert.Equal(t, 2, busLen(t, l))
}

func TestUnknownOpAndBadJSON(t *testing.T) {
	l := startLoop(t)
	ws := dial(t, NewServer(l, nil, nil))

	f := roundTrip(t, ws, busws.Request{Op: "explode", ID: "x"})
	assert.Equal(t, busws.TypeError, f.Type)
	assert.Contains(t, f.Error, "unknown op")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"op":`)))
	f = readFrame(t, ws)
	assert.Equal(t, busws.TypeError, f.Type)

	ack := roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 1})
	assert.Equal(t, busws.TypeAck, ack.Type)
}

func TestCloseSweepsSubscriptions(t *testing.T) {
	l := startLoop(t)
	srv := NewServer(l, nil, nil)
	ws := dial(t, srv)

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 1})
	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: busws.AnyTopic})
	require.Equal(t, 2, busLen(t, l))
	require.Equal(t, 1, srv.Active())
	require.Len(t, srv.Snapshot(), 1)

	require.NoError(t, ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	_ = ws.Close()

	require.Eventually(t, func() bool {
		n := -1
		_ = l.Do(context.Background(), func(b *msgbus.Bus) { n = b.Len() })
		return n == 0 && srv.Active() == 0
	}, 5*time.Second, 20*time.Millisecond)

	owners := -1
	require.NoError(t, l.Do(context.Background(), func(b *msgbus.Bus) { owners = b.Owners() }))
	assert.Zero(t, owners)
}

func TestEncodePayload(t *testing.T) {
	raw, err := encodePayload(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	raw, err = encodePayload([]byte(`[1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(raw))

	raw, err = encodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	_, err = encodePayload(make(chan int))
	assert.Error(t, err)
}

func TestCloseAllDisconnects(t *testing.T) {
	l := startLoop(t)
	srv := NewServer(l, nil, nil)
	ws := dial(t, srv)
	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 1})

	srv.CloseAll()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return srv.Active() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestWildcardSubscribeDeliversOnce(t *testing.T) {
	l := startLoop(t)
	ws := dial(t, NewServer(l, nil, nil))

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 5})
	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 6})
	ack := roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: busws.AnyTopic})
	assert.Equal(t, busws.TypeAck, ack.Type)
	assert.Equal(t, 1, busLen(t, l))

	ack = roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: 5})
	assert.Equal(t, busws.TypeAck, ack.Type)
	assert.Equal(t, 1, busLen(t, l))

	require.NoError(t, l.Do(context.Background(), func(b *msgbus.Bus) {
		b.Send(5, json.RawMessage(`1`))
		b.Send(7, json.RawMessage(`2`))
	}))
	first := readFrame(t, ws)
	second := readFrame(t, ws)
	assert.Equal(t, uint32(5), first.Topic)
	assert.Equal(t, uint32(7), second.Topic, "topic 5 must not be delivered twice")
}

func TestSendToWildcardRejected(t *testing.T) {
	l := startLoop(t)
	ws := dial(t, NewServer(l, nil, nil))

	roundTrip(t, ws, busws.Request{Op: busws.OpSubscribe, Topic: busws.AnyTopic})
	f := roundTrip(t, ws, busws.Request{Op: busws.OpSend, ID: "x", Topic: busws.AnyTopic, Payload: json.RawMessage(`1`)})
	assert.Equal(t, busws.TypeError, f.Type)
	assert.Equal(t, "x", f.ID)
	assert.Contains(t, f.Error, "reserved")
}
