// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

// Package session exposes the bus to websocket clients. Each connection is
// backed by an object.Object that owns the connection's subscriptions, so
// closing the socket deletes the object and the bus drops them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ccheshirecat/msgbus/internal/event"
	"github.com/ccheshirecat/msgbus/internal/msgbus"
	"github.com/ccheshirecat/msgbus/internal/msgbus/loop"
	"github.com/ccheshirecat/msgbus/internal/object"
	"github.com/ccheshirecat/msgbus/internal/protocol/busws"
)

const (
	outboxSize   = 256
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 1 << 20
)

var (
	errUnknownOp    = errors.New("unknown op")
	errWildcardSend = errors.New("topic id is reserved")
)

// Names resolves topic ids to display names.
type Names interface {
	TopicName(ctx context.Context, id uint32) (string, bool)
}

// Server upgrades HTTP requests to bus sessions.
type Server struct {
	loop     *loop.Loop
	names    Names
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer returns a websocket handler serving l. names may be nil.
func NewServer(l *loop.Loop, names Names, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		loop:   l,
		names:  names,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*Session),
	}
}

// Active returns the number of connected sessions.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CloseAll disconnects every session.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
}

// Info describes a connected session.
type Info struct {
	ID      string `json:"id"`
	Dropped uint64 `json:"dropped"`
}

// Snapshot lists connected sessions sorted by id.
func (s *Server) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, Info{ID: id, Dropped: sess.dropped.Load()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Session is one websocket client.
type Session struct {
	id     string
	conn   *websocket.Conn
	server *Server
	logger *slog.Logger

	// owned by the loop goroutine
	obj    *object.Object
	topics map[msgbus.Topic]msgbus.Handle

	outbox     chan busws.Frame
	done       chan struct{}
	writerDone chan struct{}
	dropped    atomic.Uint64
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	id := uuid.NewString()
	sess := &Session{
		id:         id,
		conn:       conn,
		server:     s,
		logger:     s.logger.With("session", id),
		topics:     make(map[msgbus.Topic]msgbus.Handle),
		outbox:     make(chan busws.Frame, outboxSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	ctx := r.Context()
	if err := s.loop.Do(ctx, sess.attach); err != nil {
		s.logger.Error("attach session", "error", err)
		_ = conn.Close()
		return
	}

	s.track(sess, true)
	defer s.track(sess, false)
	sess.logger.Info("session opened", "remote", r.RemoteAddr)

	go func() {
		defer close(sess.writerDone)
		sess.writeLoop(ctx)
	}()

	err = sess.readLoop(ctx)
	close(sess.done)
	<-sess.writerDone

	detachCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if derr := s.loop.Do(detachCtx, sess.detach); derr != nil && !errors.Is(derr, loop.ErrClosed) {
		sess.logger.Warn("detach session", "error", derr)
	}
	_ = conn.Close()

	attrs := []any{"dropped", sess.dropped.Load()}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		attrs = append(attrs, "error", err)
	}
	sess.logger.Info("session closed", attrs...)
}

func (s *Server) track(sess *Session, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.sessions[sess.id] = sess
	} else {
		delete(s.sessions, sess.id)
	}
}

func (s *Session) attach(b *msgbus.Bus) {
	s.obj = object.New(nil, "ws-"+s.id)
	s.obj.AddEventCallback(func(e *event.Event) {
		s.deliver(b, e)
	}, b.MessageCode(), nil)
}

func (s *Session) detach(*msgbus.Bus) {
	if s.obj != nil {
		s.obj.Delete()
	}
}

// deliver runs on the loop goroutine and must not block.
func (s *Session) deliver(b *msgbus.Bus, e *event.Event) {
	m, ok := b.MessageFromEvent(e)
	if !ok {
		return
	}
	payload, err := encodePayload(m.Payload())
	if err != nil {
		s.logger.Warn("drop unencodable payload", "topic", uint32(m.Topic()), "error", err)
		return
	}
	select {
	case s.outbox <- busws.Message(uint32(m.Topic()), "", payload):
	case <-s.done:
	default:
		s.dropped.Add(1)
	}
}

func encodePayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if json.Valid(p) {
			return p, nil
		}
	}
	return json.Marshal(v)
}

func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var req busws.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(busws.Error(req, fmt.Errorf("decode request: %w", err)))
			continue
		}
		s.reply(s.handle(ctx, req))
	}
}

func (s *Session) handle(ctx context.Context, req busws.Request) busws.Frame {
	topic := msgbus.Topic(req.Topic)
	var (
		opErr   error
		removed int
	)

	var fn func(*msgbus.Bus)
	switch req.Op {
	case busws.OpSubscribe:
		fn = func(b *msgbus.Bus) {
			if _, ok := s.topics[topic]; ok {
				return
			}
			if _, ok := s.topics[msgbus.TopicAny]; ok {
				return
			}
			h, err := b.SubscribeOwner(topic, s.obj, nil)
			if err != nil {
				opErr = err
				return
			}
			if topic == msgbus.TopicAny {
				// The wildcard record covers every topic.
				for t, old := range s.topics {
					_ = b.Unsubscribe(old)
					delete(s.topics, t)
				}
			}
			s.topics[topic] = h
		}
	case busws.OpUnsubscribe:
		fn = func(b *msgbus.Bus) {
			removed = b.UnsubscribeOwner(topic, s.obj)
			if topic == msgbus.TopicAny {
				clear(s.topics)
				return
			}
			delete(s.topics, topic)
			delete(s.topics, msgbus.TopicAny)
		}
	case busws.OpSend:
		if req.Topic == busws.AnyTopic {
			return busws.Error(req, errWildcardSend)
		}
		payload := req.Payload
		fn = func(b *msgbus.Bus) { b.Send(topic, payload) }
	default:
		return busws.Error(req, fmt.Errorf("%w %q", errUnknownOp, req.Op))
	}

	if err := s.server.loop.Do(ctx, fn); err != nil {
		return busws.Error(req, err)
	}
	if opErr != nil {
		return busws.Error(req, opErr)
	}
	ack := busws.Ack(req)
	ack.Removed = removed
	return ack
}

func (s *Session) reply(f busws.Frame) {
	select {
	case s.outbox <- f:
	case <-s.done:
	case <-s.writerDone:
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.logger.Debug("ping failed", "error", err)
				return
			}
		case f := <-s.outbox:
			if f.Type == busws.TypeMessage && s.server.names != nil {
				f.Name, _ = s.server.names.TopicName(ctx, f.Topic)
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(f); err != nil {
				s.logger.Debug("write failed", "error", err)
				_ = s.conn.Close()
				return
			}
		}
	}
}
