// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ccheshirecat/msgbus/internal/msgbus"
	"github.com/ccheshirecat/msgbus/internal/msgbus/loop"
	"github.com/ccheshirecat/msgbus/internal/server/catalog"
	"github.com/ccheshirecat/msgbus/internal/server/session"
	"github.com/ccheshirecat/msgbus/internal/server/traffic"
)

// APIKeyHeader carries the API key on authenticated requests.
const APIKeyHeader = "X-Msgbus-API-Key"

// Options wires the router to the daemon's components.
type Options struct {
	Logger     *slog.Logger
	Loop       *loop.Loop
	Topics     catalog.TopicRepository
	Sessions   *session.Server
	Traffic    *traffic.Counter
	APIKey     string
	AllowCIDRs []string
}

type apiServer struct {
	logger   *slog.Logger
	loop     *loop.Loop
	topics   catalog.TopicRepository
	resolver catalog.Resolver
	sessions *session.Server
	traffic  *traffic.Counter
}

// New constructs the HTTP API router.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	api := &apiServer{
		logger:   logger,
		loop:     opts.Loop,
		topics:   opts.Topics,
		resolver: catalog.Resolver{Repo: opts.Topics},
		sessions: opts.Sessions,
		traffic:  opts.Traffic,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(opts.AllowCIDRs) > 0 {
		r.Use(ipFilterMiddleware(logger, opts.AllowCIDRs))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/openapi.json", serveOpenAPI)

	r.Group(func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/messages", api.sendMessage)
			r.Get("/stats", api.stats)

			r.Route("/topics", func(r chi.Router) {
				r.Get("/", api.listTopics)
				r.Post("/", api.createTopic)
				r.Get("/{id}", api.getTopic)
				r.Delete("/{id}", api.deleteTopic)
			})
		})

		if api.sessions != nil {
			r.Handle("/ws/v1/bus", api.sessions)
		}
	})

	return r
}

// SendRequest publishes a payload on a topic given by id or catalog name.
type SendRequest struct {
	Topic   *uint32         `json:"topic,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendResponse acknowledges an accepted message.
type SendResponse struct {
	Topic uint32 `json:"topic"`
}

func (api *apiServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var topic uint32
	switch {
	case req.Name != "":
		id, err := api.resolver.TopicID(r.Context(), req.Name)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				writeError(w, http.StatusNotFound, "unknown topic name "+strconv.Quote(req.Name))
				return
			}
			api.logger.Error("resolve topic", "name", req.Name, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		topic = id
	case req.Topic != nil:
		topic = *req.Topic
	default:
		writeError(w, http.StatusBadRequest, "topic or name required")
		return
	}
	if topic == catalog.ReservedID {
		writeError(w, http.StatusBadRequest, "topic id is reserved")
		return
	}

	payload := req.Payload
	if err := api.loop.Do(r.Context(), func(b *msgbus.Bus) { b.Send(msgbus.Topic(topic), payload) }); err != nil {
		api.writeLoopError(w, "send message", err)
		return
	}
	writeJSON(w, http.StatusAccepted, SendResponse{Topic: topic})
}

// Stats summarises the live bus.
type Stats struct {
	Subscriptions int              `json:"subscriptions"`
	Owners        int              `json:"owners"`
	MessageCode   uint32           `json:"message_code"`
	Traffic       traffic.Snapshot `json:"traffic"`
	Sessions      []session.Info   `json:"sessions"`
}

func (api *apiServer) stats(w http.ResponseWriter, r *http.Request) {
	var out Stats
	err := api.loop.Do(r.Context(), func(b *msgbus.Bus) {
		out.Subscriptions = b.Len()
		out.Owners = b.Owners()
		out.MessageCode = uint32(b.MessageCode())
		if api.traffic != nil {
			out.Traffic = api.traffic.Snapshot()
		}
	})
	if err != nil {
		api.writeLoopError(w, "collect stats", err)
		return
	}
	out.Sessions = []session.Info{}
	if api.sessions != nil {
		out.Sessions = api.sessions.Snapshot()
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *apiServer) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := api.topics.List(r.Context())
	if err != nil {
		api.logger.Error("list topics", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if topics == nil {
		topics = []catalog.Topic{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func (api *apiServer) createTopic(w http.ResponseWriter, r *http.Request) {
	var topic catalog.Topic
	if err := json.NewDecoder(r.Body).Decode(&topic); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := catalog.Validate(topic); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.topics.Upsert(r.Context(), topic); err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		api.logger.Error("upsert topic", "topic", topic.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stored, err := api.topics.Get(r.Context(), topic.ID)
	if err != nil {
		api.logger.Error("get topic", "topic", topic.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (api *apiServer) getTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := topicParam(w, r)
	if !ok {
		return
	}
	topic, err := api.topics.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		api.logger.Error("get topic", "topic", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (api *apiServer) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id, ok := topicParam(w, r)
	if !ok {
		return
	}
	if err := api.topics.Delete(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		api.logger.Error("delete topic", "topic", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func topicParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid topic id")
		return 0, false
	}
	return uint32(id), true
}

func (api *apiServer) writeLoopError(w http.ResponseWriter, op string, err error) {
	api.logger.Error(op, "error", err)
	status := http.StatusInternalServerError
	if errors.Is(err, loop.ErrClosed) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
