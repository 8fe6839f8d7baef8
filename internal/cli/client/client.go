package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ccheshirecat/msgbus/internal/protocol/busws"
	"github.com/ccheshirecat/msgbus/internal/server/catalog"
	"github.com/ccheshirecat/msgbus/internal/server/httpapi"
)

// DefaultBaseURL is where busd listens unless configured otherwise.
const DefaultBaseURL = "http://127.0.0.1:7780"

// Client wraps REST and websocket access to the busd API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Topic is a catalog entry.
type Topic = catalog.Topic

// Stats is the bus summary returned by busd.
type Stats = httpapi.Stats

// Frame is a server websocket frame.
type Frame = busws.Frame

// New creates a client with the provided base URL (e.g. http://127.0.0.1:7780).
func New(rawURL, apiKey string) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultBaseURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", parsed.Scheme)
	}
	return &Client{
		baseURL: parsed,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// SendByID publishes payload on topic.
func (c *Client) SendByID(ctx context.Context, topic uint32, payload json.RawMessage) error {
	return c.send(ctx, httpapi.SendRequest{Topic: &topic, Payload: payload})
}

// SendByName publishes payload on the topic registered under name.
func (c *Client) SendByName(ctx context.Context, name string, payload json.RawMessage) error {
	return c.send(ctx, httpapi.SendRequest{Name: name, Payload: payload})
}

func (c *Client) send(ctx context.Context, body httpapi.SendRequest) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/messages", body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := c.do(req, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) ListTopics(ctx context.Context) ([]Topic, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/topics", nil)
	if err != nil {
		return nil, err
	}
	var topics []Topic
	if err := c.do(req, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

func (c *Client) GetTopic(ctx context.Context, id uint32) (*Topic, error) {
	req, err := c.newRequest(ctx, http.MethodGet, topicPath(id), nil)
	if err != nil {
		return nil, err
	}
	var topic Topic
	if err := c.do(req, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

func (c *Client) CreateTopic(ctx context.Context, topic Topic) (*Topic, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/topics", topic)
	if err != nil {
		return nil, err
	}
	var created Topic
	if err := c.do(req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) DeleteTopic(ctx context.Context, id uint32) error {
	req, err := c.newRequest(ctx, http.MethodDelete, topicPath(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func topicPath(id uint32) string {
	return "/api/v1/topics/" + strconv.FormatUint(uint64(id), 10)
}

// Watch subscribes to topics over the websocket and invokes handler for each
// delivered message until ctx is cancelled or the server closes the
// connection. An empty topics list watches every topic.
func (c *Client) Watch(ctx context.Context, topics []uint32, handler func(Frame)) error {
	wsURL := c.websocketURL()
	header := http.Header{}
	if c.apiKey != "" {
		header.Set(httpapi.APIKeyHeader, c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("client: dial websocket: http %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("client: dial websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if len(topics) == 0 {
		topics = []uint32{busws.AnyTopic}
	}
	for i, topic := range topics {
		req := busws.Request{Op: busws.OpSubscribe, ID: strconv.Itoa(i), Topic: topic}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("client: subscribe %d: %w", topic, err)
		}
	}

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: read frame: %w", err)
		}
		switch frame.Type {
		case busws.TypeMessage:
			if handler != nil {
				handler(frame)
			}
		case busws.TypeError:
			return fmt.Errorf("client: %s topic %d: %s", frame.Op, frame.Topic, frame.Error)
		}
	}
}

func (c *Client) websocketURL() string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/v1/bus"
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	resolved := c.baseURL.ResolveReference(&url.URL{Path: path})
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(httpapi.APIKeyHeader, c.apiKey)
	}
	return req, nil
}

// APIError is a non-2xx response from busd.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: http %d", e.Status)
	}
	return fmt.Sprintf("client: http %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from busd.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			if msg, ok := body["error"].(string); ok {
				apiErr.Message = msg
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
