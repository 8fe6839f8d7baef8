package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openapi3 "github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/ccheshirecat/msgbus/internal/server/catalog"
)

// serveOpenAPI returns an OpenAPI v3 JSON document generated from server types.
func serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	baseURL := ""
	if r != nil && r.Host != "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	spec, err := BuildOpenAPISpec(baseURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build openapi: %v", err))
		return
	}
	data, err := json.Marshal(spec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to marshal openapi: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// BuildOpenAPISpec constructs the OpenAPI spec. If baseURL is non-empty, it will be set as the server URL.
func BuildOpenAPISpec(baseURL string) (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "msgbus REST API",
			Version:     "v1",
			Description: "Publish messages and manage the topic catalog of a busd instance.",
		},
		Servers:    openapi3.Servers{},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}
	if baseURL != "" {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: baseURL})
	}

	gen := openapi3gen.NewGenerator(
		openapi3gen.CreateComponentSchemas(openapi3gen.ExportComponentSchemasOptions{
			ExportComponentSchemas: true,
			ExportTopLevelSchema:   false,
			ExportGenerics:         true,
		}),
	)

	topicRef, err := gen.NewSchemaRefForValue(&catalog.Topic{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("topic schema: %w", err)
	}
	sendReqRef, err := gen.NewSchemaRefForValue(&SendRequest{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("send request schema: %w", err)
	}
	sendRespRef, err := gen.NewSchemaRefForValue(&SendResponse{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("send response schema: %w", err)
	}
	statsRef, err := gen.NewSchemaRefForValue(&Stats{}, spec.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("stats schema: %w", err)
	}

	errorSchema := openapi3.NewSchemaRef("", &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{
			"error": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	})
	spec.Components.Schemas["Error"] = errorSchema

	respond := func(op *openapi3.Operation, status, desc string, schema *openapi3.SchemaRef) {
		resp := openapi3.NewResponse().WithDescription(desc)
		if schema != nil {
			resp.Content = openapi3.NewContentWithJSONSchemaRef(schema)
		}
		op.Responses.Set(status, &openapi3.ResponseRef{Value: resp})
	}
	newOp := func(id, summary, tag string) *openapi3.Operation {
		op := openapi3.NewOperation()
		op.OperationID = id
		op.Summary = summary
		op.Tags = []string{tag}
		op.Responses = openapi3.NewResponses()
		return op
	}

	health := newOp("getHealth", "Health check", "health")
	respond(health, "200", "Service is healthy", openapi3.NewSchemaRef("", &openapi3.Schema{
		Type:       &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{"status": openapi3.NewSchemaRef("", openapi3.NewStringSchema())},
	}))
	spec.AddOperation("/healthz", http.MethodGet, health)

	send := newOp("sendMessage", "Publish a message", "messages")
	send.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(sendReqRef)}}
	respond(send, "202", "Message dispatched", sendRespRef)
	respond(send, "400", "Bad request", errorSchema)
	respond(send, "404", "Unknown topic name", errorSchema)
	respond(send, "503", "Bus stopped", errorSchema)
	spec.AddOperation("/api/v1/messages", http.MethodPost, send)

	stats := newOp("getStats", "Bus statistics", "status")
	respond(stats, "200", "Subscription, owner and traffic counters", statsRef)
	respond(stats, "503", "Bus stopped", errorSchema)
	spec.AddOperation("/api/v1/stats", http.MethodGet, stats)

	list := newOp("listTopics", "List topics", "topics")
	respond(list, "200", "Array of topics", openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: topicRef}))
	respond(list, "500", "Internal error", errorSchema)
	spec.AddOperation("/api/v1/topics", http.MethodGet, list)

	create := newOp("createTopic", "Register or rename a topic", "topics")
	create.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(topicRef)}}
	respond(create, "201", "Topic stored", topicRef)
	respond(create, "400", "Bad request", errorSchema)
	respond(create, "409", "Name already in use", errorSchema)
	spec.AddOperation("/api/v1/topics", http.MethodPost, create)

	idParam := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name: "id", In: openapi3.ParameterInPath, Required: true,
		Schema: openapi3.NewSchemaRef("", openapi3.NewInt64Schema()),
	}}

	get := newOp("getTopic", "Fetch a topic", "topics")
	get.Parameters = openapi3.Parameters{idParam}
	respond(get, "200", "Topic", topicRef)
	respond(get, "404", "Not found", errorSchema)
	spec.AddOperation("/api/v1/topics/{id}", http.MethodGet, get)

	del := newOp("deleteTopic", "Remove a topic", "topics")
	del.Parameters = openapi3.Parameters{idParam}
	respond(del, "204", "Deleted", nil)
	respond(del, "404", "Not found", errorSchema)
	spec.AddOperation("/api/v1/topics/{id}", http.MethodDelete, del)

	ws := newOp("busSession", "Websocket bus session", "sessions")
	respond(ws, "101", "Switching protocols", nil)
	spec.AddOperation("/ws/v1/bus", http.MethodGet, ws)

	return spec, nil
}
