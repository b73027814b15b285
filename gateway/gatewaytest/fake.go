/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gatewaytest provides an in-memory stand-in for the gateway
// management service, including a live MCP endpoint per gateway, for tests
// that exercise the workflow without the real managed services.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"chainguard.dev/toolgate/gateway/schema"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Target is one registered target inside the fake.
type Target struct {
	ID        string
	Name      string
	Type      string
	Handler   string
	SchemaRef string
	Tools     []schema.Tool
}

// Gateway is one provisioned gateway inside the fake.
type Gateway struct {
	ID      string
	Name    string
	URL     string
	Status  string
	Targets map[string]*Target
}

// Fake is an in-memory gateway management service plus an MCP invocation
// endpoint per gateway. Deleting a gateway with live targets is rejected
// with 409; the real service's cascade semantics are its own contract, and
// the fake deliberately takes the strict side.
type Fake struct {
	mu       sync.Mutex
	gateways map[string]*Gateway

	// ValidToken is the only bearer value the MCP endpoint accepts.
	ValidToken string
	// FailTargetDelete maps target names whose deletion should fail with
	// a 503, for exercising partial-teardown paths.
	FailTargetDelete map[string]bool

	srv *httptest.Server
}

// New starts a fake management service. Callers own Close.
func New() *Fake {
	f := &Fake{
		gateways:         make(map[string]*Gateway),
		ValidToken:       "test-token",
		FailTargetDelete: make(map[string]bool),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.route))
	return f
}

// URL returns the fake service's base URL.
func (f *Fake) URL() string { return f.srv.URL }

// Close shuts the fake down.
func (f *Fake) Close() { f.srv.Close() }

// GatewayCount reports how many gateways currently exist.
func (f *Fake) GatewayCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gateways)
}

// TargetCount reports how many targets the given gateway has.
func (f *Fake) TargetCount(gatewayID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	gw, ok := f.gateways[gatewayID]
	if !ok {
		return 0
	}
	return len(gw.Targets)
}

func (f *Fake) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "v1" && parts[1] == "gateways":
		f.createGateway(w, r)
	case r.Method == http.MethodDelete && len(parts) == 3 && parts[0] == "v1" && parts[1] == "gateways":
		f.deleteGateway(w, parts[2])
	case r.Method == http.MethodPost && len(parts) == 4 && parts[0] == "v1" && parts[1] == "gateways" && parts[3] == "targets":
		f.createTarget(w, r, parts[2])
	case r.Method == http.MethodGet && len(parts) == 4 && parts[0] == "v1" && parts[1] == "gateways" && parts[3] == "targets":
		f.listTargets(w, parts[2])
	case r.Method == http.MethodDelete && len(parts) == 5 && parts[0] == "v1" && parts[1] == "gateways" && parts[3] == "targets":
		f.deleteTarget(w, parts[2], parts[4])
	case len(parts) == 3 && parts[0] == "gateways" && parts[2] == "mcp":
		f.serveMCP(w, r, parts[1])
	default:
		reject(w, http.StatusNotFound, "no such route: "+r.URL.Path)
	}
}

func (f *Fake) createGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Authorizer struct {
			Issuer   string `json:"issuer"`
			ClientID string `json:"clientId"`
		} `json:"authorizer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		reject(w, http.StatusBadRequest, "invalid gateway payload")
		return
	}
	if req.Authorizer.Issuer == "" || req.Authorizer.ClientID == "" {
		reject(w, http.StatusBadRequest, "invalid authorizer config")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := "gw-" + uuid.NewString()[:8]
	gw := &Gateway{
		ID:      id,
		Name:    req.Name,
		URL:     f.srv.URL + "/gateways/" + id + "/mcp",
		Status:  "READY",
		Targets: make(map[string]*Target),
	}
	f.gateways[id] = gw

	writeJSON(w, http.StatusCreated, map[string]any{
		"gatewayId":  gw.ID,
		"name":       gw.Name,
		"gatewayUrl": gw.URL,
		"status":     gw.Status,
	})
}

func (f *Fake) deleteGateway(w http.ResponseWriter, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gw, ok := f.gateways[id]
	if !ok {
		reject(w, http.StatusNotFound, "no such gateway")
		return
	}
	if len(gw.Targets) > 0 {
		reject(w, http.StatusConflict, fmt.Sprintf("gateway has %d live targets", len(gw.Targets)))
		return
	}
	delete(f.gateways, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *Fake) createTarget(w http.ResponseWriter, r *http.Request, gatewayID string) {
	var req struct {
		Name      string        `json:"name"`
		Type      string        `json:"type"`
		Handler   string        `json:"handler"`
		Tools     []schema.Tool `json:"tools"`
		SchemaRef string        `json:"schemaRef"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reject(w, http.StatusBadRequest, "invalid target payload")
		return
	}
	// The fake treats handlers named "missing" as callables that do not
	// exist on the provider side.
	if strings.Contains(req.Handler, "missing") {
		reject(w, http.StatusNotFound, "callable not found: "+req.Handler)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	gw, ok := f.gateways[gatewayID]
	if !ok {
		reject(w, http.StatusNotFound, "no such gateway")
		return
	}
	id := "tgt-" + uuid.NewString()[:8]
	gw.Targets[id] = &Target{
		ID: id, Name: req.Name, Type: req.Type,
		Handler: req.Handler, SchemaRef: req.SchemaRef, Tools: req.Tools,
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"targetId": id,
		"name":     req.Name,
		"type":     req.Type,
	})
}

func (f *Fake) listTargets(w http.ResponseWriter, gatewayID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gw, ok := f.gateways[gatewayID]
	if !ok {
		reject(w, http.StatusNotFound, "no such gateway")
		return
	}
	targets := make([]map[string]any, 0, len(gw.Targets))
	for _, tgt := range gw.Targets {
		targets = append(targets, map[string]any{
			"targetId": tgt.ID,
			"name":     tgt.Name,
			"type":     tgt.Type,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

func (f *Fake) deleteTarget(w http.ResponseWriter, gatewayID, targetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gw, ok := f.gateways[gatewayID]
	if !ok {
		reject(w, http.StatusNotFound, "no such gateway")
		return
	}
	tgt, ok := gw.Targets[targetID]
	if !ok {
		reject(w, http.StatusNotFound, "no such target")
		return
	}
	if f.FailTargetDelete[tgt.Name] {
		reject(w, http.StatusServiceUnavailable, "target deletion failed: "+tgt.Name)
		return
	}
	delete(gw.Targets, targetID)
	w.WriteHeader(http.StatusNoContent)
}

// serveMCP exposes the gateway's registered tools over the streamable MCP
// protocol, enforcing the bearer token the way the real endpoint does.
func (f *Fake) serveMCP(w http.ResponseWriter, r *http.Request, gatewayID string) {
	if got := r.Header.Get("Authorization"); got != "Bearer "+f.ValidToken {
		reject(w, http.StatusUnauthorized, "invalid bearer token")
		return
	}

	f.mu.Lock()
	gw, ok := f.gateways[gatewayID]
	f.mu.Unlock()
	if !ok {
		reject(w, http.StatusNotFound, "no such gateway")
		return
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return f.mcpServer(gw)
	}, &mcp.StreamableHTTPOptions{Stateless: true})
	handler.ServeHTTP(w, r)
}

// mcpServer builds an MCP server reflecting the gateway's current targets.
// Built per request: listing always sees live state, never a snapshot.
func (f *Fake) mcpServer(gw *Gateway) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "gatewaytest", Version: "v0.0.1"}, nil)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tgt := range gw.Targets {
		for _, tool := range tgt.Tools {
			var in jsonschema.Schema
			if err := json.Unmarshal(tool.InputSchema, &in); err != nil {
				continue
			}
			srv.AddTool(&mcp.Tool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: &in,
			}, echoHandler(tool.Name))
		}
	}
	return srv
}

// echoHandler answers every invocation with the arguments it received, which
// is all the workflow tests need to assert round-trips.
func echoHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%s: %s", name, args)},
			},
		}, nil
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func reject(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
