/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package transport opens streaming MCP sessions against a gateway's
// invocation endpoint. The protocol itself belongs to the official MCP Go
// SDK; this package adds bearer authentication, expiry enforcement, and
// scoped session lifetime.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"chainguard.dev/toolgate/gateway"
	"github.com/chainguard-dev/clog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client dials MCP sessions. It is stateless and safe for concurrent use;
// each agent run holds its own Session and token.
type Client struct {
	impl       *mcp.Implementation
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client underlying the streaming
// transport. The bearer header is still injected per session.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient constructs a transport client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		impl:       &mcp.Implementation{Name: "toolgate", Version: "v0.1.0"},
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is one live streaming connection to a gateway endpoint. It must be
// closed on every exit path; prefer [Client.WithSession] which guarantees it.
type Session struct {
	cs    *mcp.ClientSession
	token *gateway.AccessToken
}

// Connect opens a streaming session to the gateway endpoint, authenticating
// every request with the bearer token. An already-expired token fails with
// *gateway.AuthError before any network I/O.
func (c *Client) Connect(ctx context.Context, gatewayURL string, token *gateway.AccessToken) (*Session, error) {
	if token == nil {
		return nil, &gateway.AuthError{Err: errors.New("no access token")}
	}
	if token.Expired() {
		return nil, &gateway.AuthError{Expired: true, Err: fmt.Errorf("token expired at %s", token.ExpiresAt.UTC().Format(time.RFC3339))}
	}

	hc := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &bearerTransport{
			token: token.Value,
			next:  c.httpClient.Transport,
		},
	}

	client := mcp.NewClient(c.impl, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   gatewayURL,
		HTTPClient: hc,
	}, nil)
	if err != nil {
		if isAuthRejection(err) {
			return nil, &gateway.AuthError{Err: fmt.Errorf("gateway rejected credentials: %w", err)}
		}
		return nil, fmt.Errorf("connecting to gateway %q: %w", gatewayURL, err)
	}

	clog.FromContext(ctx).With("gateway_url", gatewayURL).Debug("Opened transport session")
	return &Session{cs: cs, token: token}, nil
}

// WithSession runs fn inside a scoped session, closing it on all exit paths.
func (c *Client) WithSession(ctx context.Context, gatewayURL string, token *gateway.AccessToken, fn func(ctx context.Context, s *Session) error) (err error) {
	s, err := c.Connect(ctx, gatewayURL, token)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing transport session: %w", cerr)
		}
	}()
	return fn(ctx, s)
}

// Close tears down the streaming connection.
func (s *Session) Close() error {
	return s.cs.Close()
}

// Tools iterates the gateway's currently invocable tools across all its
// targets. This queries live state; nothing is cached between iterations.
func (s *Session) Tools(ctx context.Context) iter.Seq2[gateway.ToolDescriptor, error] {
	return func(yield func(gateway.ToolDescriptor, error) bool) {
		for tool, err := range s.cs.Tools(ctx, nil) {
			if err != nil {
				yield(gateway.ToolDescriptor{}, fmt.Errorf("listing tools: %w", err))
				return
			}
			desc, err := describeTool(tool)
			if !yield(desc, err) {
				return
			}
		}
	}
}

// ListTools drains the tool iterator into a slice.
func (s *Session) ListTools(ctx context.Context) ([]gateway.ToolDescriptor, error) {
	var tools []gateway.ToolDescriptor
	for desc, err := range s.Tools(ctx) {
		if err != nil {
			return nil, err
		}
		tools = append(tools, desc)
	}
	return tools, nil
}

// Call performs a single tool invocation. One attempt, no retry: the caller
// owns retry policy. An expired token fails with *gateway.AuthError before
// the request is sent, never a silent success.
func (s *Session) Call(ctx context.Context, call gateway.ToolCall) (*gateway.ToolResult, error) {
	if s.token.Expired() {
		return nil, &gateway.AuthError{Expired: true, Err: fmt.Errorf("token expired at %s", s.token.ExpiresAt.UTC().Format(time.RFC3339))}
	}

	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: call.Arguments,
	})
	if err != nil {
		if isAuthRejection(err) {
			return nil, &gateway.AuthError{Err: fmt.Errorf("gateway rejected credentials: %w", err)}
		}
		return nil, fmt.Errorf("invoking tool %q: %w", call.Name, err)
	}

	result := &gateway.ToolResult{IsError: res.IsError}
	var text []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text = append(text, tc.Text)
		}
	}
	result.Content = strings.Join(text, "\n")
	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("encoding structured result for %q: %w", call.Name, err)
		}
		result.Structured = raw
	}
	return result, nil
}

// describeTool converts an advertised MCP tool into the workflow's
// descriptor shape, with schemas as raw JSON documents.
func describeTool(t *mcp.Tool) (gateway.ToolDescriptor, error) {
	desc := gateway.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
	}
	if t.InputSchema != nil {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return desc, fmt.Errorf("encoding input schema for %q: %w", t.Name, err)
		}
		desc.InputSchema = raw
	}
	if t.OutputSchema != nil {
		raw, err := json.Marshal(t.OutputSchema)
		if err != nil {
			return desc, fmt.Errorf("encoding output schema for %q: %w", t.Name, err)
		}
		desc.OutputSchema = raw
	}
	return desc, nil
}

// bearerTransport injects the Authorization header required on every request
// to the gateway endpoint.
type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.token)
	return next.RoundTrip(clone)
}

// isAuthRejection recognizes a credential rejection in the transport error
// chain. The SDK surfaces HTTP failures as formatted errors, so this is a
// textual check by necessity.
func isAuthRejection(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "unauthorized")
}
