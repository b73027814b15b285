/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package controlplane is the boundary to the external gateway-management
// service: creating and deleting gateways, and attaching, listing, and
// detaching their targets. The service owns all resource state; this client
// only carries handles.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/schema"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Client calls the gateway-management REST API.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for management API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAdminToken sets the bearer credential for the management API.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// NewClient constructs a Client for the management service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// createGatewayRequest is the provisioning payload. Only the authorizer's
// public half travels to the management service; the client secret stays with
// the session.
type createGatewayRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Authorizer  authorizerPayload `json:"authorizer"`
}

type authorizerPayload struct {
	Issuer       string   `json:"issuer"`
	DiscoveryURL string   `json:"discoveryUrl,omitempty"`
	ClientID     string   `json:"clientId"`
	Scopes       []string `json:"scopes,omitempty"`
}

type gatewayResource struct {
	GatewayID  string `json:"gatewayId"`
	Name       string `json:"name"`
	GatewayURL string `json:"gatewayUrl"`
	Status     string `json:"status"`
}

// CreateGateway provisions a gateway bound to the authorizer. This creates a
// billable remote resource; pair every successful call with a teardown.
// Failures are reported as *gateway.ProvisionError.
func (c *Client) CreateGateway(ctx context.Context, cfg gateway.Config, authorizer *gateway.AuthorizerConfig) (*gateway.Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &gateway.ProvisionError{Gateway: cfg.Name, Err: err}
	}
	if authorizer == nil || authorizer.ClientID == "" || authorizer.Issuer == "" {
		return nil, &gateway.ProvisionError{Gateway: cfg.Name, Err: fmt.Errorf("authorizer config is incomplete")}
	}

	var res gatewayResource
	err := c.do(ctx, http.MethodPost, "/v1/gateways", createGatewayRequest{
		Name:        cfg.Name,
		Description: cfg.Description,
		Authorizer: authorizerPayload{
			Issuer:       authorizer.Issuer,
			DiscoveryURL: authorizer.DiscoveryURL,
			ClientID:     authorizer.ClientID,
			Scopes:       authorizer.Scopes,
		},
	}, &res)
	if err != nil {
		return nil, &gateway.ProvisionError{Gateway: cfg.Name, Err: err}
	}

	clog.FromContext(ctx).
		With("gateway", cfg.Name).
		With("gateway_id", res.GatewayID).
		With("url", res.GatewayURL).
		Info("Provisioned gateway")

	return &gateway.Handle{
		ID:     res.GatewayID,
		Name:   res.Name,
		URL:    res.GatewayURL,
		Status: gateway.GatewayStatus(res.Status),
	}, nil
}

// DeleteGateway deletes the gateway. Whether deletion cascades over live
// targets is the service's contract, not ours; a rejection (conventionally
// 409) surfaces verbatim.
func (c *Client) DeleteGateway(ctx context.Context, gatewayID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/gateways/"+url.PathEscape(gatewayID), nil, nil); err != nil {
		return fmt.Errorf("deleting gateway %q: %w", gatewayID, err)
	}
	clog.FromContext(ctx).With("gateway_id", gatewayID).Info("Deleted gateway")
	return nil
}

// createTargetRequest attaches one callable unit to a gateway.
type createTargetRequest struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Handler   string        `json:"handler"`
	Tools     []schema.Tool `json:"tools,omitempty"`
	SchemaRef string        `json:"schemaRef,omitempty"`
}

type targetResource struct {
	TargetID string `json:"targetId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// CreateTarget registers a callable unit on the gateway. The payload is
// validated client-side first, so malformed schemas fail as
// *gateway.SchemaValidationError without creating remote state; a missing or
// unauthorized callable is *gateway.TargetNotFoundError.
func (c *Client) CreateTarget(ctx context.Context, gatewayID string, cfg gateway.TargetConfig) (*gateway.TargetHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &gateway.SchemaValidationError{Target: cfg.Name, Err: err}
	}

	var res targetResource
	err := c.do(ctx, http.MethodPost, "/v1/gateways/"+url.PathEscape(gatewayID)+"/targets", createTargetRequest{
		Name:      cfg.Name,
		Type:      string(cfg.Type),
		Handler:   cfg.Handler,
		Tools:     cfg.Tools,
		SchemaRef: cfg.SchemaRef,
	}, &res)
	if err != nil {
		var se *statusError
		if ok := asStatus(err, &se); ok {
			switch se.code {
			case http.StatusNotFound, http.StatusForbidden:
				return nil, &gateway.TargetNotFoundError{Target: cfg.Name, Err: err}
			case http.StatusBadRequest, http.StatusUnprocessableEntity:
				return nil, &gateway.SchemaValidationError{Target: cfg.Name, Err: err}
			}
		}
		return nil, fmt.Errorf("registering target %q: %w", cfg.Name, err)
	}

	clog.FromContext(ctx).
		With("gateway_id", gatewayID).
		With("target", cfg.Name).
		With("target_id", res.TargetID).
		Info("Registered target")

	return &gateway.TargetHandle{
		ID:        res.TargetID,
		GatewayID: gatewayID,
		Name:      res.Name,
		Type:      gateway.TargetType(res.Type),
	}, nil
}

// DeleteTarget detaches one target. Targets are independently deletable.
func (c *Client) DeleteTarget(ctx context.Context, gatewayID, targetID string) error {
	path := "/v1/gateways/" + url.PathEscape(gatewayID) + "/targets/" + url.PathEscape(targetID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		var se *statusError
		if asStatus(err, &se) && se.code == http.StatusNotFound {
			return &gateway.TargetNotFoundError{Target: targetID, Err: err}
		}
		return fmt.Errorf("deleting target %q: %w", targetID, err)
	}
	clog.FromContext(ctx).With("gateway_id", gatewayID).With("target_id", targetID).Info("Deleted target")
	return nil
}

// ListTargets returns the gateway's current target registrations.
func (c *Client) ListTargets(ctx context.Context, gatewayID string) ([]gateway.TargetHandle, error) {
	var res struct {
		Targets []targetResource `json:"targets"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/gateways/"+url.PathEscape(gatewayID)+"/targets", nil, &res); err != nil {
		return nil, fmt.Errorf("listing targets for gateway %q: %w", gatewayID, err)
	}
	handles := make([]gateway.TargetHandle, 0, len(res.Targets))
	for _, tr := range res.Targets {
		handles = append(handles, gateway.TargetHandle{
			ID:        tr.TargetID,
			GatewayID: gatewayID,
			Name:      tr.Name,
			Type:      gateway.TargetType(tr.Type),
		})
	}
	return handles, nil
}

// do issues one JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("management service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
