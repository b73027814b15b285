/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chainguard.dev/toolgate/gateway"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Client talks to the identity service's admin API to provision OAuth
// clients. Provisioning is not idempotent on the service side: calling
// ProvisionClient twice with the same name creates two clients, so callers
// reuse the returned config for the life of a session.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for admin API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAdminToken sets the bearer credential for the admin API.
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// NewClient constructs a Client for the identity service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// provisionRequest is the admin API payload for creating an OAuth client.
type provisionRequest struct {
	Name string `json:"name"`
}

// provisionResponse is the credential bundle the admin API returns.
type provisionResponse struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	Issuer       string   `json:"issuer"`
	DiscoveryURL string   `json:"discoveryUrl"`
	Scopes       []string `json:"scopes"`
}

// ProvisionClient creates an OAuth client named name and returns its
// credential bundle. Failures are reported as *gateway.AuthSetupError.
func (c *Client) ProvisionClient(ctx context.Context, name string) (*gateway.AuthorizerConfig, error) {
	log := clog.FromContext(ctx)

	body, err := json.Marshal(provisionRequest{Name: name})
	if err != nil {
		return nil, &gateway.AuthSetupError{Authorizer: name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/clients", bytes.NewReader(body))
	if err != nil {
		return nil, &gateway.AuthSetupError{Authorizer: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &gateway.AuthSetupError{Authorizer: name, Err: fmt.Errorf("identity service unreachable: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &gateway.AuthSetupError{Authorizer: name, Err: statusError(resp)}
	}

	var pr provisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &gateway.AuthSetupError{Authorizer: name, Err: fmt.Errorf("decoding provision response: %w", err)}
	}
	if pr.ClientID == "" || pr.ClientSecret == "" || pr.Issuer == "" {
		return nil, &gateway.AuthSetupError{Authorizer: name, Err: fmt.Errorf("identity service returned an incomplete credential bundle")}
	}

	log.With("authorizer", name).
		With("client_id", pr.ClientID).
		With("issuer", pr.Issuer).
		Info("Provisioned OAuth client")

	return &gateway.AuthorizerConfig{
		Name:         name,
		Issuer:       pr.Issuer,
		DiscoveryURL: pr.DiscoveryURL,
		ClientID:     pr.ClientID,
		ClientSecret: pr.ClientSecret,
		Scopes:       pr.Scopes,
	}, nil
}

// statusError folds a non-2xx response into an error carrying the service's
// own message when it supplied one.
func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("identity service quota exceeded: %s %s", resp.Status, bytes.TrimSpace(msg))
	}
	return fmt.Errorf("identity service: %s %s", resp.Status, bytes.TrimSpace(msg))
}
