/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"encoding/json"
	"time"
)

// AuthorizerConfig is the credential bundle returned by the identity service
// when an OAuth client is provisioned. It is held for the duration of a
// session and never persisted.
type AuthorizerConfig struct {
	// Name is the caller-chosen name the client was provisioned under.
	Name string
	// Issuer is the OAuth issuer URL.
	Issuer string
	// DiscoveryURL is the OIDC discovery document URL. When empty it is
	// derived from the issuer.
	DiscoveryURL string
	// ClientID and ClientSecret authenticate the client-credentials exchange.
	ClientID     string
	ClientSecret string
	// Scopes requested during token exchange.
	Scopes []string
}

// GatewayStatus is the remote lifecycle state of a gateway.
type GatewayStatus string

const (
	GatewayStatusCreating GatewayStatus = "CREATING"
	GatewayStatusReady    GatewayStatus = "READY"
	GatewayStatusDeleting GatewayStatus = "DELETING"
	GatewayStatusFailed   GatewayStatus = "FAILED"
)

// Handle references a remote gateway. The resource itself lives on the
// service side; the handle is all local state there is.
type Handle struct {
	ID   string
	Name string
	// URL is the gateway's tool-invocation endpoint (path suffix /mcp).
	URL    string
	Status GatewayStatus
}

// TargetType enumerates the kinds of callable a target can attach.
type TargetType string

const (
	// TargetTypeFunction attaches a hosted function (e.g. a Lambda) with
	// inline or referenced tool schemas.
	TargetTypeFunction TargetType = "function"
	// TargetTypeOpenAPI attaches an HTTP API described by an OpenAPI
	// document.
	TargetTypeOpenAPI TargetType = "openapi"
)

// TargetHandle references one registered callable on a gateway. Targets are
// independently deletable but cannot outlive their gateway.
type TargetHandle struct {
	ID        string
	GatewayID string
	Name      string
	Type      TargetType
}

// AccessToken is a short-lived bearer credential. It is fetched on demand and
// never written to storage; callers re-fetch rather than refresh.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// ExpiredAt reports whether the token is unusable at the given instant.
func (t *AccessToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Expired reports whether the token is unusable now.
func (t *AccessToken) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// String redacts the token value; AccessTokens routinely end up in logs.
func (t *AccessToken) String() string {
	return "AccessToken(REDACTED, expires " + t.ExpiresAt.UTC().Format(time.RFC3339) + ")"
}

// ToolDescriptor is one invocable capability advertised by the gateway.
type ToolDescriptor struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
}

// ToolCall names a tool and its arguments for a single invocation.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of a single tool invocation.
type ToolResult struct {
	// Content is the concatenated text content of the result.
	Content string
	// Structured carries the structured result payload when the tool's
	// schema declares one.
	Structured json.RawMessage
	// IsError indicates a tool-level failure reported in-band by the
	// gateway (as opposed to a transport failure, which surfaces as an
	// error return).
	IsError bool
}
