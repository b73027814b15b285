/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package session drives the gateway workflow end to end: authorizer before
// gateway, gateway before targets, token before invocation, targets deleted
// before the gateway. It sequences the external services and holds only
// short-lived handles; every failure surfaces to the caller unmodified, with
// no local retry and no rollback of prior steps.
package session

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/controlplane"
	"chainguard.dev/toolgate/gateway/gatewaymetrics"
	"chainguard.dev/toolgate/gateway/identity"
	"chainguard.dev/toolgate/gateway/sessiontrace"
	"chainguard.dev/toolgate/gateway/transport"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// teardownConcurrency bounds concurrent target deletions during teardown.
const teardownConcurrency = 4

// Config locates the external services a session talks to.
type Config struct {
	// IdentityURL is the identity service's admin API base URL.
	IdentityURL string
	// ControlPlaneURL is the gateway management service's base URL.
	ControlPlaneURL string
	// AdminToken authenticates admin API calls to both services.
	AdminToken string
}

// Session orchestrates one workflow run. It is a single logical session:
// operations are expected to be called sequentially, and concurrent agent
// runs against a shared gateway should each hold their own Session, token,
// and transport session.
type Session struct {
	identity  *identity.Client
	exchanger *identity.Exchanger
	control   *controlplane.Client
	transport *transport.Client
	metrics   *gatewaymetrics.Metrics
	trace     *sessiontrace.Trace
}

// Option configures a Session.
type Option func(*Session)

// WithIdentityClient substitutes the identity admin client.
func WithIdentityClient(c *identity.Client) Option {
	return func(s *Session) { s.identity = c }
}

// WithExchanger substitutes the token exchanger.
func WithExchanger(e *identity.Exchanger) Option {
	return func(s *Session) { s.exchanger = e }
}

// WithControlPlaneClient substitutes the management API client.
func WithControlPlaneClient(c *controlplane.Client) Option {
	return func(s *Session) { s.control = c }
}

// WithTransportClient substitutes the MCP transport client.
func WithTransportClient(c *transport.Client) Option {
	return func(s *Session) { s.transport = c }
}

// WithTrace attaches a workflow trace; each operation is recorded as a step.
func WithTrace(t *sessiontrace.Trace) Option {
	return func(s *Session) { s.trace = t }
}

// New constructs a Session against the configured services.
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.IdentityURL == "" {
		return nil, fmt.Errorf("identity URL is required")
	}
	if cfg.ControlPlaneURL == "" {
		return nil, fmt.Errorf("control plane URL is required")
	}

	s := &Session{
		identity:  identity.NewClient(cfg.IdentityURL, identity.WithAdminToken(cfg.AdminToken)),
		exchanger: identity.NewExchanger(),
		control:   controlplane.NewClient(cfg.ControlPlaneURL, controlplane.WithAdminToken(cfg.AdminToken)),
		transport: transport.NewClient(),
		metrics:   gatewaymetrics.New("toolgate.gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// step records one traced operation when a trace is attached.
func (s *Session) step(name string, attrs ...attribute.KeyValue) func(error) {
	if s.trace == nil {
		return func(error) {}
	}
	st := s.trace.StartStep(name, attrs...)
	return st.End
}

// EstablishAuthorizer provisions an OAuth client with the identity service.
// The external service does not guarantee idempotency — repeat calls create
// duplicate clients — so reuse the returned config for the whole session.
// Fails with *gateway.AuthSetupError.
func (s *Session) EstablishAuthorizer(ctx context.Context, name string) (cfg *gateway.AuthorizerConfig, err error) {
	end := s.step("establish_authorizer", attribute.String("authorizer", name))
	defer func() { end(err) }()
	defer func() { s.metrics.RecordOperation(ctx, "establish_authorizer", err) }()

	return s.identity.ProvisionClient(ctx, name)
}

// CreateGateway provisions a remote gateway bound to the authorizer. This
// creates a billable remote resource; pair it with Teardown. Fails with
// *gateway.ProvisionError.
func (s *Session) CreateGateway(ctx context.Context, cfg gateway.Config, authorizer *gateway.AuthorizerConfig) (gw *gateway.Handle, err error) {
	end := s.step("create_gateway", attribute.String("gateway", cfg.Name))
	defer func() { end(err) }()
	defer func() { s.metrics.RecordOperation(ctx, "create_gateway", err) }()

	return s.control.CreateGateway(ctx, cfg, authorizer)
}

// RegisterTarget attaches one callable unit to the gateway. A failed
// registration leaves the gateway intact; nothing is rolled back. Fails with
// *gateway.SchemaValidationError or *gateway.TargetNotFoundError.
func (s *Session) RegisterTarget(ctx context.Context, gw *gateway.Handle, cfg gateway.TargetConfig) (tgt *gateway.TargetHandle, err error) {
	end := s.step("register_target", attribute.String("target", cfg.Name))
	defer func() { end(err) }()
	defer func() { s.metrics.RecordOperation(ctx, "register_target", err) }()

	return s.control.CreateTarget(ctx, gw.ID, cfg)
}

// FetchToken exchanges authorizer credentials for a bearer token. Tokens
// have a fixed expiry and are not auto-refreshed; re-invoke before expiry.
// Fails with *gateway.AuthError.
func (s *Session) FetchToken(ctx context.Context, authorizer *gateway.AuthorizerConfig) (tok *gateway.AccessToken, err error) {
	end := s.step("fetch_token", attribute.String("authorizer", authorizer.Name))
	defer func() { end(err) }()
	defer func() { s.metrics.RecordOperation(ctx, "fetch_token", err) }()

	tok, err = s.exchanger.FetchToken(ctx, authorizer)
	if err == nil {
		s.metrics.RecordTokenIssued(ctx, authorizer.Name)
	}
	return tok, err
}

// ListTools returns a lazy, restartable sequence of the gateway's currently
// invocable tools. Every range over the sequence opens a fresh transport
// session and re-queries live state; nothing is cached.
func (s *Session) ListTools(ctx context.Context, gw *gateway.Handle, tok *gateway.AccessToken) iter.Seq2[gateway.ToolDescriptor, error] {
	return func(yield func(gateway.ToolDescriptor, error) bool) {
		stopped := false
		err := s.transport.WithSession(ctx, gw.URL, tok, func(ctx context.Context, ts *transport.Session) error {
			for desc, err := range ts.Tools(ctx) {
				if !yield(desc, err) {
					stopped = true
					return nil
				}
				if err != nil {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(gateway.ToolDescriptor{}, err)
		}
	}
}

// Invoke sends a single tool invocation over a scoped transport session.
// One attempt, no retry; an expired token fails with *gateway.AuthError
// before any request is sent. Retry policy belongs to the caller (see the
// retry package).
func (s *Session) Invoke(ctx context.Context, gatewayURL string, tok *gateway.AccessToken, call gateway.ToolCall) (res *gateway.ToolResult, err error) {
	end := s.step("invoke", attribute.String("tool", call.Name))
	defer func() { end(err) }()
	defer func() { s.metrics.RecordInvocation(ctx, call.Name, err) }()

	err = s.transport.WithSession(ctx, gatewayURL, tok, func(ctx context.Context, ts *transport.Session) error {
		var cerr error
		res, cerr = ts.Call(ctx, call)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Teardown deletes all of the gateway's target registrations, then the
// gateway itself. Targets must go first: they cannot outlive their gateway,
// and the management service rejects deleting a gateway with live targets.
// The gateway deletion is attempted even when target deletions fail; any
// partial failure is reported once as a non-fatal *gateway.CleanupError and
// never retried here.
func (s *Session) Teardown(ctx context.Context, gw *gateway.Handle) (err error) {
	end := s.step("teardown", attribute.String("gateway", gw.Name))
	defer func() { end(err) }()
	defer func() { s.metrics.RecordOperation(ctx, "teardown", err) }()

	log := clog.FromContext(ctx)

	targets, err := s.control.ListTargets(ctx, gw.ID)
	if err != nil {
		return &gateway.CleanupError{Gateway: gw.Name, GatewayErr: fmt.Errorf("listing targets for teardown: %w", err)}
	}

	var (
		mu       sync.Mutex
		failures []gateway.TargetFailure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(teardownConcurrency)
	for _, tgt := range targets {
		g.Go(func() error {
			if derr := s.control.DeleteTarget(gctx, gw.ID, tgt.ID); derr != nil {
				mu.Lock()
				failures = append(failures, gateway.TargetFailure{TargetID: tgt.ID, Name: tgt.Name, Err: derr})
				mu.Unlock()
				log.With("target", tgt.Name).With("error", derr.Error()).
					Warn("Target deletion failed during teardown")
			}
			return nil
		})
	}
	// Goroutines report failures via the slice, never an error return, so
	// every deletion is attempted.
	_ = g.Wait()

	gwErr := s.control.DeleteGateway(ctx, gw.ID)
	if gwErr != nil {
		log.With("gateway", gw.Name).With("error", gwErr.Error()).
			Warn("Gateway deletion failed during teardown")
	}

	if len(failures) > 0 || gwErr != nil {
		return &gateway.CleanupError{Gateway: gw.Name, Targets: failures, GatewayErr: gwErr}
	}
	log.With("gateway", gw.Name).Info("Teardown complete")
	return nil
}
