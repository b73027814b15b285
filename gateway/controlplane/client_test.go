/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package controlplane_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"chainguard.dev/toolgate/gateway"
	"chainguard.dev/toolgate/gateway/controlplane"
	"chainguard.dev/toolgate/gateway/gatewaytest"
	"chainguard.dev/toolgate/gateway/schema"
)

func testAuthorizer() *gateway.AuthorizerConfig {
	return &gateway.AuthorizerConfig{
		Name:     "demo",
		Issuer:   "https://issuer.example.com",
		ClientID: "client-abc",
	}
}

func timeTool() schema.Tool {
	return schema.Tool{
		Name:        "get_time",
		Description: "Current time in a timezone",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"tz":{"type":"string"}},"required":["tz"]}`),
	}
}

func TestCreateAndDeleteGateway(t *testing.T) {
	t.Parallel()
	fake := gatewaytest.New()
	t.Cleanup(fake.Close)
	ctx := context.Background()

	c := controlplane.NewClient(fake.URL())
	gw, err := c.CreateGateway(ctx, gateway.Config{Name: "demo"}, testAuthorizer())
	if err != nil {
		t.Fatalf("CreateGateway: %v", err)
	}
	if gw.ID == "" || gw.URL == "" {
		t.Fatalf("incomplete handle: %+v", gw)
	}
	if !strings.HasSuffix(gw.URL, "/mcp") {
		t.Errorf("gateway URL %q should end in /mcp", gw.URL)
	}
	if gw.Status != gateway.GatewayStatusReady {
		t.Errorf("status = %q, want READY", gw.Status)
	}

	if err := c.DeleteGateway(ctx, gw.ID); err != nil {
		t.Fatalf("DeleteGateway: %v", err)
	}
	if n := fake.GatewayCount(); n != 0 {
		t.Errorf("gateway count after delete = %d", n)
	}
}

func TestCreateGatewayInvalidAuthorizer(t *testing.T) {
	t.Parallel()
	fake := gatewaytest.New()
	t.Cleanup(fake.Close)

	c := controlplane.NewClient(fake.URL())
	_, err := c.CreateGateway(context.Background(), gateway.Config{Name: "demo"}, &gateway.AuthorizerConfig{})
	var pe *gateway.ProvisionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *gateway.ProvisionError, got %T: %v", err, err)
	}
}

func TestCreateGatewayMissingName(t *testing.T) {
	t.Parallel()
	c := controlplane.NewClient("http://unused.invalid")
	_, err := c.CreateGateway(context.Background(), gateway.Config{}, testAuthorizer())
	var pe *gateway.ProvisionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *gateway.ProvisionError, got %T: %v", err, err)
	}
}

func TestCreateTarget(t *testing.T) {
	t.Parallel()
	fake := gatewaytest.New()
	t.Cleanup(fake.Close)
	ctx := context.Background()

	c := controlplane.NewClient(fake.URL())
	gw, err := c.CreateGateway(ctx, gateway.Config{Name: "demo"}, testAuthorizer())
	if err != nil {
		t.Fatalf("CreateGateway: %v", err)
	}

	tgt, err := c.CreateTarget(ctx, gw.ID, gateway.TargetConfig{
		Name:    "clock",
		Type:    gateway.TargetTypeFunction,
		Handler: "arn:aws:lambda:us-west-2:123456789012:function:clock",
		Tools:   []schema.Tool{timeTool()},
	})
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if tgt.ID == "" || tgt.GatewayID != gw.ID {
		t.Fatalf("unexpected handle: %+v", tgt)
	}

	targets, err := c.ListTargets(ctx, gw.ID)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].Name != "clock" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
}

func TestCreateTargetErrors(t *testing.T) {
	t.Parallel()
	fake := gatewaytest.New()
	t.Cleanup(fake.Close)
	ctx := context.Background()

	c := controlplane.NewClient(fake.URL())
	gw, err := c.CreateGateway(ctx, gateway.Config{Name: "demo"}, testAuthorizer())
	if err != nil {
		t.Fatalf("CreateGateway: %v", err)
	}

	t.Run("malformed payload fails before the remote call", func(t *testing.T) {
		before := fake.TargetCount(gw.ID)
		_, err := c.CreateTarget(ctx, gw.ID, gateway.TargetConfig{Name: "bad"})
		var sve *gateway.SchemaValidationError
		if !errors.As(err, &sve) {
			t.Fatalf("expected *gateway.SchemaValidationError, got %T: %v", err, err)
		}
		if fake.TargetCount(gw.ID) != before {
			t.Error("malformed registration created remote state")
		}
	})

	t.Run("missing callable", func(t *testing.T) {
		_, err := c.CreateTarget(ctx, gw.ID, gateway.TargetConfig{
			Name:    "ghost",
			Type:    gateway.TargetTypeFunction,
			Handler: "arn:aws:lambda:us-west-2:123456789012:function:missing",
			Tools:   []schema.Tool{timeTool()},
		})
		var tnf *gateway.TargetNotFoundError
		if !errors.As(err, &tnf) {
			t.Fatalf("expected *gateway.TargetNotFoundError, got %T: %v", err, err)
		}
	})
}

func TestDeleteGatewayWithLiveTargetsRejected(t *testing.T) {
	t.Parallel()
	fake := gatewaytest.New()
	t.Cleanup(fake.Close)
	ctx := context.Background()

	c := controlplane.NewClient(fake.URL())
	gw, err := c.CreateGateway(ctx, gateway.Config{Name: "demo"}, testAuthorizer())
	if err != nil {
		t.Fatalf("CreateGateway: %v", err)
	}
	if _, err := c.CreateTarget(ctx, gw.ID, gateway.TargetConfig{
		Name:    "clock",
		Type:    gateway.TargetTypeFunction,
		Handler: "arn:fn",
		Tools:   []schema.Tool{timeTool()},
	}); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	// The fake takes the strict side of the cascade contract: deletion
	// with live targets fails explicitly, never silently.
	err = c.DeleteGateway(ctx, gw.ID)
	if err == nil {
		t.Fatal("expected gateway deletion with live targets to fail")
	}
	if !strings.Contains(err.Error(), "live targets") {
		t.Errorf("error %q should explain the live targets", err)
	}
}

func TestDeleteTargetNotFound(t *testing.T) {
	t.Parallel()
	fake := gatewaytest.New()
	t.Cleanup(fake.Close)
	ctx := context.Background()

	c := controlplane.NewClient(fake.URL())
	gw, err := c.CreateGateway(ctx, gateway.Config{Name: "demo"}, testAuthorizer())
	if err != nil {
		t.Fatalf("CreateGateway: %v", err)
	}

	err = c.DeleteTarget(ctx, gw.ID, "tgt-nope")
	var tnf *gateway.TargetNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected *gateway.TargetNotFoundError, got %T: %v", err, err)
	}
}
