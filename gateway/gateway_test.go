/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chainguard.dev/toolgate/gateway/schema"
)

func TestAccessTokenExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := &AccessToken{Value: "secret", ExpiresAt: now.Add(time.Hour)}

	if tok.ExpiredAt(now) {
		t.Error("token should be live an hour before expiry")
	}
	if !tok.ExpiredAt(now.Add(time.Hour)) {
		t.Error("token should be expired at its expiry instant")
	}
	if !tok.ExpiredAt(now.Add(2 * time.Hour)) {
		t.Error("token should be expired after its expiry instant")
	}
}

func TestAccessTokenStringRedacts(t *testing.T) {
	t.Parallel()
	tok := &AccessToken{Value: "super-secret-bearer", ExpiresAt: time.Now()}
	if s := tok.String(); strings.Contains(s, "super-secret-bearer") {
		t.Errorf("String() leaked the token value: %q", s)
	}
}

func TestTargetConfigValidate(t *testing.T) {
	t.Parallel()
	tool := schema.Tool{
		Name:        "get_time",
		Description: "Current time",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}

	tests := []struct {
		name    string
		cfg     TargetConfig
		wantErr string
	}{{
		name: "valid inline",
		cfg:  TargetConfig{Name: "clock", Type: TargetTypeFunction, Handler: "arn:fn", Tools: []schema.Tool{tool}},
	}, {
		name: "valid schema ref",
		cfg:  TargetConfig{Name: "petstore", Type: TargetTypeOpenAPI, Handler: "https://api", SchemaRef: "https://schemas/petstore.json"},
	}, {
		name:    "missing name",
		cfg:     TargetConfig{Type: TargetTypeFunction, Handler: "arn:fn", Tools: []schema.Tool{tool}},
		wantErr: "name is required",
	}, {
		name:    "missing type",
		cfg:     TargetConfig{Name: "clock", Handler: "arn:fn", Tools: []schema.Tool{tool}},
		wantErr: "type is required",
	}, {
		name:    "unknown type",
		cfg:     TargetConfig{Name: "clock", Type: "grpc", Handler: "arn:fn", Tools: []schema.Tool{tool}},
		wantErr: "unknown type",
	}, {
		name:    "missing handler",
		cfg:     TargetConfig{Name: "clock", Type: TargetTypeFunction, Tools: []schema.Tool{tool}},
		wantErr: "handler is required",
	}, {
		name:    "no schema source",
		cfg:     TargetConfig{Name: "clock", Type: TargetTypeFunction, Handler: "arn:fn"},
		wantErr: "either inline tools or a schema_ref",
	}, {
		name: "both schema sources",
		cfg: TargetConfig{
			Name: "clock", Type: TargetTypeFunction, Handler: "arn:fn",
			Tools: []schema.Tool{tool}, SchemaRef: "https://schemas/clock.json",
		},
		wantErr: "mutually exclusive",
	}, {
		name: "duplicate tool names",
		cfg: TargetConfig{
			Name: "clock", Type: TargetTypeFunction, Handler: "arn:fn",
			Tools: []schema.Tool{tool, tool},
		},
		wantErr: "duplicate tool",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCleanupErrorReportsFailedTargets(t *testing.T) {
	t.Parallel()
	underlying := errors.New("503 service unavailable")
	cerr := &CleanupError{
		Gateway: "demo",
		Targets: []TargetFailure{{TargetID: "tgt-1", Name: "clock", Err: underlying}},
	}

	if got := cerr.FailedTargets(); len(got) != 1 || got[0] != "clock" {
		t.Errorf("FailedTargets() = %v, want [clock]", got)
	}
	if !errors.Is(cerr, underlying) {
		t.Error("CleanupError should unwrap to the underlying target error")
	}
	if msg := cerr.Error(); !strings.Contains(msg, "clock") {
		t.Errorf("Error() should name the failed target, got %q", msg)
	}
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
	}{
		{name: "auth setup", err: &AuthSetupError{Authorizer: "a", Err: cause}},
		{name: "auth", err: &AuthError{Err: cause}},
		{name: "provision", err: &ProvisionError{Gateway: "g", Err: cause}},
		{name: "target not found", err: &TargetNotFoundError{Target: "t", Err: cause}},
		{name: "schema validation", err: &SchemaValidationError{Target: "t", Err: cause}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, cause) {
				t.Errorf("%T should unwrap to its cause", tt.err)
			}
		})
	}
}

func TestTargetConfigsFromDocument(t *testing.T) {
	t.Parallel()
	doc, err := schema.ParseDocument([]byte(`
targets:
  - name: clock
    type: function
    handler: arn:fn
    tools:
      - name: get_time
        description: Current time
        input_schema:
          type: object
`))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	configs, err := TargetConfigsFromDocument(doc)
	if err != nil {
		t.Fatalf("TargetConfigsFromDocument: %v", err)
	}
	if len(configs) != 1 || configs[0].Tools[0].Name != "get_time" {
		t.Fatalf("unexpected configs: %+v", configs)
	}
}
