/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"fmt"
	"strings"
)

// The workflow surfaces every failure to the caller unmodified through one of
// the typed errors below. There is no local recovery or retry; callers decide
// retry policy, and prior steps' remote resources are never rolled back
// automatically.

// AuthSetupError reports a failure to provision an OAuth client with the
// identity service.
type AuthSetupError struct {
	Authorizer string
	Err        error
}

func (e *AuthSetupError) Error() string {
	return fmt.Sprintf("establishing authorizer %q: %v", e.Authorizer, e.Err)
}

func (e *AuthSetupError) Unwrap() error { return e.Err }

// AuthError reports an invalid or expired credential: a failed token exchange
// or an invocation attempted with an expired token.
type AuthError struct {
	// Expired is set when the failure is a token past its expiry, the
	// caller's signal to fetch a fresh token and retry.
	Expired bool
	Err     error
}

func (e *AuthError) Error() string {
	if e.Expired {
		return fmt.Sprintf("access token expired: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProvisionError reports a failure to create the remote gateway.
type ProvisionError struct {
	Gateway string
	Err     error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning gateway %q: %v", e.Gateway, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// TargetNotFoundError reports that a target's referenced callable does not
// exist or is not authorized, or that a target identifier is unknown to the
// management service.
type TargetNotFoundError struct {
	Target string
	Err    error
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target %q: callable not found or not authorized: %v", e.Target, e.Err)
}

func (e *TargetNotFoundError) Unwrap() error { return e.Err }

// SchemaValidationError reports a malformed target schema payload. These are
// raised client-side before the remote call whenever possible.
type SchemaValidationError struct {
	Target string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("target %q: invalid schema payload: %v", e.Target, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// TargetFailure records one target deletion that failed during teardown.
type TargetFailure struct {
	TargetID string
	Name     string
	Err      error
}

// CleanupError reports a partial teardown: some target deletions failed, or
// the final gateway deletion failed. Teardown is not retried; the failed
// resources remain live on the service side and the caller decides what to
// do about them.
type CleanupError struct {
	Gateway string
	// Targets lists each target deletion that failed.
	Targets []TargetFailure
	// GatewayErr is set when the gateway deletion itself failed. The
	// deletion is always attempted, even after target failures.
	GatewayErr error
}

func (e *CleanupError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tearing down gateway %q:", e.Gateway)
	for _, tf := range e.Targets {
		fmt.Fprintf(&sb, " target %q: %v;", tf.Name, tf.Err)
	}
	if e.GatewayErr != nil {
		fmt.Fprintf(&sb, " gateway deletion: %v;", e.GatewayErr)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Unwrap exposes the underlying failures to errors.Is/As.
func (e *CleanupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Targets)+1)
	for _, tf := range e.Targets {
		errs = append(errs, tf.Err)
	}
	if e.GatewayErr != nil {
		errs = append(errs, e.GatewayErr)
	}
	return errs
}

// FailedTargets returns the names of the targets whose deletion failed.
func (e *CleanupError) FailedTargets() []string {
	names := make([]string, 0, len(e.Targets))
	for _, tf := range e.Targets {
		names = append(names, tf.Name)
	}
	return names
}
