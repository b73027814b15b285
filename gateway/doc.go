/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gateway defines the data model for driving a managed tool gateway:
// authorizer credentials, gateway and target handles, access tokens, and tool
// descriptors, together with the typed error taxonomy every operation in the
// workflow reports through.
//
// The orchestration itself lives in [chainguard.dev/toolgate/gateway/session];
// the service boundaries live in the identity, controlplane, and transport
// sub-packages. This package holds only the shapes they exchange.
package gateway
