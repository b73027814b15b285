/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package identity is the boundary to the external identity/authorization
// service: provisioning OAuth clients and exchanging their credentials for
// short-lived bearer tokens via the OIDC client-credentials grant.
//
// The service's protocols are not reimplemented here; discovery and token
// exchange go through go-oidc and golang.org/x/oauth2.
package identity
