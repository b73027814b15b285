/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/toolgate/gateway"
	"github.com/chainguard-dev/clog"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const wellKnownSuffix = "/.well-known/openid-configuration"

// defaultTokenTTL bounds tokens whose provider reports no expiry at all.
// Erring short forces a re-fetch rather than an invocation with a dead token.
const defaultTokenTTL = 5 * time.Minute

// Exchanger trades authorizer credentials for bearer tokens. It performs OIDC
// discovery per exchange; tokens are fetched on demand and never cached here.
type Exchanger struct {
	oauthCtx func(ctx context.Context) context.Context
}

// NewExchanger constructs an Exchanger.
func NewExchanger(opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		oauthCtx: func(ctx context.Context) context.Context { return ctx },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithOAuthContext wraps the context used for discovery and token exchange,
// letting callers inject a custom HTTP client via oidc.ClientContext.
func WithOAuthContext(wrap func(ctx context.Context) context.Context) ExchangerOption {
	return func(e *Exchanger) { e.oauthCtx = wrap }
}

// FetchToken exchanges the authorizer's client credentials for a bearer
// token. The token has a fixed expiry and is never refreshed here; callers
// re-invoke before expiry. Failures are reported as *gateway.AuthError.
func (e *Exchanger) FetchToken(ctx context.Context, authorizer *gateway.AuthorizerConfig) (*gateway.AccessToken, error) {
	if authorizer == nil {
		return nil, &gateway.AuthError{Err: fmt.Errorf("authorizer config is nil")}
	}
	log := clog.FromContext(ctx)
	ctx = e.oauthCtx(ctx)

	// The discovery URL, when present, wins over the bare issuer; providers
	// occasionally host discovery under a different base path.
	issuer := authorizer.Issuer
	if authorizer.DiscoveryURL != "" {
		base := strings.TrimSuffix(authorizer.DiscoveryURL, wellKnownSuffix)
		if base != issuer {
			ctx = oidc.InsecureIssuerURLContext(ctx, authorizer.Issuer)
		}
		issuer = base
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, &gateway.AuthError{Err: fmt.Errorf("OIDC discovery for %q: %w", issuer, err)}
	}

	cc := clientcredentials.Config{
		ClientID:     authorizer.ClientID,
		ClientSecret: authorizer.ClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       authorizer.Scopes,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, &gateway.AuthError{Err: fmt.Errorf("client credentials exchange: %w", err)}
	}

	expiry := tokenExpiry(tok)
	log.With("authorizer", authorizer.Name).
		With("expires_at", expiry.UTC().Format(time.RFC3339)).
		Info("Fetched access token")

	return &gateway.AccessToken{Value: tok.AccessToken, ExpiresAt: expiry}, nil
}

// tokenExpiry resolves the token's expiry: the token response's expires_in
// when present, then the JWT exp claim, then a short fallback TTL.
func tokenExpiry(tok *oauth2.Token) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	// The token is opaque to us as a bearer credential, but when it happens
	// to be a JWT the exp claim is authoritative. Claims are read without
	// signature verification; we are the party the token was issued to.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(defaultTokenTTL)
}
