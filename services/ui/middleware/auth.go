// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware holds the gin middleware for the UI service:
// identity resolution and per-principal rate limiting.
package middleware

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/auth"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
)

// authContextKey is the gin context key the resolved identity lives
// under.
const authContextKey = "authContext"

// App Service authentication injects these headers after verifying the
// caller's token at the platform edge.
const (
	headerPrincipal     = "X-MS-CLIENT-PRINCIPAL"
	headerPrincipalID   = "X-MS-CLIENT-PRINCIPAL-ID"
	headerPrincipalName = "X-MS-CLIENT-PRINCIPAL-NAME"
)

// SetAuthContext stores the identity on the request context.
func SetAuthContext(c *gin.Context, authCtx datatypes.AuthContext) {
	c.Set(authContextKey, authCtx)
}

// GetAuthContext returns the identity resolved for this request. The
// zero value (unauthorized, anonymous) comes back when the identity
// middleware did not run.
func GetAuthContext(c *gin.Context) datatypes.AuthContext {
	if v, ok := c.Get(authContextKey); ok {
		if authCtx, ok := v.(datatypes.AuthContext); ok {
			return authCtx
		}
	}
	return datatypes.AuthContext{}
}

type identityEntry struct {
	authCtx   datatypes.AuthContext
	expiresAt time.Time
}

// IdentityProvider resolves a request to an AuthContext.
//
// # Description
//
// Resolution order per request:
//
//  1. An identity remembered against the session cookie by a completed
//     sign-in (the OAuth callback calls Remember).
//  2. Platform principal headers, when the service sits behind App
//     Service authentication.
//  3. Anonymous, authorized only when no allow-lists are configured.
//
// Remembered identities expire with the same TTL as conversation
// mappings so a stale browser re-authenticates rather than keeping an
// old authorization decision alive.
type IdentityProvider struct {
	authorizer *auth.Authorizer
	logger     *slog.Logger
	ttl        time.Duration

	mu         sync.RWMutex
	identities map[string]identityEntry
}

// NewIdentityProvider builds the provider. ttl <= 0 falls back to
// session.DefaultTTL; logger may be nil.
func NewIdentityProvider(authorizer *auth.Authorizer, ttl time.Duration, logger *slog.Logger) *IdentityProvider {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityProvider{
		authorizer: authorizer,
		logger:     logger,
		ttl:        ttl,
		identities: make(map[string]identityEntry),
	}
}

// Remember binds a signed-in identity to the session cookie value.
func (p *IdentityProvider) Remember(sessionID string, authCtx datatypes.AuthContext) {
	if sessionID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[sessionID] = identityEntry{
		authCtx:   authCtx,
		expiresAt: time.Now().Add(p.ttl),
	}
}

// Forget drops a remembered identity, ending the signed-in session.
func (p *IdentityProvider) Forget(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.identities, sessionID)
}

func (p *IdentityProvider) remembered(sessionID string) (datatypes.AuthContext, bool) {
	if sessionID == "" {
		return datatypes.AuthContext{}, false
	}
	p.mu.RLock()
	e, ok := p.identities[sessionID]
	p.mu.RUnlock()
	if !ok {
		return datatypes.AuthContext{}, false
	}
	if time.Now().After(e.expiresAt) {
		p.Forget(sessionID)
		return datatypes.AuthContext{}, false
	}
	return e.authCtx, true
}

// Middleware resolves the request identity and stores it on the gin
// context. It never aborts the request; handlers decide what an
// unauthorized identity may still see.
func (p *IdentityProvider) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, _ := c.Cookie(session.CookieName)

		if authCtx, ok := p.remembered(sessionID); ok {
			SetAuthContext(c, authCtx)
			c.Next()
			return
		}

		if authCtx, ok := p.fromPrincipalHeaders(c); ok {
			SetAuthContext(c, p.authorizer.Authorize(authCtx))
			c.Next()
			return
		}

		SetAuthContext(c, datatypes.AuthContext{
			Authorized: p.authorizer.Open(),
		})
		c.Next()
	}
}

// fromPrincipalHeaders rebuilds an identity from the platform's
// injected principal headers.
func (p *IdentityProvider) fromPrincipalHeaders(c *gin.Context) (datatypes.AuthContext, bool) {
	name := c.GetHeader(headerPrincipalName)
	if name == "" {
		return datatypes.AuthContext{}, false
	}

	authCtx := datatypes.AuthContext{
		PrincipalID:   c.GetHeader(headerPrincipalID),
		PrincipalName: name,
	}

	if blob := c.GetHeader(headerPrincipal); blob != "" {
		display, groups, err := parsePrincipalBlob(blob)
		if err != nil {
			p.logger.Warn("unparseable client principal header", "error", err)
		} else {
			authCtx.DisplayName = display
			authCtx.GroupNames = groups
		}
	}
	return authCtx, true
}

// parsePrincipalBlob decodes the base64 claims document the platform
// attaches and extracts the display name and group claims.
func parsePrincipalBlob(blob string) (displayName string, groups []string, err error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", nil, err
	}

	var doc struct {
		Claims []struct {
			Type  string `json:"typ"`
			Value string `json:"val"`
		} `json:"claims"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", nil, err
	}

	for _, claim := range doc.Claims {
		switch claim.Type {
		case "name":
			displayName = claim.Value
		case "groups":
			groups = append(groups, claim.Value)
		}
	}
	return displayName, groups, nil
}
