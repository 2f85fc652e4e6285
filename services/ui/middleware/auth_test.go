// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/auth"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// identityRouter wires the middleware in front of a probe handler that
// reports the resolved identity.
func identityRouter(p *IdentityProvider) (*gin.Engine, *datatypes.AuthContext) {
	var seen datatypes.AuthContext
	r := gin.New()
	r.Use(p.Middleware())
	r.GET("/probe", func(c *gin.Context) {
		seen = GetAuthContext(c)
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func TestIdentityMiddlewareAnonymousFollowsOpenPolicy(t *testing.T) {
	open := NewIdentityProvider(auth.NewAuthorizer(config.AuthConfig{}), 0, nil)
	r, seen := identityRouter(open)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.True(t, seen.Authorized)
	assert.Empty(t, seen.PrincipalName)

	closed := NewIdentityProvider(auth.NewAuthorizer(config.AuthConfig{
		AllowedUserPrincipals: []string{"ada@example.com"},
	}), 0, nil)
	r, seen = identityRouter(closed)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.False(t, seen.Authorized)
}

func TestIdentityMiddlewareRemembersSignIn(t *testing.T) {
	p := NewIdentityProvider(auth.NewAuthorizer(config.AuthConfig{
		AllowedUserPrincipals: []string{"ada@example.com"},
	}), time.Minute, nil)
	p.Remember("sess-1", datatypes.AuthContext{
		Authorized:    true,
		PrincipalName: "ada@example.com",
	})

	r, seen := identityRouter(p)
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sess-1"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, seen.Authorized)
	assert.Equal(t, "ada@example.com", seen.PrincipalName)

	p.Forget("sess-1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, seen.Authorized)
}

func TestIdentityMiddlewareReadsPrincipalHeaders(t *testing.T) {
	p := NewIdentityProvider(auth.NewAuthorizer(config.AuthConfig{
		AllowedGroupNames: []string{"Assistant Users"},
	}), 0, nil)

	blob := base64.StdEncoding.EncodeToString([]byte(`{
		"claims": [
			{"typ": "name", "val": "Ada Lovelace"},
			{"typ": "groups", "val": "Assistant Users"},
			{"typ": "aud", "val": "ignored"}
		]
	}`))

	r, seen := identityRouter(p)
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-MS-CLIENT-PRINCIPAL-NAME", "ada@example.com")
	req.Header.Set("X-MS-CLIENT-PRINCIPAL-ID", "oid-1")
	req.Header.Set("X-MS-CLIENT-PRINCIPAL", blob)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, seen.Authorized)
	assert.Equal(t, "oid-1", seen.PrincipalID)
	assert.Equal(t, "Ada Lovelace", seen.DisplayName)
	assert.Equal(t, []string{"Assistant Users"}, seen.GroupNames)
}

func TestParsePrincipalBlobRejectsGarbage(t *testing.T) {
	_, _, err := parsePrincipalBlob("not base64!")
	require.Error(t, err)

	_, _, err = parsePrincipalBlob(base64.StdEncoding.EncodeToString([]byte("not json")))
	require.Error(t, err)
}
