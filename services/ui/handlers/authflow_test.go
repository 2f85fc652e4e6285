// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/auth"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
)

type fakeExchanger struct {
	authCtx datatypes.AuthContext
	err     error
	gotCode string
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, code string) (datatypes.AuthContext, error) {
	f.gotCode = code
	return f.authCtx, f.err
}

func authFlowRouter(exchanger CodeExchanger) (*gin.Engine, *middleware.IdentityProvider) {
	identities := middleware.NewIdentityProvider(auth.NewAuthorizer(config.AuthConfig{
		AllowedUserPrincipals: []string{"ada@example.com"},
	}), 0, nil)
	h := NewAuthFlowHandler(exchanger, identities, nil)
	r := gin.New()
	r.Use(identities.Middleware())
	r.GET("/auth/callback", h.HandleCallback)
	r.POST("/auth/logout", h.HandleLogout)
	return r, identities
}

func TestHandleCallbackBindsIdentityToSession(t *testing.T) {
	exchanger := &fakeExchanger{authCtx: datatypes.AuthContext{
		Authorized:    true,
		PrincipalName: "ada@example.com",
	}}
	r, identities := authFlowRouter(exchanger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc123", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "abc123", exchanger.gotCode)

	var sid string
	for _, ck := range w.Result().Cookies() {
		if ck.Name == session.CookieName {
			sid = ck.Value
		}
	}
	require.NotEmpty(t, sid)

	// A follow-up request with the cookie resolves the signed-in user.
	probe := gin.New()
	probe.Use(identities.Middleware())
	var seen datatypes.AuthContext
	probe.GET("/probe", func(c *gin.Context) {
		seen = middleware.GetAuthContext(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sid})
	probe.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, seen.Authorized)
	assert.Equal(t, "ada@example.com", seen.PrincipalName)
}

func TestHandleCallbackRejectsMissingCode(t *testing.T) {
	r, _ := authFlowRouter(&fakeExchanger{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	r, _ := authFlowRouter(&fakeExchanger{err: errors.New("bad code")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?code=x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleLogoutForgetsIdentity(t *testing.T) {
	exchanger := &fakeExchanger{authCtx: datatypes.AuthContext{Authorized: true, PrincipalName: "ada@example.com"}}
	r, identities := authFlowRouter(exchanger)
	identities.Remember("sess-9", exchanger.authCtx)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sess-9"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, ok := identityLookup(identities, "sess-9")
	assert.False(t, ok)
}

// identityLookup pokes the provider through its public surface: an
// anonymous request with the cookie should no longer resolve.
func identityLookup(p *middleware.IdentityProvider, sid string) (datatypes.AuthContext, bool) {
	r := gin.New()
	r.Use(p.Middleware())
	var seen datatypes.AuthContext
	r.GET("/probe", func(c *gin.Context) {
		seen = middleware.GetAuthContext(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sid})
	r.ServeHTTP(httptest.NewRecorder(), req)
	return seen, seen.PrincipalName != ""
}
