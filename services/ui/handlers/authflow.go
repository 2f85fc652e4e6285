// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
)

// CodeExchanger redeems an authorization code for an authenticated,
// authorization-stamped identity. *auth.OAuthExchanger satisfies it.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (datatypes.AuthContext, error)
}

// AuthFlowHandler completes the interactive sign-in: the identity
// provider redirects the browser here with a code, the handler redeems
// it and binds the identity to the session cookie.
type AuthFlowHandler struct {
	exchanger  CodeExchanger
	identities *middleware.IdentityProvider
	logger     *slog.Logger
}

// NewAuthFlowHandler wires the handler. Panics on nil collaborators.
func NewAuthFlowHandler(exchanger CodeExchanger, identities *middleware.IdentityProvider, logger *slog.Logger) *AuthFlowHandler {
	if exchanger == nil || identities == nil {
		panic("handlers: NewAuthFlowHandler called with nil collaborator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlowHandler{exchanger: exchanger, identities: identities, logger: logger}
}

// HandleCallback handles GET /auth/callback.
func (h *AuthFlowHandler) HandleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	authCtx, err := h.exchanger.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("sign-in failed", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in failed"})
		return
	}

	sid, cookieErr := c.Cookie(session.CookieName)
	if cookieErr != nil || sid == "" {
		sid = uuid.New().String()
		c.SetCookie(session.CookieName, sid, sessionCookieMaxAge, "/", "", false, true)
	}
	h.identities.Remember(sid, authCtx)

	c.Redirect(http.StatusFound, "/")
}

// HandleLogout handles POST /auth/logout.
func (h *AuthFlowHandler) HandleLogout(c *gin.Context) {
	if sid, err := c.Cookie(session.CookieName); err == nil && sid != "" {
		h.identities.Forget(sid)
	}
	c.SetCookie(session.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "signed out"})
}
