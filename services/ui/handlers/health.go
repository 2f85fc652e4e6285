// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
)

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	sessions *session.Store
}

func NewHealthHandler(sessions *session.Store) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.sessions != nil {
		body["active_sessions"] = h.sessions.Len()
	}
	c.JSON(http.StatusOK, body)
}
