// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/handlers"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
)

// Handlers carries the wired handler set. AuthFlow and Documents may
// be nil when the deployment runs without interactive sign-in or a
// document container; their routes are simply not registered.
type Handlers struct {
	Chat      *handlers.ChatHandler
	WebSocket *handlers.WebSocketHandler
	Documents *handlers.DocumentHandler
	AuthFlow  *handlers.AuthFlowHandler
	Health    *handlers.HealthHandler
}

// SetupRoutes registers every route on the router. The identity
// middleware runs on everything; the rate limiter only guards the
// chat endpoints, downloads are already bounded by blob throughput.
func SetupRoutes(router *gin.Engine, identities *middleware.IdentityProvider,
	limiter *middleware.RateLimiter, h Handlers) {

	router.Use(identities.Middleware())

	router.GET("/health", h.Health.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(limiter.Middleware())
	{
		v1.POST("/chat/stream", h.Chat.HandleChatStream)
		v1.GET("/chat/ws", h.WebSocket.HandleChatSocket)
	}

	if h.Documents != nil {
		router.GET("/download/:name", h.Documents.HandleDownload)
	}

	if h.AuthFlow != nil {
		router.GET("/auth/callback", h.AuthFlow.HandleCallback)
		router.POST("/auth/logout", h.AuthFlow.HandleLogout)
	}

	// The front end is a static bundle served from the container image.
	router.StaticFS("/ui", http.Dir("/app/ui"))
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/ui/index.html")
	})
}
