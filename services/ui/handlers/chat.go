// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin HTTP handlers for the UI service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/observability"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/session"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/stream"
)

// defaultKeepAliveInterval paces SSE comments so idle proxies keep the
// connection open while the orchestrator thinks.
const defaultKeepAliveInterval = 15 * time.Second

// sessionCookieMaxAge matches the conversation mapping TTL.
const sessionCookieMaxAge = int(session.DefaultTTL / time.Second)

// FragmentStreamer opens the upstream reply stream for one message.
// *services.OrchestratorClient satisfies it.
type FragmentStreamer interface {
	OpenStream(ctx context.Context, conversationID, question string) (stream.Source, error)
}

// ChatHandler serves the chat endpoints: SSE streaming of assistant
// replies, with the conversation id threaded through the browser
// session.
type ChatHandler struct {
	streamer   FragmentStreamer
	controller *stream.Controller
	sessions   *session.Store
	metrics    *observability.Metrics
	logger     *slog.Logger

	keepAliveInterval time.Duration
}

// NewChatHandler wires the handler. Panics on nil collaborators; this
// is a wiring error, not a runtime condition.
func NewChatHandler(
	streamer FragmentStreamer,
	controller *stream.Controller,
	sessions *session.Store,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *ChatHandler {
	if streamer == nil || controller == nil || sessions == nil || metrics == nil {
		panic("handlers: NewChatHandler called with nil collaborator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		streamer:          streamer,
		controller:        controller,
		sessions:          sessions,
		metrics:           metrics,
		logger:            logger,
		keepAliveInterval: defaultKeepAliveInterval,
	}
}

// sseChatSink adapts an SSEWriter to the controller's Sink. Appends
// become token events; the final replace is captured and emitted by
// the handler as the single done event.
type sseChatSink struct {
	writer    SSEWriter
	finalText string
	replaced  bool
}

func (s *sseChatSink) Append(_ context.Context, text string) error {
	return s.writer.WriteToken(text)
}

func (s *sseChatSink) Replace(_ context.Context, text string) error {
	s.finalText = text
	s.replaced = true
	return nil
}

// HandleChatStream handles POST /v1/chat/stream.
//
// # Description
//
// Validates the request, resolves the conversation id (explicit in the
// request, else remembered against the session cookie), then streams
// the framed reply: one status event while the orchestrator is
// contacted, SSE token events, and one done event carrying the
// conversation id, the final linked text, and the references. A run
// that cannot finish cleanly gets an error event instead of the done
// event. Unauthorized users receive the fixed denial text and no done
// event.
func (h *ChatHandler) HandleChatStream(c *gin.Context) {
	start := time.Now()

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RequestsTotal.WithLabelValues("chatstream", "bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RequestsTotal.WithLabelValues("chatstream", "bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authCtx := middleware.GetAuthContext(c)
	sessionID := h.ensureSessionCookie(c)

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = h.sessions.Get(sessionID)
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.metrics.RequestsTotal.WithLabelValues("chatstream", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	h.metrics.ActiveStreams.WithLabelValues("chatstream").Inc()
	defer h.metrics.ActiveStreams.WithLabelValues("chatstream").Dec()

	stopKeepAlive := h.startKeepAlive(c.Request.Context(), writer)
	defer stopKeepAlive()

	if authCtx.Authorized {
		if err := writer.WriteStatus("Generating response..."); err != nil {
			h.logger.Warn("could not write status event", "error", err)
		}
	}

	opener := func(ctx context.Context) (stream.Source, error) {
		src, err := h.streamer.OpenStream(ctx, conversationID, req.Question)
		if err != nil {
			return nil, err
		}
		return &countingSource{Source: src, counter: h.metrics.FragmentsTotal}, nil
	}

	sink := &sseChatSink{writer: writer}
	res, runErr := h.controller.Run(c.Request.Context(), authCtx, conversationID, opener, sink)

	status := "ok"
	switch {
	case !authCtx.Authorized:
		status = "denied"
	case runErr != nil || res.StreamErr != nil:
		status = "error"
	}

	if runErr != nil {
		h.metrics.ErrorsTotal.WithLabelValues("chatstream", "sink").Inc()
		h.logger.Error("chat stream aborted", "error", runErr, "conversation_id", res.ConversationID)
		// Best effort: the turn will not finish with a done event, so
		// tell the client why if it is still listening.
		if werr := writer.WriteError("The stream was interrupted. Please try again."); werr != nil {
			h.logger.Debug("could not write error event", "error", werr)
		}
	}
	if res.StreamErr != nil {
		h.metrics.ErrorsTotal.WithLabelValues("chatstream", "source").Inc()
	}
	if res.Terminated {
		h.metrics.TerminationsTotal.Inc()
	}

	if authCtx.Authorized && runErr == nil {
		h.sessions.Set(sessionID, res.ConversationID)
		if err := writer.WriteDone(res.ConversationID, res.FinalText, res.References); err != nil {
			h.logger.Warn("could not write done event", "error", err)
		}
	}

	h.metrics.RequestsTotal.WithLabelValues("chatstream", status).Inc()
	h.metrics.StreamDurationSeconds.WithLabelValues("chatstream", status).Observe(time.Since(start).Seconds())
}

// ensureSessionCookie returns the browser session id, minting and
// setting one when absent.
func (h *ChatHandler) ensureSessionCookie(c *gin.Context) string {
	if sid, err := c.Cookie(session.CookieName); err == nil && sid != "" {
		return sid
	}
	sid := uuid.New().String()
	c.SetCookie(session.CookieName, sid, sessionCookieMaxAge, "/", "", false, true)
	return sid
}

// startKeepAlive writes SSE comments on a ticker until the returned
// stop function is called or ctx ends.
func (h *ChatHandler) startKeepAlive(ctx context.Context, writer SSEWriter) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
				h.metrics.KeepAlivesTotal.Inc()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// countingSource wraps a Source to count delivered fragments.
type countingSource struct {
	stream.Source
	counter interface{ Inc() }
}

func (s *countingSource) Next(ctx context.Context) (string, error) {
	frag, err := s.Source.Next(ctx)
	if err == nil {
		s.counter.Inc()
	}
	return frag, err
}
