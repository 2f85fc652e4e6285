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
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/middleware"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/observability"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/stream"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// Same-origin enforcement comes from the upgrader's default
// CheckOrigin.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WebSocketHandler serves the chat over a persistent socket. Each text
// message from the client is one ChatRequest; the reply streams back
// as the same hash-chained events the SSE endpoint emits.
type WebSocketHandler struct {
	streamer   FragmentStreamer
	controller *stream.Controller
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewWebSocketHandler wires the handler. Panics on nil collaborators.
func NewWebSocketHandler(
	streamer FragmentStreamer,
	controller *stream.Controller,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *WebSocketHandler {
	if streamer == nil || controller == nil || metrics == nil {
		panic("handlers: NewWebSocketHandler called with nil collaborator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		streamer:   streamer,
		controller: controller,
		metrics:    metrics,
		logger:     logger,
	}
}

// wsEventWriter emits hash-chained events as JSON text frames.
type wsEventWriter struct {
	conn     *websocket.Conn
	mu       sync.Mutex
	prevHash string
}

func (w *wsEventWriter) writeEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event = stampEvent(event, w.prevHash)
	w.prevHash = event.Hash

	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(event)
}

// wsChatSink adapts the event writer to the controller's Sink, same
// shape as sseChatSink.
type wsChatSink struct {
	writer    *wsEventWriter
	finalText string
}

func (s *wsChatSink) Append(_ context.Context, text string) error {
	return s.writer.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: text,
	})
}

func (s *wsChatSink) Replace(_ context.Context, text string) error {
	s.finalText = text
	return nil
}

// HandleChatSocket handles GET /v1/chat/ws.
func (h *WebSocketHandler) HandleChatSocket(c *gin.Context) {
	authCtx := middleware.GetAuthContext(c)

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.metrics.ActiveStreams.WithLabelValues("ws").Inc()
	defer h.metrics.ActiveStreams.WithLabelValues("ws").Dec()

	writer := &wsEventWriter{conn: conn}
	stopPing := h.startPing(c.Request.Context(), conn)
	defer stopPing()

	// The conversation id lives on the socket: the first reply's id
	// carries every later message on this connection.
	conversationID := ""

	for {
		var req datatypes.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if err := req.Validate(); err != nil {
			if werr := writer.writeEvent(datatypes.StreamEvent{
				Type:    datatypes.StreamEventError,
				Content: err.Error(),
			}); werr != nil {
				return
			}
			continue
		}
		if req.ConversationID != "" {
			conversationID = req.ConversationID
		}

		opener := func(ctx context.Context) (stream.Source, error) {
			src, err := h.streamer.OpenStream(ctx, conversationID, req.Question)
			if err != nil {
				return nil, err
			}
			return &countingSource{Source: src, counter: h.metrics.FragmentsTotal}, nil
		}

		sink := &wsChatSink{writer: writer}
		res, runErr := h.controller.Run(c.Request.Context(), authCtx, conversationID, opener, sink)
		if runErr != nil {
			h.metrics.ErrorsTotal.WithLabelValues("ws", "sink").Inc()
			if errors.Is(runErr, context.Canceled) {
				return
			}
		}
		if res.StreamErr != nil {
			h.metrics.ErrorsTotal.WithLabelValues("ws", "source").Inc()
		}
		if res.Terminated {
			h.metrics.TerminationsTotal.Inc()
		}

		if authCtx.Authorized && runErr == nil {
			conversationID = res.ConversationID
			if err := writer.writeEvent(datatypes.StreamEvent{
				Type:           datatypes.StreamEventDone,
				ConversationID: res.ConversationID,
				FinalText:      res.FinalText,
				References:     res.References,
			}); err != nil {
				return
			}
		}
	}
}

// startPing keeps the socket alive through idle intermediaries.
func (h *WebSocketHandler) startPing(ctx context.Context, conn *websocket.Conn) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(wsWriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
				h.metrics.KeepAlivesTotal.Inc()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}
