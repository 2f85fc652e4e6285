// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
)

// SSEWriter writes chat stream events to an HTTP response in SSE wire
// format (event: type\ndata: json\n\n).
//
// # Description
//
// Each event is stamped with a UUID id, a creation timestamp, a SHA-256
// hash of its content, and the hash of the previous event, forming a
// chain the client can verify. Implementations must be safe for
// concurrent use; the keepalive ticker writes from its own goroutine.
//
// # Assumptions
//
//   - Caller set SSE headers (SetSSEHeaders) before the first write.
//   - The ResponseWriter supports http.Flusher.
type SSEWriter interface {
	// WriteEvent writes one event, filling in id, timestamp, and the
	// hash chain, and flushes immediately.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteToken streams a chunk of display text.
	WriteToken(content string) error

	// WriteStatus streams a progress note (e.g. "Contacting assistant...").
	WriteStatus(message string) error

	// WriteError reports a failure to the client. The stream should be
	// closed afterwards.
	WriteError(errMsg string) error

	// WriteDone closes the turn: carries the conversation id for the
	// next turn, the final linked text that replaces everything
	// streamed so far, and the discovered references.
	WriteDone(conversationID, finalText string, references []string) error

	// WriteKeepAlive sends an SSE comment to keep intermediaries from
	// timing out the connection. Comments are not part of the hash chain.
	WriteKeepAlive() error
}

// sseWriter is the http.ResponseWriter-backed SSEWriter.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter wraps w for SSE event writing. Fails when w cannot
// flush, which would make token streaming pointless.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// stampEvent fills in id, timestamp, and the hash chain for one event.
func stampEvent(event datatypes.StreamEvent, prevHash string) datatypes.StreamEvent {
	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = prevHash
	event.Hash = computeEventHash(event)
	return event
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event = stampEvent(event, w.prevHash)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: content,
	})
}

func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventStatus,
		Content: message,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventError,
		Content: errMsg,
	})
}

func (w *sseWriter) WriteDone(conversationID, finalText string, references []string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:           datatypes.StreamEventDone,
		ConversationID: conversationID,
		FinalText:      finalText,
		References:     references,
	})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEventHash hashes every content field of the event, with the
// Hash field still empty, so the chain covers content, ordering, and
// timestamps.
func computeEventHash(event datatypes.StreamEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.ConversationID,
		event.FinalText,
		strings.Join(event.References, ","),
	)
	sum := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(sum[:])
}

// SetSSEHeaders sets the response headers required for event streaming.
// X-Accel-Buffering disables proxy buffering (nginx) so tokens reach
// the browser as they are written.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
