// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request, response, and wire types for the
// UI front end service.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MaxQuestionBytes caps a single user question. Byte length, not rune
// count, to bound memory for pathological inputs.
const MaxQuestionBytes = 32 * 1024

// chatValidate is the shared validator for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// ChatRequest is the body of POST /v1/chat/stream and of websocket
// chat frames.
//
// # Fields
//
//   - Question: Required. The user's message, at most 32KB.
//   - ConversationID: Optional. Id returned by a previous turn; empty
//     starts a new conversation. When present it must be a UUID.
type ChatRequest struct {
	Question       string `json:"question" binding:"required" validate:"required,maxbytes"`
	ConversationID string `json:"conversation_id,omitempty" validate:"omitempty,uuid4_rfc4122|uuid_rfc4122"`
}

// Validate checks the request beyond gin's binding tags.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return nil
}

// StreamEvent is one SSE event on the chat stream.
//
// # Description
//
// Events carry incremental display text ("token"), progress notes
// ("status"), failures ("error"), and the final framed reply ("done").
// Every event is stamped with an id, a creation time, and a hash chain
// (Hash over content, PrevHash linking to the prior event) so a client
// can verify nothing was dropped or reordered in transit.
//
// # Fields
//
//   - Type: "token", "status", "error", or "done".
//   - Content: Token text, status message, or error message.
//   - ConversationID: Set on the done event for the next turn.
//   - FinalText: Set on the done event; the linked full reply.
//   - References: Set on the done event; discovered document names.
//   - Id, CreatedAt, Hash, PrevHash: Filled by the SSE writer.
type StreamEvent struct {
	Type           string   `json:"type"`
	Content        string   `json:"content,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	FinalText      string   `json:"final_text,omitempty"`
	References     []string `json:"references,omitempty"`

	Id        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	Hash      string `json:"hash,omitempty"`
	PrevHash  string `json:"prev_hash,omitempty"`
}

// Stream event types.
const (
	StreamEventToken  = "token"
	StreamEventStatus = "status"
	StreamEventError  = "error"
	StreamEventDone   = "done"
)
