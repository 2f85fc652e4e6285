// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
)

// ErrClosed is returned by Source.Next and Source.Close once the source
// has been closed. The controller treats it as benign: draining or
// closing an already-released source is normal during shutdown. Any
// other close error is surfaced to the caller.
var ErrClosed = errors.New("stream: source closed")

// DenialMessage is the fixed reply for unauthorized users. The fragment
// source is never opened in that case.
const DenialMessage = "You are not authorized to use this assistant. " +
	"Please contact your administrator to request access."

// apologyFormat is the user-facing message for a failure while pulling
// from the source. Support asks that the underlying detail be included.
const apologyFormat = "I'm sorry, I had a problem with the request. " +
	"Please report the error to the support team. Error message: %v"

// Source is an ordered, cancelable sequence of text fragments.
//
// # Description
//
// Next returns the next fragment, io.EOF when the source is exhausted,
// or ErrClosed after Close. Fragment boundaries carry no meaning; the
// embedded protocol's tokens may be split anywhere. Close must be safe
// to call multiple times; the second and later calls return ErrClosed.
type Source interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Sink receives the framed reply.
//
// Append streams a chunk of display text; Replace swaps the entire
// visible content for the final linked text once the stream ends.
type Sink interface {
	Append(ctx context.Context, text string) error
	Replace(ctx context.Context, text string) error
}

// SourceOpener opens the fragment source for one message. The
// controller calls it at most once, and never for unauthorized users.
type SourceOpener func(ctx context.Context) (Source, error)

// state tracks the controller's position in the stream lifecycle.
type state int

const (
	stateStarting state = iota
	stateStreaming
	stateTerminatingDrain
	stateFinalizing
	stateDone
	stateErrored
)

func (s state) String() string {
	switch s {
	case stateStarting:
		return "STARTING"
	case stateStreaming:
		return "STREAMING"
	case stateTerminatingDrain:
		return "TERMINATING_DRAIN"
	case stateFinalizing:
		return "FINALIZING"
	case stateDone:
		return "DONE"
	case stateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Result reports what one controller run produced, for the caller to
// persist and log.
type Result struct {
	// ConversationID is the id extracted from the stream head, or the
	// caller's input id when the stream never carried one.
	ConversationID string

	// References are the document names discovered in the reply, in
	// first-seen order with duplicates collapsed.
	References []string

	// FinalText is the linked text handed to Sink.Replace. Empty for a
	// denied run.
	FinalText string

	// Terminated is true when the sentinel was observed.
	Terminated bool

	// StreamErr is the source failure that interrupted streaming, if
	// any. It was already surfaced to the user as an apology; it is
	// recorded here for diagnostics only.
	StreamErr error
}

// Controller drives one message's fragment stream through the framing
// pipeline: conversation-id extraction, escape expansion, reference
// stripping, sentinel-safe flushing, and the finalize link pass.
//
// A Controller is stateless and safe to share; all per-message state
// lives in the Session it creates. Conversations are processed
// single-flight: one fragment is fully cleaned, buffered, and emitted
// before the next is pulled.
type Controller struct {
	linkPrefix string
	logger     *slog.Logger
}

// NewController creates a Controller that builds download links under
// linkPrefix (e.g. "download"). logger may be nil for slog's default.
func NewController(linkPrefix string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{linkPrefix: linkPrefix, logger: logger}
}

// Run processes one inbound user message end to end.
//
// # Description
//
// Run primes the sink, opens the fragment source, and loops: extract a
// leading conversation id (first hit wins for the session), expand
// literal \n escapes, strip reference markers, and flush through the
// sentinel-safe buffer. When the sentinel appears the remaining
// fragments are drained untouched so the upstream call can finish
// naturally. A source failure is converted once into a user-facing
// apology and the run still finalizes. Finalize closes the source
// (ErrClosed is swallowed), rewrites the full raw text with download
// links, and replaces the sink content.
//
// # Inputs
//
//   - ctx: Cancels source pulls and sink writes. Close is still
//     attempted after cancellation so the upstream call is released.
//   - auth: Resolved identity facts. When auth.Authorized is false the
//     sink receives exactly DenialMessage and open is never called.
//   - conversationID: Id from the previous turn, empty for a new
//     conversation.
//   - open: Opens the fragment source. Called at most once.
//   - sink: Receives incremental appends and the final replace.
//
// # Outputs
//
//   - *Result: Always non-nil, even on error paths.
//   - error: Non-nil only for failures the user could not be told
//     about (sink write failures, a non-benign source close error).
func (c *Controller) Run(
	ctx context.Context,
	auth datatypes.AuthContext,
	conversationID string,
	open SourceOpener,
	sink Sink,
) (*Result, error) {
	sess := NewSession(conversationID)

	if !auth.Authorized {
		c.logger.Info("chat denied",
			"principal_id", auth.PrincipalID,
			"principal_name", auth.PrincipalName,
		)
		if err := sink.Append(ctx, DenialMessage); err != nil {
			return &Result{ConversationID: conversationID}, fmt.Errorf("write denial: %w", err)
		}
		return &Result{ConversationID: conversationID}, nil
	}

	st := stateStarting

	// Prime the sink so the UI shows activity before the first token.
	if err := sink.Append(ctx, " "); err != nil {
		return &Result{ConversationID: conversationID}, fmt.Errorf("prime sink: %w", err)
	}

	source, err := open(ctx)
	if err != nil {
		// Opening failed before any fragment arrived. Same policy as a
		// mid-stream source failure: apologize and finish.
		return c.failWithoutSource(ctx, sess, sink, err)
	}

	c.transition(&st, stateStreaming)
	var streamErr error

loop:
	for {
		fragment, err := source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			break loop
		case err != nil:
			streamErr = err
			c.transition(&st, stateErrored)
			break loop
		}

		if sess.ConversationID == "" {
			if id, rest := ExtractConversationID(fragment); id != "" {
				sess.ConversationID = id
				fragment = rest
				c.logger.Info("extracted conversation id", "conversation_id", id)
			}
		}

		// The wire format escapes newlines as the two-character
		// sequence \n. Expand before any other processing.
		fragment = strings.ReplaceAll(fragment, `\n`, "\n")

		sess.AppendRaw(fragment)
		cleaned := StripReferences(fragment, sess.addReference)

		emit, terminated := sess.Ingest(cleaned)
		if emit != "" {
			if err := sink.Append(ctx, emit); err != nil {
				streamErr = err
				c.transition(&st, stateErrored)
				break loop
			}
		}
		if terminated {
			c.transition(&st, stateTerminatingDrain)
			c.drain(ctx, source)
			break loop
		}
	}

	if st == stateErrored {
		apology := fmt.Sprintf(apologyFormat, streamErr)
		c.logger.Error("stream failed", "error", streamErr, "conversation_id", sess.ConversationID)
		// Keep the apology in the accumulated text so the finalize
		// replace does not erase it from the visible message.
		sess.AppendRaw(apology)
		sess.Ingest(apology)
		if err := sink.Append(ctx, apology); err != nil {
			c.logger.Warn("could not deliver apology", "error", err)
		}
	}

	c.transition(&st, stateFinalizing)
	closeErr := source.Close()
	if errors.Is(closeErr, ErrClosed) {
		closeErr = nil
	}

	final := sess.Finalize(c.linkPrefix)
	res := &Result{
		ConversationID: sess.ConversationID,
		References:     sess.References(),
		FinalText:      final,
		Terminated:     sess.Terminated(),
		StreamErr:      streamErr,
	}

	if err := sink.Replace(ctx, final); err != nil {
		return res, fmt.Errorf("finalize sink: %w", err)
	}
	if closeErr != nil {
		return res, fmt.Errorf("close fragment source: %w", closeErr)
	}
	c.transition(&st, stateDone)
	return res, nil
}

// transition advances the lifecycle state, logging the edge at debug.
func (c *Controller) transition(st *state, to state) {
	c.logger.Debug("stream state", "from", st.String(), "to", to.String())
	*st = to
}

// failWithoutSource handles an open failure: the apology is both
// streamed and kept as the final content, since there is nothing else.
func (c *Controller) failWithoutSource(ctx context.Context, sess *Session, sink Sink, cause error) (*Result, error) {
	apology := fmt.Sprintf(apologyFormat, cause)
	c.logger.Error("could not open fragment source", "error", cause)
	sess.AppendRaw(apology)
	sess.Ingest(apology)
	if err := sink.Append(ctx, apology); err != nil {
		return &Result{ConversationID: sess.ConversationID, StreamErr: cause},
			fmt.Errorf("write apology: %w", err)
	}
	final := sess.Finalize(c.linkPrefix)
	res := &Result{
		ConversationID: sess.ConversationID,
		References:     sess.References(),
		FinalText:      final,
		StreamErr:      cause,
	}
	if err := sink.Replace(ctx, final); err != nil {
		return res, fmt.Errorf("finalize sink: %w", err)
	}
	return res, nil
}

// drain pulls and discards fragments after the sentinel so the upstream
// call can complete or cancel cleanly. Errors during drain, including
// the source's own failure, are deliberately ignored.
func (c *Controller) drain(ctx context.Context, source Source) {
	for {
		if _, err := source.Next(ctx); err != nil {
			return
		}
	}
}
