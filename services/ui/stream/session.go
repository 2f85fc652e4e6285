// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream implements the response framer for the orchestrator's
// inline wire format.
//
// The orchestrator answers a question as an unbounded sequence of UTF-8
// text fragments with three in-band tokens:
//
//   - An optional leading conversation id: a canonical UUID followed by
//     whitespace at the very start of the stream.
//   - Bracketed document references such as [report.pdf], which must be
//     hidden while streaming and rewritten to download links at the end.
//   - A literal TERMINATE sentinel marking end of turn. Fragment
//     boundaries are arbitrary, so the sentinel may be split across
//     fragments.
//
// The package consumes fragments from a Source, emits clean display text
// to a Sink as early as possible without ever splitting the sentinel
// across two emissions, and reconstructs the final linked text once the
// stream ends.
package stream

import (
	"strings"
	"unicode/utf8"
)

// Sentinel is the literal end-of-turn token embedded in the fragment
// stream. It may arrive split across any number of fragments.
const Sentinel = "TERMINATE"

// sentinelHoldback is the number of trailing bytes withheld from
// emission while streaming. The sentinel could begin anywhere in the
// last len(Sentinel)-1 bytes of the pending buffer and complete in a
// fragment we have not seen yet.
const sentinelHoldback = len(Sentinel) - 1

// Session holds the per-message framing state.
//
// # Description
//
// A Session is created for one inbound user message and mutated
// exclusively by the Controller while the fragment source is active.
// It tracks two parallel accumulations of the reply:
//
//   - clean: references stripped, escapes expanded. This is what was
//     (or will be) streamed to the sink.
//   - raw: escapes expanded but references intact. The finalize link
//     pass runs over this copy, so a reference marker that straddled a
//     fragment boundary and escaped the per-fragment strip pass is
//     still linked in the final text.
//
// # Invariants
//
//   - pending is always a suffix of clean that has not been sent yet.
//   - references holds every marker name seen so far; inserts are
//     idempotent and first-seen order is preserved.
//   - terminated flips to true at most once.
//
// # Thread Safety
//
// Not safe for concurrent use. Each Session is owned by a single
// Controller run; conversations never share state.
type Session struct {
	// ConversationID is empty until extracted from the head of the
	// stream. The first successful extraction wins for the session.
	ConversationID string

	clean   strings.Builder
	raw     strings.Builder
	pending string

	refSet   map[string]struct{}
	refOrder []string

	terminated bool
}

// NewSession creates a Session for one inbound message.
// conversationID may be empty when this is the first turn; it is
// replaced by the id extracted from the stream, if any.
func NewSession(conversationID string) *Session {
	return &Session{
		ConversationID: conversationID,
		refSet:         make(map[string]struct{}),
	}
}

// AppendRaw records an unstripped (but already unescaped) fragment for
// the finalize link pass.
func (s *Session) AppendRaw(text string) {
	s.raw.WriteString(text)
}

// Ingest appends a cleaned fragment to the session and returns the
// longest prefix of buffered text that is safe to emit.
//
// # Description
//
// If the sentinel is now visible in the pending buffer, everything
// before it is returned, the buffer is discarded, and terminated is
// reported. Otherwise everything except the trailing holdback window is
// returned and retained bytes stay pending for the next fragment. The
// emission boundary never lands inside a multi-byte rune: transport
// chunking is byte-oriented, so a fragment can end mid-rune, and each
// emission becomes its own wire event that must be valid UTF-8 on its
// own. A rune straddling the boundary stays pending until it completes.
//
// # Outputs
//
//   - emit: Text safe to send to the sink. May be empty.
//   - terminated: True when the sentinel was found in this call.
func (s *Session) Ingest(cleaned string) (emit string, terminated bool) {
	s.clean.WriteString(cleaned)
	s.pending += cleaned

	if i := strings.Index(s.pending, Sentinel); i >= 0 {
		emit = s.pending[:i]
		s.pending = ""
		s.terminated = true
		return emit, true
	}

	safe := len(s.pending) - sentinelHoldback
	if safe <= 0 {
		return "", false
	}
	// Back off to a rune start so the cut cannot split a multi-byte
	// sequence.
	for safe > 0 && !utf8.RuneStart(s.pending[safe]) {
		safe--
	}
	if safe == 0 {
		return "", false
	}
	emit = s.pending[:safe]
	s.pending = s.pending[safe:]
	return emit, false
}

// addReference records a discovered reference name. Duplicates collapse.
func (s *Session) addReference(name string) {
	if _, seen := s.refSet[name]; seen {
		return
	}
	s.refSet[name] = struct{}{}
	s.refOrder = append(s.refOrder, name)
}

// References returns the discovered reference names in first-seen order.
// The returned slice is a copy.
func (s *Session) References() []string {
	out := make([]string, len(s.refOrder))
	copy(out, s.refOrder)
	return out
}

// CleanText returns the full stripped text accumulated so far.
func (s *Session) CleanText() string { return s.clean.String() }

// RawText returns the full unstripped text accumulated so far.
func (s *Session) RawText() string { return s.raw.String() }

// Pending returns the buffered suffix not yet emitted.
func (s *Session) Pending() string { return s.pending }

// Terminated reports whether the sentinel has been observed.
func (s *Session) Terminated() bool { return s.terminated }

// Finalize produces the final linked text for the sink's replace call.
//
// # Description
//
// Removes every sentinel occurrence from the raw accumulated text,
// records any reference markers the per-fragment strip pass missed
// (markers that straddled fragment boundaries), and rewrites all
// markers into markdown download links under linkPrefix.
func (s *Session) Finalize(linkPrefix string) string {
	full := strings.ReplaceAll(s.raw.String(), Sentinel, "")
	for _, name := range FindReferences(full) {
		s.addReference(name)
	}
	return LinkReferences(full, linkPrefix)
}
