// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import "regexp"

// conversationIDPattern matches a canonical 8-4-4-4-12 UUID at the start
// of a fragment (leading whitespace permitted) followed by at least one
// whitespace character. Anchoring at the start keeps mid-fragment UUIDs
// in the reply text from being mistaken for the conversation id.
var conversationIDPattern = regexp.MustCompile(
	`^\s*([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\s+`)

// ExtractConversationID pulls a leading conversation-id token off a
// fragment.
//
// # Description
//
// The orchestrator prefixes the very first fragment of a new
// conversation with "<uuid> " so the caller can thread subsequent turns.
// On a match the UUID and the fragment with the whole matched prefix
// (UUID plus the triggering whitespace run) removed are returned. A
// non-matching fragment is returned unchanged with an empty id; there
// is no failure mode.
//
// # Examples
//
//	id, rest := ExtractConversationID("123e4567-e89b-12d3-a456-426614174000 Hello")
//	// id = "123e4567-e89b-12d3-a456-426614174000", rest = "Hello"
func ExtractConversationID(fragment string) (id, remainder string) {
	loc := conversationIDPattern.FindStringSubmatchIndex(fragment)
	if loc == nil {
		return "", fragment
	}
	return fragment[loc[2]:loc[3]], fragment[loc[1]:]
}
