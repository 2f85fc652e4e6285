// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractConversationID(t *testing.T) {
	tests := []struct {
		name          string
		fragment      string
		wantID        string
		wantRemainder string
	}{
		{
			name:          "uuid followed by text",
			fragment:      "123e4567-e89b-12d3-a456-426614174000 Hello",
			wantID:        "123e4567-e89b-12d3-a456-426614174000",
			wantRemainder: "Hello",
		},
		{
			name:          "leading whitespace permitted",
			fragment:      "  \t123e4567-e89b-12d3-a456-426614174000\nreply",
			wantID:        "123e4567-e89b-12d3-a456-426614174000",
			wantRemainder: "reply",
		},
		{
			name:          "uppercase hex accepted",
			fragment:      "123E4567-E89B-12D3-A456-426614174000 ok",
			wantID:        "123E4567-E89B-12D3-A456-426614174000",
			wantRemainder: "ok",
		},
		{
			name:          "whitespace run after uuid removed entirely",
			fragment:      "123e4567-e89b-12d3-a456-426614174000   spaced",
			wantID:        "123e4567-e89b-12d3-a456-426614174000",
			wantRemainder: "spaced",
		},
		{
			name:          "no trailing whitespace means no match",
			fragment:      "123e4567-e89b-12d3-a456-426614174000",
			wantID:        "",
			wantRemainder: "123e4567-e89b-12d3-a456-426614174000",
		},
		{
			name:          "uuid mid-fragment is not extracted",
			fragment:      "id is 123e4567-e89b-12d3-a456-426614174000 here",
			wantID:        "",
			wantRemainder: "id is 123e4567-e89b-12d3-a456-426614174000 here",
		},
		{
			name:          "malformed uuid left alone",
			fragment:      "123e4567-e89b-12d3-a456-42661417400 short",
			wantID:        "",
			wantRemainder: "123e4567-e89b-12d3-a456-42661417400 short",
		},
		{
			name:          "plain text unchanged",
			fragment:      "Hello there",
			wantID:        "",
			wantRemainder: "Hello there",
		},
		{
			name:          "empty fragment",
			fragment:      "",
			wantID:        "",
			wantRemainder: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, remainder := ExtractConversationID(tt.fragment)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantRemainder, remainder)
		})
	}
}
