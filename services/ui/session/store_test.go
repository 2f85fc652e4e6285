// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_SetAndGet(t *testing.T) {
	s := NewStore(time.Hour)
	defer s.Close()

	s.Set("sess-1", "conv-1")
	assert.Equal(t, "conv-1", s.Get("sess-1"))
	assert.Equal(t, "", s.Get("sess-unknown"))
}

func TestStore_SetOverwrites(t *testing.T) {
	s := NewStore(time.Hour)
	defer s.Close()

	s.Set("sess-1", "conv-1")
	s.Set("sess-1", "conv-2")
	assert.Equal(t, "conv-2", s.Get("sess-1"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_EmptyConversationIDRemoves(t *testing.T) {
	s := NewStore(time.Hour)
	defer s.Close()

	s.Set("sess-1", "conv-1")
	s.Set("sess-1", "")
	assert.Equal(t, "", s.Get("sess-1"))
	assert.Equal(t, 0, s.Len())
}

func TestStore_ExpiredEntryNotReturned(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	defer s.Close()

	s.Set("sess-1", "conv-1")
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, "", s.Get("sess-1"))
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := NewStore(time.Hour)
	s.Close()
	s.Close()
}
