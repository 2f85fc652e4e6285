// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session keeps the browser-session to conversation-id mapping.
//
// The orchestrator threads multi-turn conversations through an opaque
// conversation id it returns at the head of the first reply. The UI
// stores that id against the browser's session cookie so the next
// message in the same tab continues the same conversation. Entries
// expire after a period of inactivity; an expired session simply starts
// a fresh conversation.
package session

import (
	"sync"
	"time"
)

// DefaultTTL is how long an idle conversation mapping is kept.
const DefaultTTL = 2 * time.Hour

// CookieName is the browser cookie carrying the session id.
const CookieName = "gptrag_session"

type entry struct {
	conversationID string
	expiresAt      time.Time
}

// Store is an in-memory TTL map from browser session id to
// conversation id. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore creates a Store and starts its sweep goroutine. ttl <= 0
// falls back to DefaultTTL. Call Close when done.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Get returns the conversation id for sessionID, or "" when the session
// is unknown or expired.
func (s *Store) Get(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sessionID]
	if !ok || time.Now().After(e.expiresAt) {
		return ""
	}
	return e.conversationID
}

// Set stores the conversation id for sessionID and refreshes its TTL.
// An empty conversation id removes the mapping.
func (s *Store) Set(sessionID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID == "" {
		delete(s.entries, sessionID)
		return
	}
	s.entries[sessionID] = entry{
		conversationID: conversationID,
		expiresAt:      time.Now().Add(s.ttl),
	}
}

// Len reports the number of live entries. Expired but unswept entries
// count; Len is for metrics, not correctness.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the sweep goroutine. Idempotent.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// sweep drops expired entries periodically so an abandoned tab does not
// pin its mapping forever.
func (s *Store) sweep() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
