// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Ingest_HoldsBackSentinelWindow(t *testing.T) {
	s := NewSession("")

	emit, terminated := s.Ingest("Hello, this is a long answer")
	require.False(t, terminated)

	// Everything except the trailing len(Sentinel)-1 bytes is emitted.
	want := "Hello, this is a long answer"[:len("Hello, this is a long answer")-sentinelHoldback]
	assert.Equal(t, want, emit)
	assert.Equal(t, "Hello, this is a long answer", emit+s.Pending())
}

func TestSession_Ingest_ShortFragmentEmitsNothing(t *testing.T) {
	s := NewSession("")

	emit, terminated := s.Ingest("hi")
	assert.False(t, terminated)
	assert.Empty(t, emit)
	assert.Equal(t, "hi", s.Pending())
}

func TestSession_Ingest_SentinelInOneFragment(t *testing.T) {
	s := NewSession("")

	emit, terminated := s.Ingest("before " + Sentinel + " after")
	assert.True(t, terminated)
	assert.Equal(t, "before ", emit)
	assert.Empty(t, s.Pending())
	assert.True(t, s.Terminated())
}

func TestSession_Ingest_SentinelSplitAcrossFragments(t *testing.T) {
	s := NewSession("")

	first, terminated := s.Ingest("answer text TERM")
	require.False(t, terminated)

	// The dangling "TERM" must have been withheld: the safe-flush window
	// keeps at least sentinelHoldback trailing bytes back.
	assert.False(t, strings.Contains(first, "TERM"))
	assert.GreaterOrEqual(t, len(s.Pending()), len("TERM"))

	second, terminated := s.Ingest("INATE rest")
	assert.True(t, terminated)
	assert.Equal(t, "answer text ", first+second)
}

func TestSession_Ingest_SentinelAtBufferStart(t *testing.T) {
	s := NewSession("")

	emit, terminated := s.Ingest(Sentinel)
	assert.True(t, terminated)
	assert.Empty(t, emit)
}

// Emission boundaries must never fall inside a sentinel occurrence, no
// matter how the text is fragmented.
func TestSession_Ingest_NoSplitAcrossAnyFragmentation(t *testing.T) {
	text := "alpha TERMINATE omega"
	for cut := 1; cut < len(text); cut++ {
		s := NewSession("")
		var emitted []string
		for _, frag := range []string{text[:cut], text[cut:]} {
			emit, terminated := s.Ingest(frag)
			if emit != "" {
				emitted = append(emitted, emit)
			}
			if terminated {
				break
			}
		}
		require.True(t, s.Terminated(), "cut=%d", cut)
		for _, e := range emitted {
			assert.NotContains(t, e, Sentinel, "cut=%d", cut)
		}
		assert.Equal(t, "alpha ", strings.Join(emitted, ""), "cut=%d", cut)
	}
}

func TestSession_Ingest_HoldsBackRuneStraddlingFlushBoundary(t *testing.T) {
	s := NewSession("")

	// 13 bytes pending puts the byte-counted flush boundary in the
	// middle of the two-byte é. The emission must stop before it.
	emit, terminated := s.Ingest("xxxxé" + strings.Repeat("y", 7))
	require.False(t, terminated)
	assert.Equal(t, "xxxx", emit)
	assert.True(t, utf8.ValidString(emit))

	// The withheld rune flows out intact once more bytes arrive.
	emit, terminated = s.Ingest(strings.Repeat("z", 8))
	require.False(t, terminated)
	assert.True(t, utf8.ValidString(emit))
	assert.True(t, strings.HasPrefix(emit, "é"))
}

func TestSession_Ingest_RuneSplitAcrossFragments(t *testing.T) {
	s := NewSession("")

	// The transport can split a rune across two fragments; the first
	// half must stay pending rather than being emitted alone.
	emit, terminated := s.Ingest("ab\xc3")
	require.False(t, terminated)
	assert.Empty(t, emit)

	emit, terminated = s.Ingest("\xa9" + strings.Repeat("x", 12))
	require.False(t, terminated)
	assert.True(t, utf8.ValidString(emit))
	assert.True(t, strings.HasPrefix(emit, "abé"))
}

// Every emission must be independently valid UTF-8 for any
// fragmentation of multi-byte text.
func TestSession_Ingest_ValidUTF8AcrossAnyFragmentation(t *testing.T) {
	text := "café costs 5€ today, à bientôt! " + Sentinel
	for cut := 1; cut < len(text); cut++ {
		s := NewSession("")
		var emitted []string
		for _, frag := range []string{text[:cut], text[cut:]} {
			emit, terminated := s.Ingest(frag)
			if emit != "" {
				emitted = append(emitted, emit)
			}
			if terminated {
				break
			}
		}
		require.True(t, s.Terminated(), "cut=%d", cut)
		for _, e := range emitted {
			assert.True(t, utf8.ValidString(e), "cut=%d emit=%q", cut, e)
		}
		assert.Equal(t, "café costs 5€ today, à bientôt! ",
			strings.Join(emitted, ""), "cut=%d", cut)
	}
}

func TestSession_AddReference_Idempotent(t *testing.T) {
	s := NewSession("")
	s.addReference("report.pdf")
	s.addReference("report.pdf")
	s.addReference("other.md")

	assert.Equal(t, []string{"report.pdf", "other.md"}, s.References())
}

func TestSession_Finalize_LinksStraddledMarker(t *testing.T) {
	s := NewSession("")

	// The marker straddles two fragments, so the per-fragment strip pass
	// cannot see it; only the raw accumulation can.
	for _, frag := range []string{"See [rep", "ort.pdf] here. ", Sentinel} {
		s.AppendRaw(frag)
		s.Ingest(StripReferences(frag, s.addReference))
	}

	final := s.Finalize("download")
	assert.Equal(t, "See [report.pdf](/download/report.pdf) here. ", final)
	assert.Equal(t, []string{"report.pdf"}, s.References())
}

func TestSession_Finalize_RemovesSentinelAndLinks(t *testing.T) {
	s := NewSession("")

	frag := "See [report.pdf] for details. " + Sentinel
	s.AppendRaw(frag)
	cleaned := StripReferences(frag, s.addReference)
	assert.Equal(t, "See  for details. "+Sentinel, cleaned)

	final := s.Finalize("download")
	assert.Equal(t, "See [report.pdf](/download/report.pdf) for details. ", final)
}

func TestSession_CleanTextTracksIngestedFragments(t *testing.T) {
	s := NewSession("")
	s.Ingest("one ")
	s.Ingest("two")
	assert.Equal(t, "one two", s.CleanText())
}
