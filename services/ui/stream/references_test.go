// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReferences(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantText string
		wantRefs []string
	}{
		{
			name:     "single pdf marker",
			text:     "See [report.pdf] for details. TERMINATE",
			wantText: "See  for details. TERMINATE",
			wantRefs: []string{"report.pdf"},
		},
		{
			name:     "multiple markers",
			text:     "[a.pdf] and [b.docx] and [c.png]",
			wantText: " and  and ",
			wantRefs: []string{"a.pdf", "b.docx", "c.png"},
		},
		{
			name:     "case-insensitive extension",
			text:     "see [Quarterly Report.PDF]",
			wantText: "see ",
			wantRefs: []string{"Quarterly Report.PDF"},
		},
		{
			name:     "unsupported extension ignored",
			text:     "binary [tool.exe] stays",
			wantText: "binary [tool.exe] stays",
			wantRefs: nil,
		},
		{
			name:     "bracketed text without extension ignored",
			text:     "[not a reference]",
			wantText: "[not a reference]",
			wantRefs: nil,
		},
		{
			name:     "no markers is a no-op",
			text:     "plain text",
			wantText: "plain text",
			wantRefs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var refs []string
			got := StripReferences(tt.text, func(name string) { refs = append(refs, name) })
			assert.Equal(t, tt.wantText, got)
			assert.Equal(t, tt.wantRefs, refs)
		})
	}
}

func TestStripReferences_NilRecord(t *testing.T) {
	got := StripReferences("keep [a.pdf] out", nil)
	assert.Equal(t, "keep  out", got)
}

func TestFindReferences_PreservesOrderAndDuplicates(t *testing.T) {
	refs := FindReferences("[b.pdf] then [a.md] then [b.pdf]")
	assert.Equal(t, []string{"b.pdf", "a.md", "b.pdf"}, refs)
}

func TestLinkReferences(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		prefix string
		want   string
	}{
		{
			name:   "simple name",
			text:   "See [report.pdf] for details. ",
			prefix: "download",
			want:   "See [report.pdf](/download/report.pdf) for details. ",
		},
		{
			name:   "name with spaces is encoded",
			text:   "[annual report.pdf]",
			prefix: "download",
			want:   "[annual report.pdf](/download/annual%20report.pdf)",
		},
		{
			name:   "already-encoded name is normalized",
			text:   "[annual%20report.pdf]",
			prefix: "download",
			want:   "[annual report.pdf](/download/annual%20report.pdf)",
		},
		{
			name:   "prefix slashes trimmed",
			text:   "[a.pdf]",
			prefix: "/files/",
			want:   "[a.pdf](/files/a.pdf)",
		},
		{
			name:   "non-markers untouched",
			text:   "nothing here",
			prefix: "download",
			want:   "nothing here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LinkReferences(tt.text, tt.prefix))
		})
	}
}

// Percent round trip: decoding then re-encoding a name without reserved
// characters reproduces it unchanged.
func TestLinkReferences_EncodeRoundTrip(t *testing.T) {
	name := "plain-file_name.pdf"
	decoded, err := url.PathUnescape(name)
	assert.NoError(t, err)
	assert.Equal(t, name, url.PathEscape(decoded))

	got := LinkReferences("["+name+"]", "download")
	assert.Equal(t, "["+name+"](/download/"+name+")", got)
}
