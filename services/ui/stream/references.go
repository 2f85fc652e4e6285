// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// supportedExtensions is the allow-list of downloadable file types the
// orchestrator may reference inline. Matching is case-insensitive.
var supportedExtensions = []string{
	// documents
	"pdf", "doc", "docx", "ppt", "pptx", "xls", "xlsx", "rtf",
	// text and markup
	"txt", "md", "htm", "html", "xml",
	// data
	"csv", "json", "yaml", "yml",
	// images
	"png", "jpg", "jpeg", "gif", "bmp", "webp", "svg", "tif", "tiff",
}

// referencePattern matches a bracketed reference marker [name.ext] where
// ext is on the allow-list and name is any run of non-"]" characters.
// Matching is non-greedy per bracket pair, first match wins left to
// right; a name that itself resembles a marker boundary gets no special
// handling.
var referencePattern = regexp.MustCompile(
	`(?i)\[([^\]]+\.(?:` + strings.Join(supportedExtensions, `|`) + `))\]`)

// FindReferences returns the reference names present in text, in order
// of appearance. Duplicates are preserved; callers wanting set semantics
// deduplicate on insert.
func FindReferences(text string) []string {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// StripReferences removes every reference marker from text, reporting
// each captured name through record.
//
// # Description
//
// This is the per-fragment streaming pass: the bracketed markers are
// presentation noise while tokens are flowing, so they are recorded for
// later linking and removed (brackets included) from the streamed copy.
// record may be nil when only the stripped text is wanted.
func StripReferences(text string, record func(name string)) string {
	if record != nil {
		for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
			record(m[1])
		}
	}
	return referencePattern.ReplaceAllString(text, "")
}

// LinkReferences rewrites every reference marker in text into a
// markdown link under linkPrefix.
//
// # Description
//
// This is the finalize pass, run once over the complete unstripped
// text. The visible link text is the percent-decoded reference name and
// the target is "/<linkPrefix>/<re-encoded name>". Decoding before
// re-encoding normalizes names the upstream already encoded, so the
// emitted URL is well-formed regardless of what the orchestrator sent.
//
// # Examples
//
//	LinkReferences("See [report.pdf].", "download")
//	// "See [report.pdf](/download/report.pdf)."
func LinkReferences(text, linkPrefix string) string {
	prefix := strings.Trim(linkPrefix, "/")
	return referencePattern.ReplaceAllStringFunc(text, func(marker string) string {
		name := marker[1 : len(marker)-1]
		decoded, err := url.PathUnescape(name)
		if err != nil {
			// Not valid percent-encoding; treat the name as literal.
			decoded = name
		}
		return fmt.Sprintf("[%s](/%s/%s)", decoded, prefix, url.PathEscape(decoded))
	})
}
