// Package htmlsanitize cleans user-submitted text before it is stored.
//
// Entry payload fields may carry light rich text and go through Sanitize
// (bluemonday UGC policy). Comments are plain text and go through
// PlainText, which removes all markup.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugc    = bluemonday.UGCPolicy()
	strict = bluemonday.StrictPolicy()
)

// Sanitize removes scripts, event handlers and unsafe URLs while keeping
// ordinary formatting markup.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return ugc.Sanitize(s)
}

// PlainText strips every tag and returns trimmed text. The result is
// unescaped text; renderers must still escape it for HTML.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// IsPlainText reports whether s contains no tag-like sequences.
func IsPlainText(s string) bool {
	return !strings.Contains(s, "<")
}
