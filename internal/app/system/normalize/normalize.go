// Package normalize canonicalizes user-entered identifiers and names.
package normalize

import "strings"

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and preserves case.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// CommunityName trims and collapses internal runs of whitespace.
func CommunityName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FullName joins first and last name with a single space, skipping blanks.
func FullName(first, last string) string {
	return strings.TrimSpace(Name(first) + " " + Name(last))
}

// Username trims and lowercases a username.
func Username(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
