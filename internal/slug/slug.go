// Package slug maps jokes to URL-friendly identifiers and back.
package slug

import (
	"regexp"
	"strings"

	"viola-joke/internal/models"
)

const maxPrefixRunes = 60

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-+`)
)

// Encode builds "<readable-prefix>-<id>". The prefix is cosmetic; only the
// trailing id is used for lookup.
func Encode(j models.Joke) string {
	prefix := strings.ToLower(j.Content)
	if r := []rune(prefix); len(r) > maxPrefixRunes {
		prefix = string(r[:maxPrefixRunes])
	}
	prefix = nonWord.ReplaceAllString(prefix, "")
	prefix = whitespace.ReplaceAllString(prefix, "-")
	prefix = hyphens.ReplaceAllString(prefix, "-")
	prefix = strings.Trim(prefix, "-")

	if prefix == "" {
		return j.ID
	}
	return prefix + "-" + j.ID
}

// Decode returns the id carried by the final hyphen-separated segment.
func Decode(s string) string {
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		return s[i+1:]
	}
	return s
}
