package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	specialChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Preprocessor normalizes raw input before it reaches a backend.
type Preprocessor struct {
	Lowercase          bool
	RemoveSpecialChars bool
	// MaxInputLength truncates the text to this many bytes. Zero disables it.
	MaxInputLength int
}

// Apply returns the normalized text.
func (p Preprocessor) Apply(text string) string {
	if p.Lowercase {
		text = strings.ToLower(text)
	}
	if p.RemoveSpecialChars {
		text = specialChars.ReplaceAllString(text, "")
	}
	if p.MaxInputLength > 0 && len(text) > p.MaxInputLength {
		text = truncateRunes(text, p.MaxInputLength)
	}
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
