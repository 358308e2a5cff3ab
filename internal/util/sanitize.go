package util

import (
	"regexp"
	"unicode/utf8"
)

// MaxLogValueLen caps caller-supplied values written to the log.
const MaxLogValueLen = 256

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog collapses runs of control characters, newlines included,
// into a single space and truncates the result to MaxLogValueLen runes.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	s = controlChars.ReplaceAllString(s, " ")
	if utf8.RuneCountInString(s) <= MaxLogValueLen {
		return s
	}
	r := []rune(s)
	return string(r[:MaxLogValueLen]) + "..."
}
