// Package sanitize normalizes untrusted text input before it is stored or
// relayed to other participants.
package sanitize

import (
	"strings"
	"unicode"
)

const (
	maxUsernameRunes = 50
	maxMessageRunes  = 1000

	// FallbackUsername is substituted when nothing usable survives
	// username sanitization.
	FallbackUsername = "Anonymous"
)

// Username trims the input, strips every character outside letters, digits,
// whitespace, hyphen, underscore and period, and caps the result at 50 runes.
// Input that is empty after sanitization yields FallbackUsername.
func Username(input string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(input) {
		if allowedInUsername(r) {
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return FallbackUsername
	}
	return truncate(out, maxUsernameRunes)
}

// Message trims the input and caps it at 1000 runes. Callers must treat an
// empty result as "do not relay".
func Message(input string) string {
	return truncate(strings.TrimSpace(input), maxMessageRunes)
}

func allowedInUsername(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
