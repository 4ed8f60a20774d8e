package sanitize

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "alice", "alice"},
		{"trimmed", "  bob  ", "bob"},
		{"allowed punctuation", "jo-hn_d.oe", "jo-hn_d.oe"},
		{"inner whitespace kept", "Ada Lovelace", "Ada Lovelace"},
		{"disallowed stripped", "<script>eve</script>", "scriptevescript"},
		{"unicode letters kept", "Zoë Müller", "Zoë Müller"},
		{"empty", "", FallbackUsername},
		{"whitespace only", "   ", FallbackUsername},
		{"symbols only", "@#$%^&*", FallbackUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Username(tt.input))
		})
	}
}

func TestUsernameLongInputCapped(t *testing.T) {
	got := Username(strings.Repeat("a", 200))
	assert.Len(t, []rune(got), 50)
}

func TestUsernameOnlyAllowedClasses(t *testing.T) {
	got := Username("a!b@c#d$e%f^g&h*i(j)k ~` [weird] {input} 12-3_4.5")
	for _, r := range got {
		ok := unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) ||
			r == '-' || r == '_' || r == '.'
		assert.True(t, ok, "disallowed rune %q survived", r)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"trimmed", "  hi there \n", "hi there"},
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"markup preserved", "<b>bold</b>", "<b>bold</b>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.input))
		})
	}
}

func TestMessageLongInputCapped(t *testing.T) {
	got := Message(strings.Repeat("x", 5000))
	assert.Len(t, []rune(got), 1000)
}
