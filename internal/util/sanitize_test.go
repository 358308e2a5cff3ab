package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"clean", "Mozilla/5.0 (X11; Linux x86_64)", "Mozilla/5.0 (X11; Linux x86_64)"},
		{"forged log line", "alice\nlevel=info msg=\"admin login\"", "alice level=info msg=\"admin login\""},
		{"crlf collapses to one space", "a\r\nb", "a b"},
		{"control run", "ip\x00\x01\x1F10.0.0.1", "ip 10.0.0.1"},
		{"DEL", "a\x7Fb", "a b"},
		{"tab", "a\tb", "a b"},
		{"only control", "\x00\x7F", " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeForLog(tt.input))
		})
	}
}

func TestSanitizeForLog_Truncates(t *testing.T) {
	long := strings.Repeat("é", MaxLogValueLen+10)
	got := SanitizeForLog(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, MaxLogValueLen+3, len([]rune(got)))

	exact := strings.Repeat("a", MaxLogValueLen)
	assert.Equal(t, exact, SanitizeForLog(exact))
}
