package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOutput(t *testing.T) {
	assert.Equal(t, "a\nb", NormalizeOutput("a  \r\nb\t\r\n\n\n"))
	assert.Equal(t, "  indented", NormalizeOutput("  indented"))
	assert.Equal(t, "", NormalizeOutput("\n\n"))
}

func TestOutputsEqual(t *testing.T) {
	tests := []struct {
		name       string
		expected   string
		actual     string
		ignoreCase bool
		want       bool
	}{
		{"identical", "1\n2\n", "1\n2\n", false, true},
		{"trailing whitespace and CRLF", "1\n2", "1 \r\n2\r\n", false, true},
		{"inner spacing matters", "a b", "a  b", false, false},
		{"case sensitive", "Hello", "hello", false, false},
		{"ignore case", "Hello", "hello", true, true},
		{"different", "1", "2", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputsEqual(tt.expected, tt.actual, tt.ignoreCase))
		})
	}
}

func TestWordDiff(t *testing.T) {
	tests := []struct {
		name       string
		expected   string
		actual     string
		ignoreCase bool
		want       string
	}{
		{"replaced word", "1 2 3", "1 2 4", false, "1 2 [-3-] {+4+}"},
		{"missing word", "sum is 6", "sum 6", false, "sum [-is-] 6"},
		{"extra word", "done", "done now", false, "done {+now+}"},
		{"across lines", "a\nb", "a\nc", false, "a\n[-b-] {+c+}"},
		{"ignore case", "Hello World", "hello world", true, "hello world"},
		{"identical", "x y", "x y", false, "x y"},
		{"scattered edits grouped", "a b c d", "x b y d", false, "[-a-] [-b-] [-c-] {+x+} {+b+} {+y+} d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WordDiff(tt.expected, tt.actual, tt.ignoreCase))
		})
	}
}

func TestWordRune_SkipsSurrogates(t *testing.T) {
	assert.Equal(t, rune(1), wordRune(0))
	r := wordRune(0xD800)
	assert.False(t, r >= 0xD800 && r <= 0xDFFF)
}
