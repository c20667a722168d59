package utils

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var wordPattern = regexp.MustCompile(`\S+|\n`)

// NormalizeOutput trims trailing whitespace on every line and at the end of the text,
// and folds CRLF into LF.
func NormalizeOutput(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// OutputsEqual compares two program outputs after normalization.
func OutputsEqual(expected, actual string, ignoreCase bool) bool {
	expected, actual = NormalizeOutput(expected), NormalizeOutput(actual)
	if ignoreCase {
		return strings.EqualFold(expected, actual)
	}
	return expected == actual
}

// WordDiff renders an inline word-granularity diff of actual against expected.
// Removed words are wrapped as [-word-] and added words as {+word+}.
func WordDiff(expected, actual string, ignoreCase bool) string {
	expectedWords := wordPattern.FindAllString(NormalizeOutput(expected), -1)
	actualWords := wordPattern.FindAllString(NormalizeOutput(actual), -1)

	// Each distinct word becomes one rune so the character diff runs on words.
	index := make(map[string]rune)
	var words []string
	encode := func(tokens []string) []rune {
		runes := make([]rune, len(tokens))
		for i, token := range tokens {
			key := token
			if ignoreCase {
				key = strings.ToLower(token)
			}
			r, ok := index[key]
			if !ok {
				r = wordRune(len(words))
				index[key] = r
				words = append(words, key)
			}
			runes[i] = r
		}
		return runes
	}
	expectedRunes := encode(expectedWords)
	actualRunes := encode(actualWords)

	dmp := diffmatchpatch.New()
	// Semantic cleanup folds short coincidental matches into the surrounding
	// edits so a rewritten line reads as one replacement.
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMainRunes(expectedRunes, actualRunes, false))

	var sb strings.Builder
	ei, ai := 0, 0
	lineStart := true
	write := func(token, open, close string) {
		if token == "\n" {
			sb.WriteString("\n")
			lineStart = true
			return
		}
		if !lineStart {
			sb.WriteString(" ")
		}
		lineStart = false
		sb.WriteString(open)
		sb.WriteString(token)
		sb.WriteString(close)
	}
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for i := 0; i < n; i++ {
				write(actualWords[ai], "", "")
				ei++
				ai++
			}
		case diffmatchpatch.DiffDelete:
			for i := 0; i < n; i++ {
				write(expectedWords[ei], "[-", "-]")
				ei++
			}
		case diffmatchpatch.DiffInsert:
			for i := 0; i < n; i++ {
				write(actualWords[ai], "{+", "+}")
				ai++
			}
		}
	}
	return sb.String()
}

// wordRune maps a word index onto a valid rune, skipping the surrogate range.
func wordRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}
