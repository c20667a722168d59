// Package retrieval builds bounded source excerpts that explain a diagnostic,
// and assembles them with the diagnostic text into feedback prompts.
package retrieval

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how snippets are chosen.
type Mode string

const (
	// ModeHeuristic takes a window around each reference plus the bodies of methods it calls.
	ModeHeuristic Mode = "heuristic"
	// ModeActive asks a selection service which method bodies to show, falling back to heuristic.
	ModeActive Mode = "active"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHeuristic:
		return ModeHeuristic, nil
	case ModeActive:
		return ModeActive, nil
	}
	return "", fmt.Errorf("unknown retrieval mode %q", s)
}

// LineRef addresses a file and, optionally, a 1-based line in it.
// Line 0 means the whole file.
type LineRef struct {
	File string
	Line int
}

func (r LineRef) String() string {
	if r.Line > 0 {
		return fmt.Sprintf("%s:%d", r.File, r.Line)
	}
	return r.File
}

// Snippet is one numbered excerpt of a project file.
type Snippet struct {
	File      string
	StartLine int
	EndLine   int
	Lines     []string
	Note      string
}

// Render formats the snippet body with line numbers.
func (s Snippet) Render() string {
	var sb strings.Builder
	for i, line := range s.Lines {
		fmt.Fprintf(&sb, "%4d | %s\n", s.StartLine+i, line)
	}
	return sb.String()
}

func (s Snippet) overlaps(other Snippet) bool {
	return s.File == other.File && s.StartLine <= other.EndLine+1 && other.StartLine <= s.EndLine+1
}

// SnippetBundle is the ordered, deduplicated and budgeted set of excerpts for one diagnostic.
type SnippetBundle struct {
	Snippets  []Snippet
	Truncated bool
}

// Empty reports whether the bundle has no excerpts.
func (b SnippetBundle) Empty() bool { return len(b.Snippets) == 0 }

// Render formats the bundle as markdown with numbered excerpts.
func (b SnippetBundle) Render() string {
	var sb strings.Builder
	for i, s := range b.Snippets {
		sb.WriteString(renderBlock(i+1, s))
	}
	return sb.String()
}

func renderBlock(number int, s Snippet) string {
	header := fmt.Sprintf("### Snippet %d: %s (lines %d-%d)", number, s.File, s.StartLine, s.EndLine)
	if s.Note != "" {
		header += " - " + s.Note
	}
	return header + "\n```java\n" + s.Render() + "```\n"
}

// RetrievalError wraps a selection-service failure. It never leaves BuildContext;
// it is only logged before falling back to heuristic selection.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("active retrieval: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// ErrNoSelections is wrapped when the selection service replies with nothing usable.
var ErrNoSelections = errors.New("no usable selections")

const truncationMarker = "\n... [truncated]"

// Truncate cuts text to at most max bytes, marking the cut. It never splits a UTF-8 sequence.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= len(truncationMarker) {
		return validPrefix(text, max)
	}
	return validPrefix(text, max-len(truncationMarker)) + truncationMarker
}

func validPrefix(text string, n int) string {
	if n >= len(text) {
		return text
	}
	// Back up to a rune boundary.
	for n > 0 && (text[n]&0xC0) == 0x80 {
		n--
	}
	return text[:n]
}
