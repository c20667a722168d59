package code_analyzer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSources is wrapped by a DiscoveryError when the root holds no classifiable source files.
	ErrNoSources = errors.New("no classifiable source files found")

	// ErrNoSuchFile is returned when a name cannot be resolved to a project file.
	ErrNoSuchFile = errors.New("no such file in project")
)

// DiscoveryError reports that a project root could not be turned into a Project.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ParseError reports that a file could not be parsed into a clean syntax tree.
// Line and Column are 1-based and point at the first error node the grammar produced.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.File, e.Err)
	}
	if e.Snippet != "" {
		return fmt.Sprintf("parse %s: syntax error at line %d, column %d near %q", e.File, e.Line, e.Column, e.Snippet)
	}
	return fmt.Sprintf("parse %s: syntax error at line %d, column %d", e.File, e.Line, e.Column)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err carries a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
