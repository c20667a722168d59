package query_engine

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes why a query could not be evaluated.
type ErrorKind string

const (
	// SyntaxError: the source under query does not parse.
	SyntaxError ErrorKind = "syntax_error"
	// NoSuchFile: the selected file is not part of the project.
	NoSuchFile ErrorKind = "no_such_file"
	// InvalidPattern: a stage pattern is malformed for the grammar.
	InvalidPattern ErrorKind = "invalid_pattern"
)

// QueryError is returned when a pipeline cannot be evaluated at all.
// A failed constraint is not a QueryError.
type QueryError struct {
	Kind    ErrorKind
	Stage   int
	Pattern string
	File    string
	Err     error
}

func (e *QueryError) Error() string {
	switch e.Kind {
	case NoSuchFile:
		return fmt.Sprintf("query: no such file %q", e.File)
	case SyntaxError:
		return fmt.Sprintf("query: %s does not parse: %v", e.File, e.Err)
	default:
		return fmt.Sprintf("query: stage %d pattern is invalid: %v", e.Stage, e.Err)
	}
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// AsQueryError extracts a QueryError from err.
func AsQueryError(err error) (*QueryError, bool) {
	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		return queryErr, true
	}
	return nil, false
}
