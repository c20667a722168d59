package models

import "fmt"

// ConfigError reports a grader that was configured incorrectly. It is raised
// when the grader is built, never from Run.
type ConfigError struct {
	Grader string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s grader: %v", e.Grader, e.Err)
	}
	return fmt.Sprintf("%s grader: invalid %s: %v", e.Grader, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToolchainError reports that an external tool could not be run to completion.
// A compile failure or a failing test is an outcome, not a ToolchainError.
type ToolchainError struct {
	Op       string
	Command  string
	TimedOut bool
	Output   string
	Err      error
}

func (e *ToolchainError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("toolchain %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("toolchain %s failed: %v", e.Op, e.Err)
}

func (e *ToolchainError) Unwrap() error {
	return e.Err
}
