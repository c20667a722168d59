package models

import (
	"math"
	"time"

	retrievalmodels "github.com/meysamhadeli/codgrade/retrieval/models"
)

// Grade is a score out of a ceiling. Earned always lies in [0, OutOf].
type Grade struct {
	Earned float64 `json:"earned" yaml:"earned"`
	OutOf  float64 `json:"out_of" yaml:"out_of"`
}

// NewGrade builds a grade with earned clamped into range.
func NewGrade(earned, outOf float64) Grade {
	return Grade{Earned: earned, OutOf: outOf}.Clamp()
}

// Clamp forces Earned into [0, OutOf]. NaN becomes 0.
func (g Grade) Clamp() Grade {
	if g.OutOf < 0 || math.IsNaN(g.OutOf) {
		g.OutOf = 0
	}
	switch {
	case math.IsNaN(g.Earned) || g.Earned < 0:
		g.Earned = 0
	case g.Earned > g.OutOf:
		g.Earned = g.OutOf
	}
	return g
}

// Full reports whether the whole ceiling was earned.
func (g Grade) Full() bool { return g.Earned >= g.OutOf }

// Add sums two grades.
func (g Grade) Add(other Grade) Grade {
	return Grade{Earned: g.Earned + other.Earned, OutOf: g.OutOf + other.OutOf}
}

// State is where a grader run is in its lifecycle.
type State string

const (
	StateConfigured State = "configured"
	StateExecuting  State = "executing"
	StateScored     State = "scored"
	// StateFaulted still carries a score; it marks results produced by an internal failure path.
	StateFaulted State = "faulted"
)

// GradeResult is the outcome of grading one requirement.
type GradeResult struct {
	Requirement string                          `json:"requirement" yaml:"requirement"`
	Grade       Grade                           `json:"grade" yaml:"grade"`
	Reason      string                          `json:"reason" yaml:"reason"`
	Prompt      []retrievalmodels.PromptMessage `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	State       State                           `json:"state" yaml:"state"`
	RunID       string                          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Duration    time.Duration                   `json:"duration" yaml:"duration"`
}

// HasPrompt reports whether feedback messages were attached.
func (r GradeResult) HasPrompt() bool { return len(r.Prompt) > 0 }
