package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/query_engine"
	"github.com/meysamhadeli/codgrade/retrieval"
)

// QueryConfig configures the structural-query grader.
type QueryConfig struct {
	Common
	Query query_engine.Query
	// Reason describes the requirement to the student and is attached to every result.
	Reason string
}

// QueryGrader awards full marks when a query pipeline satisfies its constraint.
type QueryGrader struct {
	cfg QueryConfig
}

// NewQueryGrader validates cfg and builds the grader. A pipeline without a source
// or stages is a ConfigError; malformed patterns are reported when the grader runs.
func NewQueryGrader(cfg QueryConfig) (*QueryGrader, error) {
	if err := cfg.Common.validate("query"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Reason) == "" {
		return nil, &models.ConfigError{Grader: "query", Field: "reason", Err: errors.New("must not be empty")}
	}
	if err := cfg.Query.Validate(); err != nil {
		if _, ok := query_engine.AsQueryError(err); !ok {
			return nil, &models.ConfigError{Grader: "query", Field: "query", Err: err}
		}
	}
	return &QueryGrader{cfg: cfg}, nil
}

func (g *QueryGrader) Requirement() string { return g.cfg.Requirement }

func (g *QueryGrader) OutOf() float64 { return g.cfg.OutOf }

// Run evaluates the pipeline against the project.
func (g *QueryGrader) Run(ctx context.Context, env Env) models.GradeResult {
	return execute(ctx, env, "query", g.cfg.Common, true, g.grade)
}

func (g *QueryGrader) grade(ctx context.Context, env Env) outcome {
	result, err := g.cfg.Query.Evaluate(ctx, env.Project)
	if err != nil {
		return g.queryFailed(ctx, env, err)
	}

	if result.Passed {
		return outcome{earned: g.cfg.OutOf, reason: g.cfg.Reason}
	}

	reason := fmt.Sprintf("%s (%s)", g.cfg.Reason, result.Explain())
	var refs []retrieval.LineRef
	for _, m := range result.Matches {
		refs = append(refs, retrieval.LineRef{File: m.Location.File, Line: m.Location.StartLine})
	}
	if len(refs) == 0 && g.cfg.Query.SourceName() != "" {
		refs = append(refs, retrieval.LineRef{File: g.cfg.Query.SourceName()})
	}
	diagnostic := fmt.Sprintf("Requirement: %s\nCheck result: %s", g.cfg.Reason, result.Explain())
	return outcome{reason: reason, prompt: env.prompt(ctx, diagnostic, refs...)}
}

func (g *QueryGrader) queryFailed(ctx context.Context, env Env, err error) outcome {
	queryErr, ok := query_engine.AsQueryError(err)
	if !ok {
		reason := fmt.Sprintf("%s (the check could not be completed: %v)", g.cfg.Reason, err)
		return faulted(reason, nil)
	}

	var (
		reason string
		refs   []retrieval.LineRef
	)
	switch queryErr.Kind {
	case query_engine.SyntaxError:
		reason = fmt.Sprintf("%s (%s could not be parsed)", g.cfg.Reason, queryErr.File)
		var parseErr *code_analyzer.ParseError
		if errors.As(err, &parseErr) {
			refs = append(refs, retrieval.LineRef{File: queryErr.File, Line: parseErr.Line})
		} else {
			refs = append(refs, retrieval.LineRef{File: queryErr.File})
		}
	case query_engine.NoSuchFile:
		reason = fmt.Sprintf("%s (%s was not found in the submission)", g.cfg.Reason, queryErr.File)
	default:
		reason = fmt.Sprintf("%s (the check is misconfigured: %v)", g.cfg.Reason, queryErr.Err)
	}

	diagnostic := fmt.Sprintf("Requirement: %s\nProblem: %v", g.cfg.Reason, err)
	return faulted(reason, env.prompt(ctx, diagnostic, refs...))
}
