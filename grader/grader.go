// Package grader turns analysis and toolchain outcomes into scored results.
//
// Every grader is built from a configuration struct that is validated when the
// grader is constructed; a bad configuration is a *models.ConfigError. Run never
// fails and never panics: problems caused by the submission, the toolchain or the
// grader itself all resolve into a GradeResult with a reduced score and a reason.
package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/meysamhadeli/codgrade/grader/contracts"
	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/retrieval"
	retrievalmodels "github.com/meysamhadeli/codgrade/retrieval/models"
	"github.com/sourcegraph/conc/iter"
)

// Grader scores one requirement.
type Grader interface {
	Requirement() string
	OutOf() float64
	Run(ctx context.Context, env Env) models.GradeResult
}

// Env carries the session collaborators shared by every grader run.
type Env struct {
	Project   *code_analyzer.Project
	Toolchain contracts.IToolchain
	Fetcher   contracts.IFetcher
	Retrieval *retrieval.Builder
	Logger    *slog.Logger
	// Timeout bounds a single grader run. Zero means only ctx applies.
	Timeout time.Duration
	RunID   string
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e Env) retrieval() *retrieval.Builder {
	if e.Retrieval != nil {
		return e.Retrieval
	}
	return retrieval.NewBuilder(e.Project, retrieval.DefaultOptions(), nil, e.logger())
}

// prompt assembles feedback messages for a diagnostic through the retrieval boundary.
func (e Env) prompt(ctx context.Context, diagnostic string, refs ...retrieval.LineRef) []retrievalmodels.PromptMessage {
	if e.Project == nil {
		return []retrievalmodels.PromptMessage{
			{Role: retrievalmodels.RoleUser, Content: retrieval.Truncate(diagnostic, retrieval.DefaultOptions().MaxChars)},
		}
	}
	return e.retrieval().Prompt(ctx, retrieval.Request{
		Refs:        refs,
		Synopsis:    diagnostic,
		PriorOutput: diagnostic,
	}, diagnostic)
}

// Common is the configuration every grader shares.
type Common struct {
	Requirement string  `yaml:"requirement"`
	OutOf       float64 `yaml:"out_of"`
}

func (c Common) validate(grader string) error {
	if strings.TrimSpace(c.Requirement) == "" {
		return &models.ConfigError{Grader: grader, Field: "requirement", Err: errors.New("must not be empty")}
	}
	if c.OutOf <= 0 {
		return &models.ConfigError{Grader: grader, Field: "out_of", Err: fmt.Errorf("must be positive, got %v", c.OutOf)}
	}
	return nil
}

// outcome is what a grader body decides before the shared finishing rules apply.
type outcome struct {
	earned  float64
	reason  string
	prompt  []retrievalmodels.PromptMessage
	faulted bool
}

func faulted(reason string, prompt []retrievalmodels.PromptMessage) outcome {
	return outcome{reason: reason, prompt: prompt, faulted: true}
}

// execute drives the Configured -> Executing -> Scored|Faulted lifecycle shared by all graders.
// withFeedback graders always carry a prompt when the score is reduced, and never otherwise.
func execute(ctx context.Context, env Env, kind string, common Common, withFeedback bool,
	body func(ctx context.Context, env Env) outcome) (result models.GradeResult) {

	logger := env.logger().With("grader", kind, "requirement", common.Requirement, "run_id", env.RunID)
	start := time.Now()
	logger.Debug("grader state", "state", models.StateExecuting)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("grader panicked", "panic", r)
			result = finish(ctx, env, common, withFeedback, faulted(fmt.Sprintf("The grader failed internally: %v", r), nil))
		}
		result.RunID = env.RunID
		result.Duration = time.Since(start)
		logger.Debug("grader state", "state", result.State,
			"earned", result.Grade.Earned, "out_of", result.Grade.OutOf)
	}()

	if env.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.Timeout)
		defer cancel()
	}

	return finish(ctx, env, common, withFeedback, body(ctx, env))
}

func finish(ctx context.Context, env Env, common Common, withFeedback bool, out outcome) models.GradeResult {
	grade := models.NewGrade(out.earned, common.OutOf)
	if out.faulted {
		grade.Earned = 0
	}

	reason := strings.TrimSpace(out.reason)
	if reason == "" {
		if grade.Full() {
			reason = "All checks passed."
		} else {
			reason = "The requirement was not met."
		}
	}

	prompt := out.prompt
	if withFeedback {
		switch {
		case grade.Full():
			prompt = nil
		case len(prompt) == 0:
			prompt = env.prompt(ctx, reason)
		}
	}

	state := models.StateScored
	if out.faulted {
		state = models.StateFaulted
	}

	return models.GradeResult{
		Requirement: common.Requirement,
		Grade:       grade,
		Reason:      reason,
		Prompt:      prompt,
		State:       state,
	}
}

// RunAll runs graders with at most concurrency in flight and returns results in input order.
func RunAll(ctx context.Context, env Env, graders []Grader, concurrency int) []models.GradeResult {
	if concurrency < 1 {
		concurrency = 1
	}
	mapper := iter.Mapper[Grader, models.GradeResult]{MaxGoroutines: concurrency}
	return mapper.Map(graders, func(g *Grader) models.GradeResult {
		return (*g).Run(ctx, env)
	})
}

// Total sums the grades of results.
func Total(results []models.GradeResult) models.Grade {
	var total models.Grade
	for _, r := range results {
		total = total.Add(r.Grade)
	}
	return total
}
