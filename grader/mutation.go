package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/retrieval"
)

const survivorPenalty = 4.0

// MutationConfig configures the mutation-survival grader.
type MutationConfig struct {
	Common        `yaml:",inline"`
	TargetClasses []string `yaml:"target_classes"`
	TestFiles     []string `yaml:"test_files"`
}

// MutationGrader deducts points for every mutant the test suite fails to kill.
type MutationGrader struct {
	cfg MutationConfig
}

// NewMutationGrader validates cfg and builds the grader.
func NewMutationGrader(cfg MutationConfig) (*MutationGrader, error) {
	if err := cfg.Common.validate("mutation"); err != nil {
		return nil, err
	}
	if len(cfg.TargetClasses) == 0 {
		return nil, &models.ConfigError{Grader: "mutation", Field: "target_classes", Err: errors.New("at least one class is required")}
	}
	if len(cfg.TestFiles) == 0 {
		return nil, &models.ConfigError{Grader: "mutation", Field: "test_files", Err: errors.New("at least one test file is required")}
	}
	return &MutationGrader{cfg: cfg}, nil
}

func (g *MutationGrader) Requirement() string { return g.cfg.Requirement }

func (g *MutationGrader) OutOf() float64 { return g.cfg.OutOf }

// Run requires a passing baseline suite, then scores surviving mutants.
func (g *MutationGrader) Run(ctx context.Context, env Env) models.GradeResult {
	return execute(ctx, env, "mutation", g.cfg.Common, false, g.grade)
}

func (g *MutationGrader) grade(ctx context.Context, env Env) outcome {
	roots := []string{env.Project.Root()}

	var tests []string
	for _, name := range g.cfg.TestFiles {
		file, err := env.Project.Identify(name)
		if err != nil {
			return faulted(missingFileReason(name), nil)
		}
		tests = append(tests, file.Info().QualifiedName())
	}
	var targets []string
	for _, name := range g.cfg.TargetClasses {
		file, err := env.Project.Identify(name)
		if err != nil {
			return faulted(missingFileReason(name), nil)
		}
		targets = append(targets, file.Info().QualifiedName())
	}

	for _, target := range tests {
		result, err := env.Toolchain.Test(ctx, models.TestRequest{Roots: roots, Target: target})
		if err != nil || !result.AllPassed() {
			reason := "Mutation testing requires a fully passing test suite."
			if err != nil {
				reason += fmt.Sprintf(" %s could not be run: %v", target, err)
			} else {
				reason += fmt.Sprintf(" %s: %d/%d passed.", target, result.Passed, result.Found)
			}
			return outcome{reason: reason, prompt: env.prompt(ctx, reason)}
		}
	}

	report, err := env.Toolchain.Mutate(ctx, models.MutationRequest{
		Roots:         roots,
		TargetClasses: targets,
		TargetTests:   tests,
	})
	if err != nil {
		return faulted(fmt.Sprintf("Mutation testing could not be completed: %v", err), nil)
	}

	survived := report.Survived()
	earned := g.cfg.OutOf - survivorPenalty*float64(len(survived))
	if len(survived) == 0 {
		return outcome{earned: earned, reason: fmt.Sprintf("All %d mutant(s) were killed.", len(report.Mutants))}
	}

	reason := fmt.Sprintf("%d of %d mutant(s) survived.", len(survived), len(report.Mutants))
	var sb strings.Builder
	sb.WriteString(reason)
	sb.WriteString(" Write tests that detect these changes:\n")
	var refs []retrieval.LineRef
	for _, m := range survived {
		fmt.Fprintf(&sb, "\n%s.%s line %d: %s", m.Class, m.Method, m.Line, m.Mutator)
		refs = append(refs, retrieval.LineRef{File: m.File, Line: m.Line})
	}
	return outcome{earned: earned, reason: reason, prompt: env.prompt(ctx, sb.String(), refs...)}
}
