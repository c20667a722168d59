package grader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/retrieval"
)

// UnitTestConfig configures the proportional unit-test grader.
type UnitTestConfig struct {
	Common `yaml:",inline"`
	// TestFiles are the test classes to run, in reporting order.
	TestFiles []string `yaml:"test_files"`
	// ExpectedTests optionally lists every pkg.Class#method the test files must declare.
	ExpectedTests []string `yaml:"expected_tests"`
}

func (c UnitTestConfig) validate(kind string) error {
	if err := c.Common.validate(kind); err != nil {
		return err
	}
	if len(c.TestFiles) == 0 {
		return &models.ConfigError{Grader: kind, Field: "test_files", Err: errors.New("at least one test file is required")}
	}
	return nil
}

// UnitTestGrader awards the fraction of passing tests across all test files.
type UnitTestGrader struct {
	cfg UnitTestConfig
}

// NewUnitTestGrader validates cfg and builds the grader.
func NewUnitTestGrader(cfg UnitTestConfig) (*UnitTestGrader, error) {
	if err := cfg.validate("unit_test"); err != nil {
		return nil, err
	}
	return &UnitTestGrader{cfg: cfg}, nil
}

func (g *UnitTestGrader) Requirement() string { return g.cfg.Requirement }

func (g *UnitTestGrader) OutOf() float64 { return g.cfg.OutOf }

// Run checks the declared tests against the expected list, then runs every test file.
func (g *UnitTestGrader) Run(ctx context.Context, env Env) models.GradeResult {
	return execute(ctx, env, "unit_test", g.cfg.Common, true, func(ctx context.Context, env Env) outcome {
		return gradeTests(ctx, env, env.Project, []string{env.Project.Root()}, g.cfg)
	})
}

// gradeTests resolves the test files in tests, which may differ from the submission
// project, and runs them against the sources under roots.
func gradeTests(ctx context.Context, env Env, tests *code_analyzer.Project, roots []string, cfg UnitTestConfig) outcome {
	files := make([]*code_analyzer.File, 0, len(cfg.TestFiles))
	for _, name := range cfg.TestFiles {
		file, err := tests.Identify(name)
		if err != nil {
			return faulted(missingFileReason(name), nil)
		}
		files = append(files, file)
	}

	if len(cfg.ExpectedTests) > 0 {
		missing, unexpected, err := compareTests(ctx, tests, files, cfg.ExpectedTests)
		if err != nil {
			reason := fmt.Sprintf("Could not read the test methods: %v", err)
			return faulted(reason, env.prompt(ctx, reason, testFileRefs(files)...))
		}
		if len(missing) > 0 || len(unexpected) > 0 {
			return outcome{reason: mismatchReason(missing, unexpected)}
		}
	}

	var (
		found, passed int
		summaries     []string
		failures      []string
		refs          []retrieval.LineRef
	)
	for _, file := range files {
		target := file.Info().QualifiedName()
		result, err := env.Toolchain.Test(ctx, models.TestRequest{Roots: roots, Target: target})
		if err != nil {
			reason := fmt.Sprintf("Could not run %s: %v", target, err)
			diagnostic := reason
			var toolErr *models.ToolchainError
			if errors.As(err, &toolErr) && toolErr.Output != "" {
				diagnostic += "\n\nOutput:\n" + toolErr.Output
			}
			return faulted(reason, env.prompt(ctx, diagnostic, testFileRefs(files)...))
		}

		found += result.Found
		passed += result.Passed
		summaries = append(summaries, fmt.Sprintf("%s: %d/%d passed", target, result.Passed, result.Found))

		for _, c := range result.Failed() {
			message, frameRefs := cleanFailure(c.Message, c.Trace, env.Project)
			failures = append(failures, fmt.Sprintf("%s failed:\n%s", c.Name, message))
			refs = append(refs, frameRefs...)
		}
		if result.Found > result.Passed && len(result.Failed()) == 0 && result.Raw != "" {
			failures = append(failures, fmt.Sprintf("%s reported failures:\n%s", target, result.Raw))
		}
	}

	if found == 0 {
		reason := "No tests were run. " + strings.Join(summaries, "; ")
		return outcome{reason: reason}
	}

	reason := fmt.Sprintf("%d/%d tests passed (%s).", passed, found, strings.Join(summaries, "; "))
	out := outcome{
		earned: float64(passed) / float64(found) * cfg.OutOf,
		reason: reason,
	}
	if len(failures) > 0 {
		diagnostic := reason + "\n\n" + strings.Join(failures, "\n\n")
		if len(refs) == 0 {
			refs = testFileRefs(files)
		}
		out.prompt = env.prompt(ctx, diagnostic, refs...)
	}
	return out
}

func compareTests(ctx context.Context, project *code_analyzer.Project, files []*code_analyzer.File, expected []string) (missing, unexpected []string, err error) {
	declared := make(map[string]bool)
	for _, f := range files {
		names, err := project.TestMethods(ctx, f)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range names {
			declared[n] = true
		}
	}

	want := make(map[string]bool, len(expected))
	for _, e := range expected {
		e = strings.TrimSpace(e)
		want[e] = true
		if !declared[e] {
			missing = append(missing, e)
		}
	}
	for n := range declared {
		if !want[n] {
			unexpected = append(unexpected, n)
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	return missing, unexpected, nil
}

func mismatchReason(missing, unexpected []string) string {
	var sb strings.Builder
	sb.WriteString("The test methods do not match the expected tests, so the tests were not run.")
	if len(missing) > 0 {
		sb.WriteString(" Missing: ")
		sb.WriteString(strings.Join(missing, ", "))
		sb.WriteString(".")
	}
	if len(unexpected) > 0 {
		sb.WriteString(" Unexpected: ")
		sb.WriteString(strings.Join(unexpected, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

func testFileRefs(files []*code_analyzer.File) []retrieval.LineRef {
	refs := make([]retrieval.LineRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, retrieval.LineRef{File: f.Path()})
	}
	return refs
}
