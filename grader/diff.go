package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meysamhadeli/codgrade/code_analyzer/models"
	grademodels "github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/retrieval"
	"github.com/meysamhadeli/codgrade/utils"
)

// DiffConfig configures the output-diff grader.
type DiffConfig struct {
	Common `yaml:",inline"`
	// File is the class whose main method is run.
	File string `yaml:"file"`
	// Inputs and Expected pair standard input with the expected standard output.
	Inputs     []string `yaml:"inputs"`
	Expected   []string `yaml:"expected"`
	IgnoreCase bool     `yaml:"ignore_case"`
}

// DiffGrader runs a program once per input and awards full marks only when every output matches.
type DiffGrader struct {
	cfg DiffConfig
}

// NewDiffGrader validates cfg and builds the grader.
func NewDiffGrader(cfg DiffConfig) (*DiffGrader, error) {
	if err := cfg.Common.validate("diff"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.File) == "" {
		return nil, &grademodels.ConfigError{Grader: "diff", Field: "file", Err: errors.New("must not be empty")}
	}
	if len(cfg.Expected) != len(cfg.Inputs) {
		return nil, &grademodels.ConfigError{
			Grader: "diff",
			Field:  "expected",
			Err:    fmt.Errorf("%d expected outputs for %d inputs", len(cfg.Expected), len(cfg.Inputs)),
		}
	}
	if len(cfg.Expected) == 0 {
		return nil, &grademodels.ConfigError{Grader: "diff", Field: "expected", Err: errors.New("at least one case is required")}
	}
	return &DiffGrader{cfg: cfg}, nil
}

func (g *DiffGrader) Requirement() string { return g.cfg.Requirement }

func (g *DiffGrader) OutOf() float64 { return g.cfg.OutOf }

// Run compiles the submission, runs each case and compares outputs word by word.
func (g *DiffGrader) Run(ctx context.Context, env Env) grademodels.GradeResult {
	return execute(ctx, env, "diff", g.cfg.Common, true, g.grade)
}

func (g *DiffGrader) grade(ctx context.Context, env Env) outcome {
	file, err := env.Project.Identify(g.cfg.File)
	if err != nil {
		return faulted(missingFileReason(g.cfg.File), nil)
	}
	source := retrieval.LineRef{File: file.Path()}
	roots := []string{env.Project.Root()}

	var sources []string
	for _, f := range env.Project.Files() {
		if f.Kind() != models.KindTest {
			sources = append(sources, f.Path())
		}
	}
	compiled, err := env.Toolchain.Compile(ctx, grademodels.CompileRequest{Roots: roots, Files: sources})
	if err != nil {
		reason := fmt.Sprintf("Could not compile the submission: %v", err)
		return faulted(reason, env.prompt(ctx, reason, source))
	}
	if !compiled.Success {
		reason := "The code does not compile, so its output could not be checked."
		refs := append(diagnosticRefs(compiled.Diagnostics), source)
		return outcome{reason: reason, prompt: env.prompt(ctx, reason+"\n\nCompiler output:\n"+compiled.Raw, refs...)}
	}

	entry := file.Info().QualifiedName()
	var mismatches []string
	for i, input := range g.cfg.Inputs {
		run, err := env.Toolchain.Run(ctx, grademodels.RunRequest{Roots: roots, Entry: entry, Stdin: input})
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("Case %d: the program could not be run: %v", i+1, err))
			continue
		}
		expected := g.cfg.Expected[i]
		if utils.OutputsEqual(expected, run.Stdout, g.cfg.IgnoreCase) {
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Case %d", i+1)
		if input != "" {
			fmt.Fprintf(&sb, " with input:\n%s\n", strings.TrimRight(input, "\n"))
		} else {
			sb.WriteString(":\n")
		}
		sb.WriteString("Difference between expected and actual output:\n")
		sb.WriteString(utils.WordDiff(expected, run.Stdout, g.cfg.IgnoreCase))
		if stderr := strings.TrimSpace(run.Stderr); stderr != "" {
			fmt.Fprintf(&sb, "\nStandard error:\n%s", stderr)
		}
		if run.ExitCode != 0 {
			fmt.Fprintf(&sb, "\nExit code: %d", run.ExitCode)
		}
		mismatches = append(mismatches, sb.String())
	}

	if len(mismatches) == 0 {
		return outcome{earned: g.cfg.OutOf, reason: fmt.Sprintf("All %d output(s) matched.", len(g.cfg.Inputs))}
	}

	reason := fmt.Sprintf("%d of %d output(s) did not match the expected output.", len(mismatches), len(g.cfg.Inputs))
	diagnostic := reason + "\n\n" + strings.Join(mismatches, "\n\n")
	return outcome{reason: reason, prompt: env.prompt(ctx, diagnostic, source)}
}
