package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/retrieval"
)

const defaultDocPenalty = 3.0

// DocsConfig configures the documentation grader.
type DocsConfig struct {
	Common `yaml:",inline"`
	// Classes are the files whose documentation is linted.
	Classes []string `yaml:"classes"`
	// Penalty is deducted per documentation finding. Nil means the default of 3;
	// an explicit zero lints without deducting.
	Penalty *float64 `yaml:"penalty"`
}

// DocsGrader deducts a fixed penalty for every documentation-lint finding.
type DocsGrader struct {
	cfg     DocsConfig
	penalty float64
}

// NewDocsGrader validates cfg and builds the grader.
func NewDocsGrader(cfg DocsConfig) (*DocsGrader, error) {
	if err := cfg.Common.validate("docs"); err != nil {
		return nil, err
	}
	if len(cfg.Classes) == 0 {
		return nil, &models.ConfigError{Grader: "docs", Field: "classes", Err: errors.New("at least one class is required")}
	}
	penalty := defaultDocPenalty
	if cfg.Penalty != nil {
		penalty = *cfg.Penalty
	}
	if penalty < 0 {
		return nil, &models.ConfigError{Grader: "docs", Field: "penalty", Err: fmt.Errorf("must not be negative, got %v", penalty)}
	}
	return &DocsGrader{cfg: cfg, penalty: penalty}, nil
}

func (g *DocsGrader) Requirement() string { return g.cfg.Requirement }

func (g *DocsGrader) OutOf() float64 { return g.cfg.OutOf }

// Run compiles the classes with documentation lint and scores the findings.
func (g *DocsGrader) Run(ctx context.Context, env Env) models.GradeResult {
	return execute(ctx, env, "docs", g.cfg.Common, true, g.grade)
}

func (g *DocsGrader) grade(ctx context.Context, env Env) outcome {
	files, missing := resolveFiles(env, g.cfg.Classes)
	if missing != "" {
		return faulted(missingFileReason(missing), nil)
	}

	result, err := env.Toolchain.Compile(ctx, models.CompileRequest{
		Roots:   []string{env.Project.Root()},
		Files:   files,
		DocLint: true,
	})
	if err != nil {
		reason := fmt.Sprintf("Could not check documentation: %v", err)
		return faulted(reason, env.prompt(ctx, reason, fileRefs(files)...))
	}

	if compileErrors := result.Of(models.CategoryCompile); len(compileErrors) > 0 ||
		(!result.Success && result.Count(models.CategoryDocLint) == 0) {
		reason := "The code does not compile, so documentation could not be checked."
		diagnostic := reason + "\n\nCompiler output:\n" + result.Raw
		refs := append(diagnosticRefs(compileErrors), fileRefs(files)...)
		return outcome{reason: reason, prompt: env.prompt(ctx, diagnostic, refs...)}
	}

	findings := result.Of(models.CategoryDocLint)
	earned := g.cfg.OutOf - g.penalty*float64(len(findings))
	if len(findings) == 0 {
		return outcome{earned: earned, reason: "No documentation issues found."}
	}

	reason := fmt.Sprintf("Found %d documentation issue(s), %.2f points deducted per issue.", len(findings), g.penalty)
	var diagnostic strings.Builder
	diagnostic.WriteString(reason)
	diagnostic.WriteString("\n")
	for _, d := range findings {
		fmt.Fprintf(&diagnostic, "\n%s:%d: %s", d.File, d.Line, d.Message)
	}
	return outcome{
		earned: earned,
		reason: reason,
		prompt: env.prompt(ctx, diagnostic.String(), diagnosticRefs(findings)...),
	}
}

// resolveFiles maps class names or paths to project-relative paths. It returns
// the first name that does not resolve.
func resolveFiles(env Env, names []string) ([]string, string) {
	files := make([]string, 0, len(names))
	for _, name := range names {
		file, err := env.Project.Identify(name)
		if err != nil {
			return nil, name
		}
		files = append(files, file.Path())
	}
	return files, ""
}

func missingFileReason(name string) string {
	return fmt.Sprintf("Could not find %s in the submission.", name)
}

func fileRefs(files []string) []retrieval.LineRef {
	refs := make([]retrieval.LineRef, 0, len(files))
	for _, f := range files {
		refs = append(refs, retrieval.LineRef{File: f})
	}
	return refs
}

func diagnosticRefs(diagnostics []models.Diagnostic) []retrieval.LineRef {
	var refs []retrieval.LineRef
	seen := make(map[retrieval.LineRef]bool)
	for _, d := range diagnostics {
		ref := retrieval.LineRef{File: d.File, Line: d.Line}
		if d.File == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
