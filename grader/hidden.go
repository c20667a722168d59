package grader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/meysamhadeli/codgrade/grader/models"
)

// HiddenTestConfig configures a unit-test grader whose test file is fetched at run time.
type HiddenTestConfig struct {
	Common `yaml:",inline"`
	// Source is where the test file is fetched from.
	Source string `yaml:"source"`
	// FileName names the fetched file. It defaults to the last element of Source.
	FileName      string   `yaml:"file_name"`
	ExpectedTests []string `yaml:"expected_tests"`
}

// HiddenTestGrader fetches a test file into a temporary directory and delegates
// to the unit-test grader. The directory is removed however the run ends.
type HiddenTestGrader struct {
	cfg HiddenTestConfig
}

// NewHiddenTestGrader validates cfg and builds the grader.
func NewHiddenTestGrader(cfg HiddenTestConfig) (*HiddenTestGrader, error) {
	if err := cfg.Common.validate("hidden_test"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Source) == "" {
		return nil, &models.ConfigError{Grader: "hidden_test", Field: "source", Err: errors.New("must not be empty")}
	}
	if cfg.FileName == "" {
		cfg.FileName = sourceFileName(cfg.Source)
	}
	if !strings.HasSuffix(cfg.FileName, ".java") || filepath.Base(cfg.FileName) != cfg.FileName {
		return nil, &models.ConfigError{Grader: "hidden_test", Field: "file_name", Err: fmt.Errorf("%q is not a Java file name", cfg.FileName)}
	}
	return &HiddenTestGrader{cfg: cfg}, nil
}

func (g *HiddenTestGrader) Requirement() string { return g.cfg.Requirement }

func (g *HiddenTestGrader) OutOf() float64 { return g.cfg.OutOf }

// Run fetches the test, discovers it as its own project and grades it against the submission.
func (g *HiddenTestGrader) Run(ctx context.Context, env Env) models.GradeResult {
	return execute(ctx, env, "hidden_test", g.cfg.Common, true, g.grade)
}

func (g *HiddenTestGrader) grade(ctx context.Context, env Env) outcome {
	if env.Fetcher == nil {
		return faulted("Hidden tests are unavailable: no fetcher is configured.", nil)
	}

	dir, err := os.MkdirTemp("", "codgrade-hidden-*")
	if err != nil {
		return faulted(fmt.Sprintf("Hidden tests are unavailable: %v", err), nil)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			env.logger().Warn("failed to remove hidden test directory", "dir", dir, "error", err)
		}
	}()

	target := filepath.Join(dir, g.cfg.FileName)
	if err := g.fetch(ctx, env, target); err != nil {
		return faulted(fmt.Sprintf("Hidden tests could not be fetched: %v", err), nil)
	}

	tests, err := code_analyzer.Discover(ctx, dir, code_analyzer.WithLogger(env.logger()))
	if err != nil {
		return faulted(fmt.Sprintf("Hidden tests could not be loaded: %v", err), nil)
	}

	return gradeTests(ctx, env, tests, []string{dir, env.Project.Root()}, UnitTestConfig{
		Common:        g.cfg.Common,
		TestFiles:     []string{g.cfg.FileName},
		ExpectedTests: g.cfg.ExpectedTests,
	})
}

func (g *HiddenTestGrader) fetch(ctx context.Context, env Env, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := env.Fetcher.Fetch(ctx, g.cfg.Source, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sourceFileName(source string) string {
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return filepath.Base(source)
}
