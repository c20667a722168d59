// Package toolchain drives the external Java tools used by graders: javac, java,
// the JUnit platform console launcher and PIT.
package toolchain

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/meysamhadeli/codgrade/grader/contracts"
	"github.com/meysamhadeli/codgrade/grader/models"
	"github.com/meysamhadeli/codgrade/utils"
)

// Config locates the Java tools.
type Config struct {
	Javac         string        `mapstructure:"javac"`
	Java          string        `mapstructure:"java"`
	Classpath     []string      `mapstructure:"classpath"`
	JUnitLauncher string        `mapstructure:"junit_launcher"`
	PitJar        string        `mapstructure:"pit_jar"`
	BuildDir      string        `mapstructure:"build_dir"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns tool names resolved from PATH.
func DefaultConfig() Config {
	return Config{
		Javac:    "javac",
		Java:     "java",
		BuildDir: filepath.Join("target", "classes"),
		Timeout:  60 * time.Second,
	}
}

// JavaToolchain implements contracts.IToolchain with subprocesses.
type JavaToolchain struct {
	cfg    Config
	logger *slog.Logger
}

var _ contracts.IToolchain = (*JavaToolchain)(nil)

// NewJavaToolchain creates a toolchain. Empty fields fall back to DefaultConfig.
func NewJavaToolchain(cfg Config, logger *slog.Logger) *JavaToolchain {
	defaults := DefaultConfig()
	if cfg.Javac == "" {
		cfg.Javac = defaults.Javac
	}
	if cfg.Java == "" {
		cfg.Java = defaults.Java
	}
	if cfg.BuildDir == "" {
		cfg.BuildDir = defaults.BuildDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JavaToolchain{cfg: cfg, logger: logger}
}

// Compile runs javac on the requested files, or on every source under the roots
// when no files are named.
func (t *JavaToolchain) Compile(ctx context.Context, request models.CompileRequest) (models.CompileOutcome, error) {
	if len(request.Roots) == 0 {
		return models.CompileOutcome{}, &models.ToolchainError{Op: "compile", Err: fmt.Errorf("no source roots")}
	}
	root := request.Roots[0]

	files := make([]string, 0, len(request.Files))
	for _, f := range request.Files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(root, filepath.FromSlash(f))
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		var err error
		if files, err = javaSources(request.Roots); err != nil {
			return models.CompileOutcome{}, &models.ToolchainError{Op: "compile", Err: err}
		}
	}

	args := []string{"-d", t.buildDir(root), "-encoding", "UTF-8", "-Xmaxerrs", "1000", "-Xmaxwarns", "1000"}
	if cp := t.classpath(); cp != "" {
		args = append(args, "-cp", cp)
	}
	args = append(args, "-sourcepath", joinPaths(request.Roots))
	if request.DocLint {
		args = append(args, "-Xdoclint:all")
	}
	args = append(args, files...)

	result, err := t.execute(ctx, root, "compile", "", t.cfg.Javac, args...)
	if err != nil {
		return models.CompileOutcome{}, err
	}

	raw := strings.TrimSpace(result.Stderr + "\n" + result.Stdout)
	return models.CompileOutcome{
		Success:     result.ExitCode == 0,
		Diagnostics: ParseJavacDiagnostics(raw, root, request.DocLint),
		Raw:         raw,
	}, nil
}

// Run starts the entry class from the build directory.
func (t *JavaToolchain) Run(ctx context.Context, request models.RunRequest) (models.RunOutcome, error) {
	if len(request.Roots) == 0 {
		return models.RunOutcome{}, &models.ToolchainError{Op: "run", Err: fmt.Errorf("no source roots")}
	}
	root := request.Roots[0]

	args := []string{"-cp", t.runtimeClasspath(root), request.Entry}
	args = append(args, request.Args...)

	result, err := t.execute(ctx, root, "run", request.Stdin, t.cfg.Java, args...)
	if err != nil {
		return models.RunOutcome{}, err
	}
	return models.RunOutcome{ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}, nil
}

// Test compiles every source under the roots and runs the target class with the
// JUnit console launcher.
func (t *JavaToolchain) Test(ctx context.Context, request models.TestRequest) (models.TestOutcome, error) {
	if t.cfg.JUnitLauncher == "" {
		return models.TestOutcome{}, &models.ToolchainError{Op: "test", Err: fmt.Errorf("no JUnit console launcher configured")}
	}
	root, err := t.compileAll(ctx, "test", request.Roots)
	if err != nil {
		return models.TestOutcome{}, err
	}

	args := []string{"-jar", t.cfg.JUnitLauncher, "execute",
		"--disable-banner", "--details=tree", "--disable-ansi-colors",
		"--class-path", t.runtimeClasspath(root),
	}
	if len(request.Methods) == 0 {
		args = append(args, "--select-class", request.Target)
	} else {
		for _, m := range request.Methods {
			args = append(args, "--select-method", request.Target+"#"+m)
		}
	}

	result, err := t.execute(ctx, root, "test", "", t.cfg.Java, args...)
	if err != nil {
		return models.TestOutcome{}, err
	}

	outcome, err := ParseJUnitSummary(result.Stdout + "\n" + result.Stderr)
	if err != nil {
		return models.TestOutcome{}, &models.ToolchainError{Op: "test", Output: result.Stdout + result.Stderr, Err: err}
	}
	outcome.Target = request.Target
	return outcome, nil
}

// Mutate runs PIT against the target classes and parses its CSV report.
func (t *JavaToolchain) Mutate(ctx context.Context, request models.MutationRequest) (models.MutationReport, error) {
	if t.cfg.PitJar == "" {
		return models.MutationReport{}, &models.ToolchainError{Op: "mutate", Err: fmt.Errorf("no PIT jar configured")}
	}
	root, err := t.compileAll(ctx, "mutate", request.Roots)
	if err != nil {
		return models.MutationReport{}, err
	}

	reportDir, err := os.MkdirTemp("", "codgrade-pit-*")
	if err != nil {
		return models.MutationReport{}, &models.ToolchainError{Op: "mutate", Err: err}
	}
	defer os.RemoveAll(reportDir)

	cp := []string{t.cfg.PitJar, t.runtimeClasspath(root)}
	args := []string{"-cp", strings.Join(cp, string(os.PathListSeparator)),
		"org.pitest.mutationtest.commandline.MutationCoverageReport",
		"--reportDir", reportDir,
		"--targetClasses", strings.Join(request.TargetClasses, ","),
		"--targetTests", strings.Join(request.TargetTests, ","),
		"--sourceDirs", strings.Join(request.Roots, ","),
		"--classPath", strings.Join(append([]string{t.buildDir(root)}, t.cfg.Classpath...), ","),
		"--outputFormats", "CSV",
		"--timestampedReports=false",
	}

	result, err := t.execute(ctx, root, "mutate", "", t.cfg.Java, args...)
	if err != nil {
		return models.MutationReport{}, err
	}
	if result.ExitCode != 0 {
		return models.MutationReport{}, &models.ToolchainError{
			Op:     "mutate",
			Output: result.Stdout + result.Stderr,
			Err:    fmt.Errorf("mutation tool exited with code %d", result.ExitCode),
		}
	}

	f, err := os.Open(filepath.Join(reportDir, "mutations.csv"))
	if err != nil {
		return models.MutationReport{}, &models.ToolchainError{Op: "mutate", Err: err}
	}
	defer f.Close()

	report, err := ParsePitCSV(f)
	if err != nil {
		return models.MutationReport{}, &models.ToolchainError{Op: "mutate", Err: err}
	}
	return report, nil
}

// compileAll compiles every source under roots into the first root's build directory.
// A compile failure is reported as a ToolchainError, since nothing can run without classes.
func (t *JavaToolchain) compileAll(ctx context.Context, op string, roots []string) (string, error) {
	if len(roots) == 0 {
		return "", &models.ToolchainError{Op: op, Err: fmt.Errorf("no source roots")}
	}
	compiled, err := t.Compile(ctx, models.CompileRequest{Roots: roots})
	if err != nil {
		return "", err
	}
	if !compiled.Success {
		return "", &models.ToolchainError{Op: op, Output: compiled.Raw, Err: fmt.Errorf("sources do not compile")}
	}
	return roots[0], nil
}

func (t *JavaToolchain) execute(ctx context.Context, dir, op, stdin, name string, args ...string) (*utils.CommandResult, error) {
	executor := utils.NewCommandExecutor(dir, t.cfg.Timeout, t.logger)
	result, err := executor.ExecuteCommand(ctx, stdin, name, args...)
	if err != nil {
		toolErr := &models.ToolchainError{Op: op, Command: name, Err: err}
		if result != nil {
			toolErr.TimedOut = result.TimedOut
			toolErr.Output = result.Stdout + result.Stderr
		}
		return nil, toolErr
	}
	return result, nil
}

func (t *JavaToolchain) buildDir(root string) string {
	if filepath.IsAbs(t.cfg.BuildDir) {
		return t.cfg.BuildDir
	}
	return filepath.Join(root, t.cfg.BuildDir)
}

func (t *JavaToolchain) classpath() string {
	return joinPaths(t.cfg.Classpath)
}

func (t *JavaToolchain) runtimeClasspath(root string) string {
	return joinPaths(append([]string{t.buildDir(root)}, t.cfg.Classpath...))
}

func joinPaths(paths []string) string {
	return strings.Join(paths, string(os.PathListSeparator))
}

// javaSources lists the .java files under roots, skipping default-ignored directories.
func javaSources(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			if rel != "." && utils.IsDefaultIgnored(filepath.ToSlash(rel)) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(path, ".java") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no Java sources under %s", strings.Join(roots, ", "))
	}
	sort.Strings(files)
	return files, nil
}
