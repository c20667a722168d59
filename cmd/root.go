package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/meysamhadeli/codgrade/code_analyzer"
	"github.com/meysamhadeli/codgrade/config"
	"github.com/meysamhadeli/codgrade/constants/lipgloss"
	"github.com/meysamhadeli/codgrade/grader"
	"github.com/meysamhadeli/codgrade/providers"
	"github.com/meysamhadeli/codgrade/providers/contracts"
	"github.com/meysamhadeli/codgrade/retrieval"
	"github.com/meysamhadeli/codgrade/token_management"
	contracts_token "github.com/meysamhadeli/codgrade/token_management/contracts"
	"github.com/meysamhadeli/codgrade/toolchain"
	"github.com/spf13/cobra"
)

// RootDependencies is the grading session shared by subcommands.
type RootDependencies struct {
	Config          *config.Config
	Cwd             string
	RunID           string
	Logger          *slog.Logger
	Project         *code_analyzer.Project
	Toolchain       *toolchain.JavaToolchain
	Fetcher         *toolchain.HTTPFetcher
	Selector        contracts.ISelectionProvider
	Retrieval       *retrieval.Builder
	TokenManagement contracts_token.ITokenManagement
}

var rootCmd = &cobra.Command{
	Use:   "codgrade",
	Short: "Grade Java submissions against a plan of requirements.",
	Long: `codgrade discovers the Java sources of a submission, runs a plan of requirements
against them (structural queries, documentation lint, unit tests, output diffs, mutation
testing and hidden tests) and reports a score with actionable feedback for every lost point.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println(lipgloss.Info.Render("codgrade " + config.DefaultConfig.Version))
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(lipgloss.Red.Render(err.Error()))
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd)
}

// handleRootCommand loads the configuration and builds the session collaborators.
// Discovery failures are fatal; a selection service that cannot be built only
// leaves active retrieval to fall back to the heuristic.
func handleRootCommand(ctx context.Context, cmd *cobra.Command) (*RootDependencies, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("error getting current directory: %w", err)
	}

	cfg, err := config.LoadConfigs(cmd.Root(), cwd)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := newLogger(cfg.LogLevel).With("run_id", runID)

	root := cfg.ProjectRoot
	if !filepath.IsAbs(root) {
		root = filepath.Join(cwd, root)
	}

	project, err := code_analyzer.Discover(ctx, root,
		code_analyzer.WithLogger(logger),
		code_analyzer.WithIgnorePatterns(cfg.Exclude...))
	if err != nil {
		return nil, err
	}

	opts, err := cfg.Retrieval.Options()
	if err != nil {
		return nil, err
	}

	deps := &RootDependencies{
		Config:          cfg,
		Cwd:             cwd,
		RunID:           runID,
		Logger:          logger,
		Project:         project,
		Toolchain:       toolchain.NewJavaToolchain(cfg.Toolchain, logger),
		Fetcher:         toolchain.NewHTTPFetcher(cfg.ToolchainTimeout()),
		TokenManagement: token_management.NewTokenManager(),
	}

	if opts.Mode == retrieval.ModeActive {
		selector, err := providers.ProviderFactory(cfg.AIProviderConfig, deps.TokenManagement, logger)
		if err != nil {
			logger.Warn("selection service unavailable, using heuristic retrieval", "error", err)
		} else {
			deps.Selector = selector
		}
	}
	deps.Retrieval = retrieval.NewBuilder(project, opts, deps.Selector, logger)

	return deps, nil
}

// Env returns the grader environment for this session.
func (d *RootDependencies) Env() grader.Env {
	return grader.Env{
		Project:   d.Project,
		Toolchain: d.Toolchain,
		Fetcher:   d.Fetcher,
		Retrieval: d.Retrieval,
		Logger:    d.Logger,
		RunID:     d.RunID,
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
