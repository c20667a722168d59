package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/meysamhadeli/codgrade/constants/lipgloss"
	"github.com/meysamhadeli/codgrade/grader"
	"github.com/meysamhadeli/codgrade/grader/models"
	retrievalmodels "github.com/meysamhadeli/codgrade/retrieval/models"
	"github.com/meysamhadeli/codgrade/utils"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// gradeCmd: codgrade grade
var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade the submission against a plan of requirements.",
	Long: `The 'grade' subcommand discovers the submission under --project_root, builds one grader
per requirement in the plan file and runs them. Every requirement gets a score and a reason;
requirements that lose points also carry a feedback prompt with the relevant source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		planPath, _ := cmd.Flags().GetString("plan")
		showPrompts, _ := cmd.Flags().GetBool("show-prompts")
		output, _ := cmd.Flags().GetString("output")

		return handleGradeCommand(ctx, cmd, planPath, showPrompts, output)
	},
}

func init() {
	gradeCmd.Flags().String("plan", "plan.yml", "Path to the grading plan (YAML).")
	gradeCmd.Flags().Bool("show-prompts", false, "Print the feedback prompt of every requirement that lost points.")
	gradeCmd.Flags().StringP("output", "o", "", "Write the results as YAML to this file.")

	rootCmd.AddCommand(gradeCmd)
}

func handleGradeCommand(ctx context.Context, cmd *cobra.Command, planPath string, showPrompts bool, output string) error {
	// Plan errors are configuration errors: report them before any grading starts.
	plan, err := LoadPlan(planPath)
	if err != nil {
		return err
	}
	graders, err := plan.Graders()
	if err != nil {
		return err
	}

	deps, err := handleRootCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer deps.TokenManagement.ClearToken()

	info := deps.Project.Info()
	header := fmt.Sprintf("%s  %d file(s)  run %s", info.RootDir, len(deps.Project.Files()), deps.RunID)
	fmt.Println(lipgloss.BoxStyle.Render(header))

	spinner, _ := pterm.DefaultSpinner.
		WithStyle(pterm.NewStyle(pterm.FgLightBlue)).
		WithRemoveWhenDone(true).
		Start(fmt.Sprintf("Grading %d requirement(s)...", len(graders)))

	results := grader.RunAll(ctx, deps.Env(), graders, deps.Config.MaxConcurrency)

	if spinner != nil {
		_ = spinner.Stop()
	}
	deps.Logger.DebugContext(ctx, "grading finished", "tree_cache", deps.Project.CacheStats())

	if err := renderResults(results); err != nil {
		return err
	}

	if showPrompts {
		for _, r := range results {
			if !r.HasPrompt() {
				continue
			}
			fmt.Println(lipgloss.Bold.Render("\n# " + r.Requirement))
			if err := utils.RenderMarkdown(ctx, os.Stdout, promptText(r.Prompt), "java", deps.Config.Theme); err != nil {
				return err
			}
		}
	}

	if output != "" {
		if err := writeResults(output, results); err != nil {
			return err
		}
		fmt.Println(lipgloss.Green.Render("Results written to " + output))
	}

	deps.TokenManagement.DisplayTokens(deps.Config.AIProviderConfig.Provider, deps.Config.AIProviderConfig.Model)
	return nil
}

func renderResults(results []models.GradeResult) error {
	data := pterm.TableData{{"Requirement", "Score", "State", "Reason"}}
	for _, r := range results {
		data = append(data, []string{
			r.Requirement,
			formatGrade(r.Grade),
			string(r.State),
			firstLine(r.Reason),
		})
	}
	total := grader.Total(results)
	data = append(data, []string{"Total", formatGrade(total), "", ""})

	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

// promptText flattens the user-facing messages; the system message is the same for every prompt.
func promptText(messages []retrievalmodels.PromptMessage) string {
	var parts []string
	for _, m := range messages {
		if m.Role == retrievalmodels.RoleSystem {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

func writeResults(path string, results []models.GradeResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	return encodeResults(f, results)
}

func encodeResults(w io.Writer, results []models.GradeResult) error {
	report := struct {
		Total   models.Grade         `yaml:"total"`
		Results []models.GradeResult `yaml:"results"`
	}{Total: grader.Total(results), Results: results}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return enc.Close()
}

func formatGrade(g models.Grade) string {
	return fmt.Sprintf("%s/%s", trimFloat(g.Earned), trimFloat(g.OutOf))
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
