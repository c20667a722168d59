package cmd

import (
	"fmt"
	"strings"

	"github.com/meysamhadeli/codgrade/config"
	"github.com/meysamhadeli/codgrade/constants/lipgloss"
	"github.com/meysamhadeli/codgrade/query_engine"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// queryCmd: codgrade query
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a structural query against one file of the submission.",
	Long: `The 'query' subcommand lets instructors try a pattern before putting it in a plan.
Each --pattern or --named flag adds a refinement stage; every stage searches only inside the
matches of the previous one. Use --list to print the built-in pattern names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			for _, name := range query_engine.Names() {
				fmt.Println(name)
			}
			return nil
		}

		file, _ := cmd.Flags().GetString("file")
		patterns, _ := cmd.Flags().GetStringArray("pattern")
		named, _ := cmd.Flags().GetStringArray("named")
		capture, _ := cmd.Flags().GetString("capture")

		if file == "" {
			return fmt.Errorf("--file is required")
		}
		if len(patterns) == 0 && len(named) == 0 {
			return fmt.Errorf("at least one --pattern or --named stage is required")
		}

		q := query_engine.New().Source(file)
		for _, name := range named {
			q = q.Named(name)
		}
		for _, pattern := range patterns {
			q = q.Query(pattern)
		}
		if capture != "" {
			q = q.Capture(capture)
		}
		if err := q.Validate(); err != nil {
			return err
		}

		deps, err := handleRootCommand(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		matches, err := q.Run(cmd.Context(), deps.Project)
		if err != nil {
			return err
		}

		fmt.Println(lipgloss.Info.Render(fmt.Sprintf("%d match(es) in %s", len(matches), file)))
		if len(matches) == 0 {
			return nil
		}
		data := pterm.TableData{{"Capture", "Lines", "Text"}}
		for _, m := range matches {
			data = append(data, []string{
				m.Capture,
				fmt.Sprintf("%d-%d", m.Location.StartLine, m.Location.EndLine),
				firstLine(strings.TrimSpace(m.Text)),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// versionCmd: codgrade version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of codgrade.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(lipgloss.Info.Render("codgrade " + config.DefaultConfig.Version))
	},
}

func init() {
	queryCmd.Flags().String("file", "", "Class name, file name or relative path of the file to search.")
	queryCmd.Flags().StringArray("pattern", nil, "Tree-sitter pattern for a refinement stage (repeatable).")
	queryCmd.Flags().StringArray("named", nil, "Built-in pattern name for a refinement stage (repeatable).")
	queryCmd.Flags().String("capture", "", "Capture of the last stage to report.")
	queryCmd.Flags().Bool("list", false, "List the built-in pattern names.")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(versionCmd)
}
