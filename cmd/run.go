package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/policyqa-cli/internal/pipeline"
)

var (
	runCurrent   string
	runPrevious  string
	runKeys      string
	runOutputDir string
	runFormats   string
	runCompany   string
	runLLM       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run outlier detection, comparison, validation and reporting",
	Long: `Run loads the current and previous extracts named in the config (or flags),
scans the current extract for outliers, compares both on the primary keys,
checks business rules and writes reports. Data-integrity failures abort the
run before any report is written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if runCurrent != "" {
			c.Files.CurrentYear = runCurrent
		}
		if runPrevious != "" {
			c.Files.PreviousYear = runPrevious
		}
		if keys := splitList(runKeys); len(keys) > 0 {
			c.PrimaryKeys = keys
		}
		if runOutputDir != "" {
			c.Reporter.OutputDir = runOutputDir
		}
		if formats := splitList(runFormats); len(formats) > 0 {
			c.Reporter.ReportFormats = formats
		}
		if runCompany != "" {
			c.Reporter.CompanyName = runCompany
		}
		if cmd.Flags().Changed("llm") {
			c.LLMValidator.Enabled = runLLM
		}

		w := cmd.OutOrStdout()
		out, err := pipeline.Run(cmd.Context(), c)
		if out != nil && len(out.Files) > 0 {
			printRun(cmd, out)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "✓ Run %s complete\n", out.RunID)
		return nil
	},
}

func printRun(cmd *cobra.Command, out *pipeline.Outcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Loaded %d current and %d previous records\n", out.Current.Len(), out.Previous.Len())
	fmt.Fprintf(w, "Found outliers in %d columns (%d values)\n", out.Outliers.Len(), out.Outliers.Total())
	s := out.Comparison.Stats
	fmt.Fprintf(w, "Comparison: %d new, %d lapsed, %d matched, retention %s\n",
		s.NewCount, s.LapsedCount, s.MatchedCount, formatRetention(s.Retention()))
	fmt.Fprintf(w, "Validation: %d errors, %d warnings\n", out.Validation.ErrorCount, out.Validation.WarningCount)
	if out.LLM != nil {
		fmt.Fprintf(w, "LLM check: %d rows, %d failed calls -> %s\n", out.LLM.Rows, out.LLM.Failed, out.LLMOutput)
	}
	fmt.Fprintln(w, "Reports:")
	for _, f := range out.Files {
		fmt.Fprintf(w, "  %s (%s): %s\n", f.Type, f.Format, f.Path)
	}
}

func formatRetention(rate float64, err error) string {
	if err != nil {
		return "undefined (" + err.Error() + ")"
	}
	return fmt.Sprintf("%.2f%%", rate)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runCurrent, "current", "", "current-year extract (overrides files.current_year)")
	runCmd.Flags().StringVar(&runPrevious, "previous", "", "previous-year extract (overrides files.previous_year)")
	runCmd.Flags().StringVar(&runKeys, "keys", "", "comma-separated primary key columns (overrides primary_keys)")
	runCmd.Flags().StringVarP(&runOutputDir, "output-dir", "o", "", "report directory (overrides reporter.output_dir)")
	runCmd.Flags().StringVar(&runFormats, "formats", "", "comma-separated report formats: csv,json,sqlite")
	runCmd.Flags().StringVar(&runCompany, "company", "", "company name used in report file names")
	runCmd.Flags().BoolVar(&runLLM, "llm", false, "also run the LLM row check")
}
