package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/policyqa-cli/internal/loader"
	"github.com/KaramelBytes/policyqa-cli/internal/report"
	"github.com/KaramelBytes/policyqa-cli/internal/rules"
)

var (
	valStrict       bool
	valInvalidRows  string
	valWithWarnings bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check business rules against one extract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		v, err := rules.New(c.Validator)
		if err != nil {
			return err
		}
		t, err := loader.Load(args[0], c.LoaderOptions())
		if err != nil {
			return err
		}
		rep := v.Validate(t)

		w := cmd.OutOrStdout()
		for _, r := range rep.Results {
			mark := "✓"
			if r.Violations > 0 {
				mark = "✗"
				if r.Severity != rules.SeverityError {
					mark = "⚠"
				}
			}
			fmt.Fprintf(w, "%s %s [%s] %d violations", mark, r.Name, r.Severity, r.Violations)
			if r.Violations > 0 || strings.HasPrefix(r.Message, "Missing columns") {
				fmt.Fprintf(w, ": %s", r.Message)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%d errors, %d warnings\n", rep.ErrorCount, rep.WarningCount)

		if valInvalidRows != "" {
			sub := t.Select(v.InvalidRows(t, valWithWarnings))
			if err := report.WriteTableCSV(valInvalidRows, sub); err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Wrote %d invalid rows to %s\n", sub.Len(), valInvalidRows)
		}
		if valStrict && rep.ErrorCount > 0 {
			return fmt.Errorf("%d rule errors in %s", rep.ErrorCount, args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&valStrict, "strict", false, "exit non-zero when any error-severity rule is violated")
	validateCmd.Flags().StringVar(&valInvalidRows, "invalid-rows", "", "write the violating rows to this CSV path")
	validateCmd.Flags().BoolVar(&valWithWarnings, "include-warnings", false, "with --invalid-rows, include rows that only fail warnings")
}
