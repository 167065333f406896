package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/policyqa-cli/internal/compare"
	"github.com/KaramelBytes/policyqa-cli/internal/loader"
	"github.com/KaramelBytes/policyqa-cli/internal/report"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

var (
	cmpKeys   string
	cmpSuffix string
	cmpReport bool
	cmpJSON   bool
	cmpJoined string
)

var compareCmd = &cobra.Command{
	Use:   "compare <current> <previous>",
	Short: "Reconcile two extracts on their primary keys",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		keys := splitList(cmpKeys)
		if len(keys) == 0 {
			keys = c.PrimaryKeys
		}
		suffix := c.Comparison.Suffix
		if cmpSuffix != "" {
			suffix = cmpSuffix
		}
		eng, err := compare.New(keys, suffix)
		if err != nil {
			return fmt.Errorf("%w (set --keys or primary_keys)", err)
		}
		cur, prev, err := loader.LoadPair(args[0], args[1], c.LoaderOptions())
		if err != nil {
			return err
		}
		res, err := eng.Compare(cur, prev)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if cmpJSON {
			b, err := utils.PrettyJSON(res.Stats)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
		} else {
			s := res.Stats
			fmt.Fprintf(w, "Current records:  %d\n", s.TotalCurrent)
			fmt.Fprintf(w, "Previous records: %d\n", s.TotalPrevious)
			fmt.Fprintf(w, "New:     %d\n", s.NewCount)
			fmt.Fprintf(w, "Lapsed:  %d\n", s.LapsedCount)
			fmt.Fprintf(w, "Matched: %d\n", s.MatchedCount)
			fmt.Fprintf(w, "Retention: %s\n", formatRetention(s.Retention()))
		}

		if cmpJoined != "" {
			joined, err := res.Joined()
			if err != nil {
				return err
			}
			if err := report.WriteTableCSV(cmpJoined, joined); err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Wrote joined view (%d rows) to %s\n", joined.Len(), cmpJoined)
		}
		if cmpReport {
			gen, err := report.New(report.Config{
				OutputDir:   c.Reporter.OutputDir,
				CompanyName: c.Reporter.CompanyName,
				Formats:     c.Reporter.ReportFormats,
			})
			if err != nil {
				return err
			}
			files, err := gen.WriteComparison(res)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(w, "✓ Wrote %s (%s) to %s\n", f.Type, f.Format, f.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVarP(&cmpKeys, "keys", "k", "", "comma-separated primary key columns (default from config)")
	compareCmd.Flags().StringVar(&cmpSuffix, "suffix", "", "suffix for previous-year columns in the joined view")
	compareCmd.Flags().BoolVar(&cmpReport, "report", false, "write lapsed/new record reports to reporter.output_dir")
	compareCmd.Flags().BoolVar(&cmpJSON, "json", false, "print stats as JSON")
	compareCmd.Flags().StringVar(&cmpJoined, "joined", "", "write the full outer-joined view to this CSV path")
}
