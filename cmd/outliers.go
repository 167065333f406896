package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/policyqa-cli/internal/analysis"
	"github.com/KaramelBytes/policyqa-cli/internal/loader"
	"github.com/KaramelBytes/policyqa-cli/internal/utils"
)

var (
	outFormat        string
	outOutputPath    string
	outRareThreshold float64
	outInterpolation string
	outColumnTypes   string
)

var outliersCmd = &cobra.Command{
	Use:   "outliers <file>",
	Short: "Scan one extract for numeric, date and rare-category outliers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		ocfg := c.OutlierEngineConfig()
		if cmd.Flags().Changed("rare-threshold") {
			ocfg.RareCategoryThreshold = outRareThreshold
		}
		if outInterpolation != "" {
			ocfg.Interpolation = outInterpolation
		}
		if outColumnTypes != "" {
			ocfg.ColumnTypes = map[string]string{}
			for _, pair := range splitList(outColumnTypes) {
				col, class, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("invalid --column-types entry %q (want column=type)", pair)
				}
				ocfg.ColumnTypes[strings.TrimSpace(col)] = strings.TrimSpace(class)
			}
		}
		eng, err := analysis.NewEngine(ocfg)
		if err != nil {
			return err
		}
		t, err := loader.Load(args[0], c.LoaderOptions())
		if err != nil {
			return err
		}
		res := eng.Detect(t)

		var body []byte
		switch strings.ToLower(outFormat) {
		case "", "markdown", "md":
			body = []byte(res.Markdown(t.Name(), t.Len()))
		case "json":
			body, err = utils.PrettyJSON(analysis.Summarize(res, t.Len()))
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported --format: %s (use markdown|json)", outFormat)
		}

		if outOutputPath != "" {
			if err := utils.SafeWriteFile(outOutputPath, body); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote outlier summary to %s\n", outOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(outliersCmd)
	outliersCmd.Flags().StringVarP(&outFormat, "format", "f", "markdown", "output format: markdown | json")
	outliersCmd.Flags().StringVarP(&outOutputPath, "output", "o", "", "optional path to write the summary")
	outliersCmd.Flags().Float64Var(&outRareThreshold, "rare-threshold", 0, "percent below which a category is rare (overrides config)")
	outliersCmd.Flags().StringVar(&outInterpolation, "interpolation", "", "quantile interpolation: nearest|linear|lower|higher|midpoint")
	outliersCmd.Flags().StringVar(&outColumnTypes, "column-types", "", "force classifications, e.g. PostalCode=categorical,Age=numeric")
}
