package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/policyqa-cli/internal/llmcheck"
	"github.com/KaramelBytes/policyqa-cli/internal/loader"
	"github.com/KaramelBytes/policyqa-cli/internal/pipeline"
)

var (
	llmOutput    string
	llmModel     string
	llmHost      string
	llmKeys      string
	llmBatchSize int
	llmDelayMs   int
)

var llmCheckCmd = &cobra.Command{
	Use:   "llm-check <file>",
	Short: "Ask a local model to run row-level plausibility tests",
	Long: `llm-check sends one prompt per record to an Ollama runtime and records
ColourTest, DateConsistencyTest and PremiumTests as 1 (pass) or 0 (fail).
A failed call or unreadable reply marks the row as failing all tests.
Results are checkpointed every --batch-size rows; Ctrl-C keeps what was done.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if keys := splitList(llmKeys); len(keys) > 0 {
			c.PrimaryKeys = keys
		}
		if llmOutput != "" {
			c.LLMValidator.OutputPath = llmOutput
		}
		if llmModel != "" {
			c.LLMValidator.ModelName = llmModel
		}
		if llmHost != "" {
			c.LLMValidator.OllamaURL = llmHost
		}
		if llmBatchSize > 0 {
			c.LLMValidator.BatchSize = llmBatchSize
		}
		if cmd.Flags().Changed("delay-ms") {
			c.LLMValidator.DelayMs = llmDelayMs
		}
		if err := c.Validate("llm"); err != nil {
			return err
		}
		t, err := loader.Load(args[0], c.LoaderOptions())
		if err != nil {
			return err
		}
		sum, err := pipeline.LLMCheck(cmd.Context(), c, t, nil)
		w := cmd.OutOrStdout()
		if sum != nil {
			fmt.Fprintf(w, "Checked %d of %d rows (%d failed calls)\n", sum.Rows, t.Len(), sum.Failed)
			parts := make([]string, 0, len(llmcheck.Tests))
			for _, name := range llmcheck.Tests {
				parts = append(parts, fmt.Sprintf("%s=%d", name, sum.Passing[name]))
			}
			fmt.Fprintf(w, "Passing: %s\n", strings.Join(parts, ", "))
			fmt.Fprintf(w, "✓ Results written to %s\n", c.LLMValidator.OutputPath)
		}
		if err != nil && cmd.Context().Err() != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ Interrupted; partial results were saved")
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(llmCheckCmd)
	llmCheckCmd.Flags().StringVarP(&llmOutput, "output", "o", "", "results CSV (overrides llm_validator.output_path)")
	llmCheckCmd.Flags().StringVarP(&llmModel, "model", "m", "", "model name (overrides llm_validator.model_name)")
	llmCheckCmd.Flags().StringVar(&llmHost, "host", "", "Ollama URL (overrides llm_validator.ollama_url)")
	llmCheckCmd.Flags().StringVar(&llmKeys, "keys", "", "comma-separated key columns copied into the results")
	llmCheckCmd.Flags().IntVar(&llmBatchSize, "batch-size", 0, "rows between checkpoints (overrides llm_validator.batch_size)")
	llmCheckCmd.Flags().IntVar(&llmDelayMs, "delay-ms", 0, "minimum milliseconds between model calls")
}
