package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/KaramelBytes/policyqa-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set policyqa configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		b, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		w := cmd.OutOrStdout()
		if c.Source != "" {
			fmt.Fprintf(w, "# from %s\n", c.Source)
		}
		fmt.Fprint(w, string(b))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set updates a dotted key such as reporter.output_dir or llm_validator.batch_size.
Lists take comma-separated values, e.g. primary_keys PolicyID,Year.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		updated, err := cfgpkg.Set(c, args[0], args[1])
		if err != nil {
			return err
		}
		target := cfgFile
		if target == "" {
			target = c.Source
		}
		path, err := cfgpkg.Save(updated, target)
		if err != nil {
			return err
		}
		cfg = updated
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s to %s\n", args[0], path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
