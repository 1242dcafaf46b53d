package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pollster/config"
	"github.com/jpalmerr/pollster/internal/httpresource"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pollster configuration file without polling anything.

This command parses the YAML, expands environment variables, validates all
fields and expands grids. It is useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pollster validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	client := httpresource.NewClient()
	defer client.Close()

	bindings, err := config.BuildBindings(cfg, client)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Resources)
	fromGrids := len(bindings) - direct

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Default delay: %s\n", cfg.DefaultDelay.Duration())
	fmt.Fprintf(out, "  Metrics:       %t\n", cfg.Metrics.Enabled)
	fmt.Fprintf(out, "  Resources:     %d direct + %d from grids = %d total\n",
		direct, fromGrids, len(bindings))

	return nil
}
