// Package main is the entry point for the pollster CLI.
//
// Usage:
//
//	pollster serve -c config.yaml    # Poll resources and serve results
//	pollster validate -c config.yaml # Validate configuration
//	pollster version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pollster",
	Short: "Poll HTTP resources on a fixed delay",
	Long: `pollster polls HTTP resources with one poller per resource.

Each poller fetches its resource, waits the configured delay after the
fetch completes, and fetches again. Latest results are served as JSON and
streamed with Server-Sent Events.

Quick start:
  1. Create a config file (pollster.yaml)
  2. Run: pollster serve -c pollster.yaml
  3. curl http://localhost:8080/api/results

Example config:
  port: 8080
  default_delay: 5s
  resources:
    - name: users
      url: https://api.example.com/users
      action: query`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pollster binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pollster %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the level named by the
// --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(levelName))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", levelName)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}
