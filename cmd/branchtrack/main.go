// Package main provides the entry point for the branchtrack CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/branchtrack/cmd/branchtrack/commands"
	"github.com/Sumatoshi-tech/branchtrack/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "branchtrack",
		Short: "Branchtrack - versioned branch tracking for search sessions",
		Long: `Branchtrack records (params, result) branches on top of a persistent
segment tree. Every recorded branch creates a new version and every earlier
version stays queryable, including versions on forked lines.

Commands:
  mcp       Serve a session over the Model Context Protocol
  replay    Replay a YAML script of branch operations`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(commands.NewReplayCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "branchtrack %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
