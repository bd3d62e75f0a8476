// Package main provides the entry point for the logfang CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/cmd/logfang/commands"
	"github.com/Sumatoshi-tech/logfang/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "logfang",
		Short: "Logfang - central log ETL and semantic index",
		Long: `Logfang normalizes heterogeneous cloud log tables into one master
table and maintains a semantic vector index over the result.

Commands:
  run       Run the ETL pipeline (full, incremental, or single stream)
  worker    Run the embedding worker loop
  discover  Discover log source tables in the warehouse
  status    Show recent runs, queue depths, and checkpoints
  schema    Print or apply the warehouse DDL
  preview   Extract and normalize a stream without loading
  enqueue   Seed the embedding queue
  retry     Manage the dead-letter queue
  query     Semantic search over the vector index
  config    Print the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(commands.NewDiscoverCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(commands.NewPreviewCommand())
	rootCmd.AddCommand(commands.NewEnqueueCommand())
	rootCmd.AddCommand(commands.NewRetryCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
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
			fmt.Fprintf(os.Stdout, "logfang %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
