// Package cli wires the stampede command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "stampede",
	Short:   "Stress harness for HTTP control planes",
	Version: version,
	Long: `Stampede drives a weighted mix of API operations against a control
plane at a configured concurrency and rate, sorts every response into
success, expected failure, or unexpected error, and reports latency
distributions per operation.

Runs are seeded: record the seed from a report and replay the exact
same operation sequence against a fixed build.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(validateCmd)
}
