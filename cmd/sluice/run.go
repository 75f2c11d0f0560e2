package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run tasks and their prerequisites",
	Long: `Runs the named tasks, or "default", with every prerequisite first.

Runs that start a dev server or watchers keep going until interrupted, and
restart when the task definitions change.`,
	Example: `  sluice run build
  sluice run install
  sluice run jswatch`,
	RunE: runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	return cli.Execute(cmd.Context(), opts, args)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
