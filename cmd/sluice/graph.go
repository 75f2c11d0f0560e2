package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the task graph as a Mermaid diagram",
	Long: `Prints a Mermaid flowchart of the tasks and their prerequisites.
With --run, tasks are coloured by their outcome in a stored run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		return cli.Graph(cmd.Context(), opts, runID)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("run", "", "Overlay the outcome of this run ID")
}
