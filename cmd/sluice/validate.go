package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the task definitions without running them",
	Long:  `Reports unknown plugins, tools and tasks, malformed globs, cycles and missing required tools.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
