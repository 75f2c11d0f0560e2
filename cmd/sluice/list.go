package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the tasks of the project",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.List(opts)
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe TASK",
	Short: "Show the details of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Describe(opts, args[0])
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(describeCmd)
}
