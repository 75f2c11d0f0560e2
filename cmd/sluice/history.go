package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long:  `Lists the runs kept by the run store. Use with --store file or --store redis.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.History(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
