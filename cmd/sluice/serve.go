package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/spf13/cobra"
)

var serveOpts cli.ServeOptions

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve a directory with live reload and the JSON API",
	Long: `Starts the dev server on a directory of the project without running any
task. The JSON API lives under /api, its OpenAPI document at /openapi.yaml
and executor metrics at /metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			serveOpts.BaseDir = args[0]
		}
		return cli.Serve(cmd.Context(), opts, serveOpts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveOpts.BaseDir, "base-dir", "www", "Directory to serve, relative to the project")
	serveCmd.Flags().StringVar(&serveOpts.Host, "host", taskfile.DefaultHost, "Host to listen on")
	serveCmd.Flags().IntVarP(&serveOpts.Port, "port", "p", taskfile.DefaultPort, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveOpts.Banner, "banner", true, "Print the banner on start")
}
