package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/sluice/internal/cli"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var opts cli.Options

var rootCmd = &cobra.Command{
	Use:   "sluice [task...]",
	Short: "Sluice is a front-end build task runner",
	Long: `Sluice runs the tasks of a front-end project: style compilation, HTML
includes, bundling, a live-reload dev server and file watchers.

Tasks are declared in sluice.yaml (or sluice.toml, or Markdown files under
tasks/). Without arguments the "default" task runs.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTasks,
}

// Execute adds all child commands to the root command and exits with the
// status of the failed command, if any.
func Execute() {
	ctx := cli.NewSignalContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	ctx.Cancel()
	if err == nil {
		return
	}

	code := 1
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		code = exit.Code
		if exit.Reported {
			os.Exit(code)
		}
	}
	out := termenv.NewOutput(os.Stderr)
	fmt.Fprintln(os.Stderr, out.String("Error: "+err.Error()).Foreground(termenv.ANSIRed))
	os.Exit(code)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.Dir, "dir", "C", ".", "Project directory")
	flags.StringVarP(&opts.File, "file", "f", "", "Taskfile to use instead of discovering one in --dir")
	flags.BoolVar(&opts.Debug, "debug", false, "Log debug information to stderr")
	flags.IntVarP(&opts.Concurrency, "concurrency", "j", 0, "Maximum tasks running at once (0 means no limit)")
	flags.StringVar(&opts.Store, "store", cli.StoreMemory, "Run history backend: memory, file or redis")
	flags.StringVar(&opts.RedisURL, "redis-url", os.Getenv("SLUICE_REDIS_URL"), "Redis URL for --store redis")
	flags.IntVar(&opts.KeepRuns, "keep-runs", 100, "Runs kept by the file and redis stores (0 keeps all)")
	flags.BoolVar(&opts.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable coloured output")
}
