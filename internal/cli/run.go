package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/presentation/tui"
	"github.com/aretw0/sluice/pkg/domain"
)

// Execute runs tasks (DefaultTask when empty) until they finish or ctx is
// cancelled. Long-lived runs restart when the task definitions change.
func Execute(ctx context.Context, opts Options, tasks []string) error {
	logger := logging.ForDebug(opts.Debug)
	reporter := tui.NewReporter(opts.stdout(), opts.NoColor)

	engine, closeStore, err := createEngine(opts, logger, sluice.WithLifecycleHooks(reporter.Hooks()))
	if err != nil {
		return err
	}
	defer closeStore()

	if len(tasks) == 0 {
		tasks = []string{DefaultTask}
	}
	logger.Info("Running", "dir", engine.Dir(), "tasks", tasks)

	err = runWithReload(ctx, engine, tasks, reporter, logger)
	return handleExecutionError(ctx, err, reporter)
}

// runner is the part of the engine the reload loop drives.
type runner interface {
	Run(ctx context.Context, names ...string) (*domain.RunRecord, error)
	Watch(ctx context.Context) (<-chan string, error)
	Reload(ctx context.Context) error
}

func runWithReload(ctx context.Context, engine runner, tasks []string, reporter *tui.Reporter, logger *slog.Logger) error {
	changes, err := engine.Watch(ctx)
	if err != nil {
		logger.Debug("Definitions are not watched", "err", err)
	}

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			_, err := engine.Run(runCtx, tasks...)
			done <- err
		}()

		restart := false
		for !restart {
			select {
			case err := <-done:
				cancel()
				return err
			case path, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				if err := engine.Reload(ctx); err != nil {
					reporter.Errorf("Keeping previous tasks, reload failed: %v", err)
					continue
				}
				logger.Info("Task definitions changed, restarting", "path", path)
				restart = true
			}
		}
		cancel()
		<-done
	}
}

// handleExecutionError maps a run failure to an exit status. An interrupted
// run exits cleanly.
func handleExecutionError(ctx context.Context, err error, reporter *tui.Reporter) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	var missing *domain.ToolMissingError
	if errors.As(err, &missing) {
		reporter.ToolMissing(missing)
		return &ExitError{Code: 1, Err: err, Reported: true}
	}
	return &ExitError{Code: 1, Err: err}
}
