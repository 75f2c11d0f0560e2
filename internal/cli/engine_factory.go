package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/sluice"
	fileadapter "github.com/aretw0/sluice/pkg/adapters/file"
	loamadapter "github.com/aretw0/sluice/pkg/adapters/loam"
	"github.com/aretw0/sluice/pkg/adapters/memory"
	redisadapter "github.com/aretw0/sluice/pkg/adapters/redis"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/persistence/middleware"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/aretw0/sluice/pkg/taskfile"
)

// createEngine initializes an engine with standard CLI conventions. The
// returned close function releases the run store.
func createEngine(opts Options, logger *slog.Logger, extra ...sluice.Option) (*sluice.Engine, func() error, error) {
	source, err := definitionSource(opts)
	if err != nil {
		return nil, nil, err
	}
	store, locker, closeStore, err := openStore(opts)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []sluice.Option{
		sluice.WithSource(source),
		sluice.WithLogger(logger),
		sluice.WithConcurrency(opts.Concurrency),
		sluice.WithRunStore(store),
		sluice.WithOutput(opts.stdout()),
	}
	if locker != nil {
		engineOpts = append(engineOpts, sluice.WithLocker(locker, 0))
	}
	if opts.Debug {
		engineOpts = append(engineOpts, sluice.WithLifecycleHooks(createDebugHooks(logger)))
	}
	engineOpts = append(engineOpts, extra...)

	engine, err := sluice.New(opts.dir(), engineOpts...)
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, closeStore, nil
}

// definitionSource finds the task definitions: --file, then a Taskfile in
// --dir, then Markdown documents in --dir/tasks.
func definitionSource(opts Options) (ports.DefinitionSource, error) {
	if path := opts.taskfilePath(); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("taskfile: %w", err)
		}
		return fileadapter.NewSource(path), nil
	}
	path, err := taskfile.Find(opts.dir())
	if err == nil {
		return fileadapter.NewSource(path), nil
	}
	tasksDir := filepath.Join(opts.dir(), sluice.TasksDir)
	if info, statErr := os.Stat(tasksDir); statErr == nil && info.IsDir() {
		return loamadapter.Open(tasksDir)
	}
	return nil, fmt.Errorf("%w (run 'sluice init' to create one)", err)
}

// loadDefinition reads the task definitions without compiling them.
func loadDefinition(ctx context.Context, opts Options) (*taskfile.File, error) {
	source, err := definitionSource(opts)
	if err != nil {
		return nil, err
	}
	return source.LoadDefinition(ctx)
}

// openStore selects the run store named by --store. Redis also provides a
// lock so that concurrent invocations of the same project queue up.
func openStore(opts Options) (ports.RunStore, ports.DistributedLocker, func() error, error) {
	noop := func() error { return nil }
	switch opts.Store {
	case "", StoreMemory:
		return memory.NewStore(), nil, noop, nil
	case StoreFile:
		store := fileadapter.NewStore(filepath.Join(opts.dir(), fileadapter.DefaultRunsDir))
		return persisted(store, opts), nil, noop, nil
	case StoreRedis:
		if opts.RedisURL == "" {
			return nil, nil, nil, errors.New("--store redis requires --redis-url")
		}
		store, err := redisadapter.New(opts.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return persisted(store, opts), redisadapter.NewLocker(store.Client(), "sluice:"), store.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q (want %s, %s or %s)", opts.Store, StoreMemory, StoreFile, StoreRedis)
	}
}

// persisted masks secrets in stored records and bounds the history.
func persisted(store ports.RunStore, opts Options) ports.RunStore {
	return middleware.Chain(store,
		middleware.NewRedactionMiddleware(middleware.DefaultSecretPatterns),
		middleware.NewRetentionMiddleware(opts.KeepRuns),
	)
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, e *domain.RunEvent) {
			logger.Debug("Run started", "run_id", e.RunID, "tasks", e.Tasks)
		},
		OnRunFinish: func(_ context.Context, e *domain.RunEvent) {
			logger.Debug("Run finished", "run_id", e.RunID, "status", e.Status, "duration", e.Duration, "err", e.Err)
		},
		OnTaskStart: func(_ context.Context, e *domain.TaskEvent) {
			logger.Debug("Task started", "task", e.Task)
		},
		OnTaskDone: func(_ context.Context, e *domain.TaskEvent) {
			if e.Err != nil {
				logger.Debug("Task failed", "task", e.Task, "err", e.Err)
				return
			}
			logger.Debug("Task done", "task", e.Task, "duration", e.Duration)
		},
	}
}
