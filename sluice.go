package sluice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/sluice/internal/compiler"
	"github.com/aretw0/sluice/internal/runtime"
	httpadapter "github.com/aretw0/sluice/pkg/adapters/http"
	fileadapter "github.com/aretw0/sluice/pkg/adapters/file"
	loamadapter "github.com/aretw0/sluice/pkg/adapters/loam"
	"github.com/aretw0/sluice/pkg/adapters/memory"
	"github.com/aretw0/sluice/pkg/adapters/process"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/plugins"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/prometheus/client_golang/prometheus"
)

// TasksDir is the directory of Markdown task documents used when a project
// has no Taskfile.
const TasksDir = "tasks"

// ToolsFile is the optional tool registry kept next to the Taskfile.
const ToolsFile = "tools.yaml"

// Engine is the high-level entry point of the library. It owns the task graph
// of one project and runs invocations against it.
type Engine struct {
	Name string

	dir         string
	loader      ports.GraphLoader
	source      ports.DefinitionSource
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	concurrency int
	store       ports.RunStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	plugins     *plugins.Registry
	out         io.Writer

	registry *prometheus.Registry
	executor *runtime.Executor
	// rerunner serves watch triggers. It never takes the project lock, which
	// the long-lived invocation that installed the watch already holds.
	rerunner *runtime.Executor
	reloads  *httpadapter.StreamManager
	api      *httpadapter.Server

	mu    sync.RWMutex
	graph *domain.Graph
	def   *taskfile.File
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a ready-made graph, bypassing Taskfile discovery.
func WithLoader(l ports.GraphLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithSource injects a Taskfile source, bypassing discovery.
func WithSource(s ports.DefinitionSource) Option {
	return func(e *Engine) { e.source = s }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = e.hooks.Merge(hooks) }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConcurrency bounds how many tasks run at once. Zero means no bound.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithRunStore persists a record of every invocation.
func WithRunStore(store ports.RunStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithLocker serializes invocations of the project across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithPlugins replaces the built-in plugin registry.
func WithPlugins(r *plugins.Registry) Option {
	return func(e *Engine) { e.plugins = r }
}

// WithOutput sets where tool output and lint reports go. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// New initializes an Engine for the project in dir.
//
// Unless a loader or source is injected, the Taskfile (sluice.yaml, sluice.yml
// or sluice.toml) in dir is used, falling back to Markdown task documents in
// dir/tasks.
func New(dir string, opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	e.dir = abs
	if e.Name == "" {
		e.Name = filepath.Base(abs)
	}

	if e.loader == nil && e.source == nil {
		if e.source, err = discover(abs); err != nil {
			return nil, err
		}
	}

	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.logger = e.logger.With("project", e.Name)
	if e.out == nil {
		e.out = os.Stdout
	}
	if e.plugins == nil {
		e.plugins = plugins.Default()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}

	e.registry = prometheus.NewRegistry()
	hooks := e.hooks.Merge(runtime.NewMetrics(e.registry).Hooks())

	base := []runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithConcurrency(e.concurrency),
		runtime.WithRunStore(e.store),
		runtime.WithProject(e.Name),
	}
	e.rerunner = runtime.NewExecutor(base...)
	if e.locker != nil {
		if e.lockTTL <= 0 {
			e.lockTTL = runtime.DefaultLockTTL
		}
		base = append(base, runtime.WithLocker(e.locker, e.Name, e.lockTTL))
	}
	e.executor = runtime.NewExecutor(base...)

	e.reloads = httpadapter.NewStreamManager(e.logger)
	e.api = httpadapter.NewServer(e,
		httpadapter.WithVersion(Version),
		httpadapter.WithGatherer(e.registry),
		httpadapter.WithLogger(e.logger),
	)

	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

func discover(dir string) (ports.DefinitionSource, error) {
	path, err := taskfile.Find(dir)
	if err == nil {
		return fileadapter.NewSource(path), nil
	}
	if info, statErr := os.Stat(filepath.Join(dir, TasksDir)); statErr == nil && info.IsDir() {
		return loamadapter.Open(filepath.Join(dir, TasksDir))
	}
	return nil, err
}

// Reload rebuilds the graph from the source. The previous graph stays in use
// when loading fails.
func (e *Engine) Reload(ctx context.Context) error {
	if e.loader != nil {
		g, err := e.loader.LoadGraph(ctx)
		if err != nil {
			return fmt.Errorf("failed to load graph: %w", err)
		}
		e.mu.Lock()
		e.graph, e.def = g, nil
		e.mu.Unlock()
		return nil
	}

	def, err := e.source.LoadDefinition(ctx)
	if err != nil {
		return fmt.Errorf("failed to load taskfile: %w", err)
	}
	extra, err := process.LoadTools(filepath.Join(e.dir, ToolsFile))
	if err != nil {
		return err
	}
	tools := process.Merge(process.FromTaskfile(def.Tools), extra)

	c := &compiler.Compiler{
		Root:    e.dir,
		Plugins: e.plugins,
		Tools:   process.NewRunner(process.WithRegistry(tools), process.WithBaseDir(e.dir)),
		Reloads: e.reloads,
		API:     e.api,
		Rerun:   e.rerun,
		Logger:  e.logger,
		Out:     e.out,
	}
	tasks, err := c.Compile(def)
	if err != nil {
		return err
	}
	g, err := domain.NewGraph(tasks...)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.graph, e.def = g, def
	e.mu.Unlock()
	e.logger.Debug("Graph loaded", "tasks", g.Len())
	return nil
}

// Graph returns the current task graph.
func (e *Engine) Graph() *domain.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph
}

// Definition returns the Taskfile behind the graph, or nil when the graph was
// injected with WithLoader.
func (e *Engine) Definition() *taskfile.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.def
}

// Inspect returns every task in lexical order.
func (e *Engine) Inspect() []domain.Task {
	return e.Graph().Tasks()
}

// Dir returns the absolute project directory.
func (e *Engine) Dir() string { return e.dir }

// Plugins returns the plugin registry used to compile pipelines.
func (e *Engine) Plugins() *plugins.Registry { return e.plugins }

// Run executes the named tasks and their prerequisites. A run holding services
// (dev server, watchers) returns once ctx is cancelled.
func (e *Engine) Run(ctx context.Context, names ...string) (*domain.RunRecord, error) {
	return e.executor.Run(ctx, e.Graph(), names...)
}

func (e *Engine) rerun(ctx context.Context, names ...string) (*domain.RunRecord, error) {
	return e.rerunner.Run(ctx, e.Graph(), names...)
}

// Watch reports changes to the task definitions.
// Returns error if the source does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := e.source.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	if w, ok := e.loader.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, errors.New("current source does not support watching")
}

// History lists stored run IDs, oldest first.
func (e *Engine) History(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

// LoadRun returns a stored run record.
func (e *Engine) LoadRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	return e.store.Load(ctx, id)
}

// Gatherer exposes the executor metrics.
func (e *Engine) Gatherer() prometheus.Gatherer { return e.registry }

// Serve runs a dev server for dir (relative to the project) with the JSON API
// mounted, until ctx is cancelled. ready is called once it listens.
func (e *Engine) Serve(ctx context.Context, dir, host string, port int, ready func(addr string)) error {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.dir, dir)
	}
	dev := httpadapter.NewDevServer(dir, host, port, e.reloads)
	dev.API = e.api
	dev.Logger = e.logger
	return dev.ListenAndServe(ctx, func() {
		if ready != nil {
			ready(dev.Addr())
		}
	})
}
