package compiler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	httpadapter "github.com/aretw0/sluice/pkg/adapters/http"
	"github.com/aretw0/sluice/pkg/adapters/process"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/pipeline"
	"github.com/aretw0/sluice/pkg/plugins"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/aretw0/sluice/pkg/watch"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/muesli/termenv"
)

// RerunFunc starts a fresh invocation of names, used when a watch binding fires.
type RerunFunc func(ctx context.Context, names ...string) (*domain.RunRecord, error)

// Compiler turns a Taskfile into executable domain tasks.
type Compiler struct {
	// Root is the project directory; every path in the Taskfile is relative to it.
	Root    string
	Plugins *plugins.Registry
	Tools   *process.Runner
	// Reloads is shared by serve and watch tasks so that a rebuild reaches the browsers.
	Reloads *httpadapter.StreamManager
	// API, when set, is mounted on every dev server.
	API    *httpadapter.Server
	Rerun  RerunFunc
	Logger *slog.Logger
	Out    io.Writer
}

// New returns a compiler with the built-in plugins and an empty tool registry.
func New(root string) *Compiler {
	return &Compiler{
		Root:    root,
		Plugins: plugins.Default(),
		Tools:   process.NewRunner(process.WithBaseDir(root)),
		Reloads: httpadapter.NewStreamManager(nil),
		Logger:  slog.Default(),
		Out:     os.Stdout,
	}
}

// Compile builds one domain task per Taskfile entry, in lexical order.
// Every problem found is reported, not only the first.
func (c *Compiler) Compile(f *taskfile.File) ([]domain.Task, error) {
	var (
		tasks    []domain.Task
		problems []string
	)
	for _, name := range f.TaskNames() {
		task, err := c.compileTask(name, f.Tasks[name])
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		for _, b := range task.Watch {
			for _, target := range b.Tasks {
				if _, ok := f.Tasks[target]; !ok {
					problems = append(problems, fmt.Sprintf("task %q: watch: %v: %q", name, domain.ErrUnknownTask, target))
				}
			}
		}
		tasks = append(tasks, task)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("failed to compile taskfile:\n- %s", strings.Join(problems, "\n- "))
	}
	return tasks, nil
}

func (c *Compiler) compileTask(name string, t taskfile.Task) (domain.Task, error) {
	task := domain.Task{
		Name:        name,
		Deps:        t.Deps,
		Description: strings.TrimSpace(t.Description),
		Kind:        t.Kind(),
	}
	if task.Kind == "" {
		task.Kind = domain.KindGroup
	}

	var err error
	switch task.Kind {
	case domain.KindPipeline:
		task.Action, err = c.pipeline(t)
	case domain.KindClean:
		task.Action = c.clean(t.Clean)
	case domain.KindExec:
		task.Action, err = c.exec(*t.Exec)
	case domain.KindRequire:
		task.Action = c.require(*t.Require)
	case domain.KindServe:
		task.Action = c.serve(*t.Serve)
	case domain.KindWatch:
		task.Watch, err = bindings(t.Watch)
		if err == nil {
			task.Action, err = c.watch(task.Watch)
		}
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %q: %w", name, err)
	}
	return task, nil
}

func (c *Compiler) env() plugins.Env {
	return plugins.Env{Root: c.Root, Tools: c.Tools, Logger: c.Logger, Out: c.Out}
}

func (c *Compiler) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

func (c *Compiler) pipeline(t taskfile.Task) (domain.Action, error) {
	steps, err := t.NormalizedSteps()
	if err != nil {
		return nil, err
	}
	stages := make([]pipeline.Stage, 0, len(steps)+1)
	for _, step := range steps {
		stage, err := c.Plugins.Build(step.Plugin, step.Options, c.env())
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	if t.Dest != "" {
		stages = append(stages, pipeline.Dest(c.path(t.Dest)))
	}

	p := pipeline.New(pipeline.Src(c.Root, t.Src...), stages...)
	return domain.Stream(p.Open), nil
}

// clean removes files and directories matching patterns. "!" patterns keep matches.
func (c *Compiler) clean(patterns []string) domain.Action {
	return domain.Func(func(ctx context.Context) error {
		targets, err := cleanTargets(c.Root, patterns)
		if err != nil {
			return err
		}
		for _, target := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("failed to remove %s: %w", target, err)
			}
		}
		c.Logger.Debug("Cleaned", "removed", len(targets))
		return nil
	})
}

func cleanTargets(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	var includes, excludes []string
	for _, raw := range patterns {
		neg := strings.HasPrefix(raw, "!")
		p := strings.TrimPrefix(filepath.ToSlash(strings.TrimPrefix(raw, "!")), "./")
		p = strings.TrimSuffix(p, "/")
		if p == "" || p == "." || p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("clean pattern %q must stay inside the project", raw)
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", raw)
		}
		if neg {
			excludes = append(excludes, p)
		} else {
			includes = append(includes, p)
		}
	}

	seen := make(map[string]bool)
	for _, p := range includes {
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
	match:
		for _, m := range matches {
			for _, ex := range excludes {
				if ok, _ := doublestar.Match(ex, m); ok {
					continue match
				}
			}
			seen[m] = true
		}
	}

	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	// Children before parents.
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func (c *Compiler) exec(spec taskfile.ExecSpec) (domain.Action, error) {
	if !c.Tools.Has(spec.Tool) {
		return nil, fmt.Errorf("exec: unknown tool %q", spec.Tool)
	}
	out, prefix := c.Out, ""
	switch spec.Log {
	case "":
		if spec.Echo != "" {
			prefix = termenv.NewOutput(c.Out).String(spec.Echo).Foreground(termenv.ANSICyan).String()
		}
	case taskfile.LogBower:
		label := spec.Echo
		if label == "" {
			label = "bower"
		}
		out = &bowerLog{out: c.Out, label: label, term: termenv.NewOutput(c.Out)}
	default:
		return nil, fmt.Errorf("exec: unknown log format %q", spec.Log)
	}
	return domain.Func(func(ctx context.Context) error {
		return c.Tools.Stream(ctx, spec.Tool, c.path(spec.Dir), out, prefix, spec.Args...)
	}), nil
}

func (c *Compiler) require(spec taskfile.RequireSpec) domain.Action {
	return domain.Func(func(context.Context) error {
		if _, err := c.Tools.Which(spec.Tool); err != nil {
			return &domain.ToolMissingError{
				Tool:        spec.Tool,
				Message:     spec.Message,
				Remediation: spec.Remediation,
			}
		}
		return nil
	})
}

// serve runs a dev server. Changes to Files reload the browsers directly.
func (c *Compiler) serve(spec taskfile.ServeSpec) domain.Action {
	return domain.Service(func(ctx context.Context, ready func()) error {
		base := c.path(spec.BaseDir)
		dev := httpadapter.NewDevServer(base, spec.Host, spec.Port, c.Reloads)
		dev.API = c.API
		dev.Logger = c.Logger

		if len(spec.Files) > 0 {
			w, err := watch.New(base, []domain.WatchBinding{{Paths: spec.Files, Reload: true}},
				func(_ context.Context, _ domain.WatchBinding, path string) { dev.Reload(path) },
				watch.WithLogger(c.Logger))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Close()
		}

		return dev.ListenAndServe(ctx, ready)
	})
}

// watch re-runs the bound tasks on change. A failed rerun is reported and
// watching continues.
func (c *Compiler) watch(bs []domain.WatchBinding) (domain.Action, error) {
	if c.Rerun == nil {
		return nil, fmt.Errorf("watch: no runner configured")
	}
	trigger := func(ctx context.Context, b domain.WatchBinding, path string) {
		c.Logger.Info("File changed", "path", path, "tasks", b.Tasks)
		if len(b.Tasks) > 0 {
			if _, err := c.Rerun(ctx, b.Tasks...); err != nil {
				c.Logger.Error("Watch run failed", "tasks", b.Tasks, "err", err)
				return
			}
		}
		if b.Reload && c.Reloads != nil {
			c.Reloads.Broadcast(httpadapter.TopicReload, path)
		}
	}

	return domain.Service(func(ctx context.Context, ready func()) error {
		w, err := watch.New(c.Root, bs, trigger, watch.WithLogger(c.Logger))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		ready()
		<-w.Done()
		return nil
	}), nil
}

func bindings(specs []taskfile.WatchSpec) ([]domain.WatchBinding, error) {
	out := make([]domain.WatchBinding, 0, len(specs))
	for _, s := range specs {
		d, err := s.DebounceDuration()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.WatchBinding{
			Paths:    s.Paths,
			Tasks:    s.Tasks,
			Reload:   s.Reload,
			Debounce: d,
		})
	}
	return out, nil
}
