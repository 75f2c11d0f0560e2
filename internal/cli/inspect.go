package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/presentation/graph"
	"github.com/aretw0/sluice/internal/presentation/tui"
	"github.com/aretw0/sluice/internal/validator"
	"github.com/aretw0/sluice/pkg/adapters/process"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/plugins"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/muesli/termenv"
)

// List prints every task with its prerequisites and description.
func List(opts Options) error {
	engine, closeStore, err := createEngine(opts, logging.ForDebug(opts.Debug))
	if err != nil {
		return err
	}
	defer closeStore()
	return render(opts, tui.TaskList(engine.Name, engine.Inspect()))
}

// Describe prints one task in detail.
func Describe(opts Options, name string) error {
	engine, closeStore, err := createEngine(opts, logging.ForDebug(opts.Debug))
	if err != nil {
		return err
	}
	defer closeStore()
	task, ok := engine.Graph().Task(name)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownTask, name)
	}
	return render(opts, tui.TaskDetail(task))
}

// Graph prints the task graph as a Mermaid flowchart, coloured by the outcome
// of runID when given.
func Graph(ctx context.Context, opts Options, runID string) error {
	engine, closeStore, err := createEngine(opts, logging.ForDebug(opts.Debug))
	if err != nil {
		return err
	}
	defer closeStore()

	var overlay *graph.RunOverlay
	if runID != "" {
		run, err := engine.LoadRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to load run %s: %w", runID, err)
		}
		overlay = graph.OverlayFor(run)
	}
	_, err = fmt.Fprint(opts.stdout(), graph.GenerateMermaid(engine.Inspect(), overlay))
	return err
}

// Validate lints the task definitions without running them.
func Validate(ctx context.Context, opts Options) error {
	def, err := loadDefinition(ctx, opts)
	if err != nil {
		return err
	}
	extra, err := process.LoadTools(filepath.Join(opts.dir(), sluice.ToolsFile))
	if err != nil {
		return err
	}
	tools := process.NewRunner(process.WithRegistry(process.Merge(process.FromTaskfile(def.Tools), extra)))

	res := validator.ValidateTaskfile(def, plugins.Default(), tools, DefaultTask)
	out := termenv.NewOutput(opts.stdout(), colorOptions(opts)...)
	for _, issue := range res.Issues {
		color := termenv.ANSIYellow
		if issue.Severity == validator.SeverityError {
			color = termenv.ANSIRed
		}
		fmt.Fprintln(out, out.String(issue.String()).Foreground(color))
	}
	if err := res.Err(); err != nil {
		return &ExitError{Code: 1, Err: err, Reported: true}
	}
	fmt.Fprintln(out, out.String(fmt.Sprintf("✓ %d tasks valid", len(def.Tasks))).Foreground(termenv.ANSIGreen))
	return nil
}

// History prints the stored runs, oldest first.
func History(ctx context.Context, opts Options) error {
	engine, closeStore, err := createEngine(opts, logging.ForDebug(opts.Debug))
	if err != nil {
		return err
	}
	defer closeStore()

	ids, err := engine.History(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if opts.Store == "" || opts.Store == StoreMemory {
			fmt.Fprintln(opts.stdout(), "No runs recorded. Use --store file or --store redis to keep history.")
		} else {
			fmt.Fprintln(opts.stdout(), "No runs recorded.")
		}
		return nil
	}

	w := tabwriter.NewWriter(opts.stdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tDURATION\tTASKS")
	for _, id := range ids {
		run, err := engine.LoadRun(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrRunNotFound) {
				continue
			}
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.Status,
			run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond), strings.Join(run.Tasks, ","))
	}
	return w.Flush()
}

// Init writes the default Taskfile into --dir.
func Init(opts Options, force bool) error {
	path := opts.taskfilePath()
	if path == "" {
		path = filepath.Join(opts.dir(), taskfile.Names[0])
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, taskfile.Default, 0o644); err != nil {
		return fmt.Errorf("failed to write taskfile: %w", err)
	}
	fmt.Fprintf(opts.stdout(), "Created %s\n", path)
	return nil
}

func render(opts Options, markdown string) error {
	renderFn := func(md string) (string, error) { return md, nil }
	if f, ok := opts.stdout().(*os.File); ok && !opts.NoColor {
		renderFn = tui.NewRenderer(f)
	}
	out, err := renderFn(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(opts.stdout(), out)
	return err
}

func colorOptions(opts Options) []termenv.OutputOption {
	if opts.NoColor {
		return []termenv.OutputOption{termenv.WithProfile(termenv.Ascii)}
	}
	return nil
}
