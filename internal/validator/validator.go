package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/sluice/pkg/adapters/process"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/plugins"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/bmatcuk/doublestar/v4"
)

// Severity ranks an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding about a Taskfile.
type Issue struct {
	Severity Severity
	Task     string
	Message  string
}

func (i Issue) String() string {
	if i.Task == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: task %q: %s", i.Severity, i.Task, i.Message)
}

// Result collects the issues of one validation.
type Result struct {
	Issues []Issue
}

// Err returns nil when no issue is an error.
func (r Result) Err() error {
	var errs []string
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i.String())
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(errs), strings.Join(errs, "\n- "))
}

// ValidateTaskfile checks a decoded Taskfile against the plugin and tool
// registries without running anything:
//   - prerequisites and watch targets name existing tasks
//   - the prerequisite graph is acyclic
//   - pipeline steps name registered plugins
//   - exec tasks name registered tools
//   - glob patterns are well formed
//
// Required tools that are not installed and tasks nothing depends on are
// reported as warnings. entry names the task invoked by default.
func ValidateTaskfile(f *taskfile.File, reg *plugins.Registry, tools *process.Runner, entry string) Result {
	var res Result
	add := func(sev Severity, task, format string, args ...any) {
		res.Issues = append(res.Issues, Issue{Severity: sev, Task: task, Message: fmt.Sprintf(format, args...)})
	}

	if err := f.Validate(); err != nil {
		add(SeverityError, "", "%v", err)
		return res
	}

	skeleton := make([]domain.Task, 0, len(f.Tasks))
	referenced := make(map[string]bool)
	for _, name := range f.TaskNames() {
		t := f.Tasks[name]
		skeleton = append(skeleton, domain.Task{Name: name, Deps: t.Deps})
		for _, d := range t.Deps {
			referenced[d] = true
		}

		steps, _ := t.NormalizedSteps()
		for _, s := range steps {
			if !reg.Has(s.Plugin) {
				add(SeverityError, name, "unknown plugin %q", s.Plugin)
			}
		}
		checkPatterns(add, name, "src", t.Src)
		checkPatterns(add, name, "clean", t.Clean)

		if t.Exec != nil && !tools.Has(t.Exec.Tool) {
			add(SeverityError, name, "unknown tool %q", t.Exec.Tool)
		}
		if t.Require != nil {
			if _, err := tools.Which(t.Require.Tool); err != nil {
				add(SeverityWarning, name, "required tool %q is not installed", t.Require.Tool)
			}
		}
		for _, w := range t.Watch {
			checkPatterns(add, name, "watch", w.Paths)
			for _, target := range w.Tasks {
				referenced[target] = true
				if _, ok := f.Tasks[target]; !ok {
					add(SeverityError, name, "watch re-runs unknown task %q", target)
				}
			}
		}
		if t.Serve != nil {
			checkPatterns(add, name, "serve", t.Serve.Files)
		}
	}

	if _, err := domain.NewGraph(skeleton...); err != nil {
		add(SeverityError, "", "%v", err)
		return res
	}

	if entry != "" {
		if _, ok := f.Tasks[entry]; !ok {
			add(SeverityWarning, "", "no %q task; 'sluice run' needs explicit task names", entry)
		}
	}
	var orphans []string
	for name := range f.Tasks {
		if name != entry && !referenced[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		if f.Tasks[name].Description == "" {
			add(SeverityWarning, name, "not referenced by any task and has no description")
		}
	}
	return res
}

func checkPatterns(add func(Severity, string, string, ...any), task, field string, patterns []string) {
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimPrefix(p, "!"), "./")
		if !doublestar.ValidatePattern(p) {
			add(SeverityError, task, "%s: invalid pattern %q", field, p)
		}
	}
}
