package taskfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Names probed by Find, in order.
var Names = []string{"sluice.yaml", "sluice.yml", "sluice.toml"}

// ErrNotFound is returned by Find when a directory holds no Taskfile.
var ErrNotFound = errors.New("no Taskfile found")

// File is the declarative definition of a task graph.
type File struct {
	Version int             `yaml:"version" toml:"version" json:"version" mapstructure:"version"`
	Name    string          `yaml:"name,omitempty" toml:"name" json:"name,omitempty" mapstructure:"name"`
	Tools   []ToolSpec      `yaml:"tools,omitempty" toml:"tools" json:"tools,omitempty" mapstructure:"tools"`
	Tasks   map[string]Task `yaml:"tasks" toml:"tasks" json:"tasks" mapstructure:"tasks"`
}

// ToolSpec registers an external program under a logical name.
type ToolSpec struct {
	Name        string            `yaml:"name" toml:"name" json:"name" mapstructure:"name"`
	Command     string            `yaml:"command" toml:"command" json:"command" mapstructure:"command"`
	Args        []string          `yaml:"args,omitempty" toml:"args" json:"args,omitempty" mapstructure:"args"`
	Env         map[string]string `yaml:"env,omitempty" toml:"env" json:"env,omitempty" mapstructure:"env"`
	Description string            `yaml:"description,omitempty" toml:"description" json:"description,omitempty" mapstructure:"description"`
}

// Task declares prerequisites and at most one body.
//
// Bodies:
//   - src/steps/dest: a file pipeline
//   - clean: remove files matching globs
//   - exec: run a registered external tool
//   - require: fail unless a tool is installed
//   - serve: start the dev server
//   - watch: install watch bindings
type Task struct {
	Description string       `yaml:"description,omitempty" toml:"description" json:"description,omitempty" mapstructure:"description"`
	Deps        []string     `yaml:"deps,omitempty" toml:"deps" json:"deps,omitempty" mapstructure:"deps"`
	Src         []string     `yaml:"src,omitempty" toml:"src" json:"src,omitempty" mapstructure:"src"`
	Steps       []any        `yaml:"steps,omitempty" toml:"steps" json:"steps,omitempty" mapstructure:"steps"`
	Dest        string       `yaml:"dest,omitempty" toml:"dest" json:"dest,omitempty" mapstructure:"dest"`
	Clean       []string     `yaml:"clean,omitempty" toml:"clean" json:"clean,omitempty" mapstructure:"clean"`
	Exec        *ExecSpec    `yaml:"exec,omitempty" toml:"exec" json:"exec,omitempty" mapstructure:"exec"`
	Require     *RequireSpec `yaml:"require,omitempty" toml:"require" json:"require,omitempty" mapstructure:"require"`
	Serve       *ServeSpec   `yaml:"serve,omitempty" toml:"serve" json:"serve,omitempty" mapstructure:"serve"`
	Watch       []WatchSpec  `yaml:"watch,omitempty" toml:"watch" json:"watch,omitempty" mapstructure:"watch"`
}

// LogBower parses exec output as bower log lines.
const LogBower = "bower"

// ExecSpec runs a registered tool. Output lines are echoed with Echo as a
// prefix. Log names a format the lines are parsed as before echoing.
type ExecSpec struct {
	Tool string   `yaml:"tool" toml:"tool" json:"tool" mapstructure:"tool"`
	Args []string `yaml:"args,omitempty" toml:"args" json:"args,omitempty" mapstructure:"args"`
	Dir  string   `yaml:"dir,omitempty" toml:"dir" json:"dir,omitempty" mapstructure:"dir"`
	Echo string   `yaml:"echo,omitempty" toml:"echo" json:"echo,omitempty" mapstructure:"echo"`
	Log  string   `yaml:"log,omitempty" toml:"log" json:"log,omitempty" mapstructure:"log"`
}

// RequireSpec fails the task when Tool cannot be found.
type RequireSpec struct {
	Tool        string   `yaml:"tool" toml:"tool" json:"tool" mapstructure:"tool"`
	Message     string   `yaml:"message,omitempty" toml:"message" json:"message,omitempty" mapstructure:"message"`
	Remediation []string `yaml:"remediation,omitempty" toml:"remediation" json:"remediation,omitempty" mapstructure:"remediation"`
}

// ServeSpec configures the dev server. Files lists globs (relative to BaseDir)
// whose changes trigger a browser reload.
type ServeSpec struct {
	BaseDir string   `yaml:"base_dir" toml:"base_dir" json:"base_dir" mapstructure:"base_dir"`
	Host    string   `yaml:"host,omitempty" toml:"host" json:"host,omitempty" mapstructure:"host"`
	Port    int      `yaml:"port,omitempty" toml:"port" json:"port,omitempty" mapstructure:"port"`
	Files   []string `yaml:"files,omitempty" toml:"files" json:"files,omitempty" mapstructure:"files"`
}

// WatchSpec is the declarative form of a domain.WatchBinding.
type WatchSpec struct {
	Paths    []string `yaml:"paths" toml:"paths" json:"paths" mapstructure:"paths"`
	Tasks    []string `yaml:"tasks,omitempty" toml:"tasks" json:"tasks,omitempty" mapstructure:"tasks"`
	Reload   bool     `yaml:"reload,omitempty" toml:"reload" json:"reload,omitempty" mapstructure:"reload"`
	Debounce string   `yaml:"debounce,omitempty" toml:"debounce" json:"debounce,omitempty" mapstructure:"debounce"`
}

// Step is one normalised pipeline stage.
type Step struct {
	Plugin  string
	Options map[string]any
}

// Defaults.
const (
	DefaultHost     = "localhost"
	DefaultPort     = 3000
	DefaultDebounce = 100 * time.Millisecond
)

// Find returns the first Taskfile present in dir.
func Find(dir string) (string, error) {
	for _, name := range Names {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrNotFound, dir, strings.Join(Names, ", "))
}

// Load reads and decodes a Taskfile. The format follows the file extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taskfile: %w", err)
	}
	f, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// Parse decodes a Taskfile. ext selects TOML (".toml"); anything else is YAML.
func Parse(data []byte, ext string) (*File, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ApplyDefaults fills unset optional fields.
func (f *File) ApplyDefaults() {
	if f.Version == 0 {
		f.Version = 1
	}
	if f.Tasks == nil {
		f.Tasks = map[string]Task{}
	}
	for name, t := range f.Tasks {
		if t.Serve != nil {
			if t.Serve.Host == "" {
				t.Serve.Host = DefaultHost
			}
			if t.Serve.Port == 0 {
				t.Serve.Port = DefaultPort
			}
			if t.Serve.BaseDir == "" {
				t.Serve.BaseDir = "."
			}
		}
		f.Tasks[name] = t
	}
}

// Validate checks structural rules that do not need the plugin registry.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported taskfile version %d", f.Version)
	}
	var problems []string
	for _, name := range f.TaskNames() {
		t := f.Tasks[name]
		if kinds := t.bodies(); len(kinds) > 1 {
			problems = append(problems, fmt.Sprintf("task %q declares more than one body (%s)", name, strings.Join(kinds, ", ")))
		}
		if len(t.Src) == 0 && (len(t.Steps) > 0 || t.Dest != "") {
			problems = append(problems, fmt.Sprintf("task %q has steps or dest but no src", name))
		}
		if _, err := t.NormalizedSteps(); err != nil {
			problems = append(problems, fmt.Sprintf("task %q: %v", name, err))
		}
		for i, w := range t.Watch {
			if len(w.Paths) == 0 {
				problems = append(problems, fmt.Sprintf("task %q: watch[%d] has no paths", name, i))
			}
			if _, err := w.DebounceDuration(); err != nil {
				problems = append(problems, fmt.Sprintf("task %q: watch[%d]: %v", name, i, err))
			}
		}
		if t.Exec != nil && t.Exec.Tool == "" {
			problems = append(problems, fmt.Sprintf("task %q: exec.tool is required", name))
		}
		if t.Exec != nil && t.Exec.Log != "" && t.Exec.Log != LogBower {
			problems = append(problems, fmt.Sprintf("task %q: unknown exec.log format %q", name, t.Exec.Log))
		}
		if t.Require != nil && t.Require.Tool == "" {
			problems = append(problems, fmt.Sprintf("task %q: require.tool is required", name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid taskfile:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// TaskNames returns the task names in lexical order.
func (f *File) TaskNames() []string {
	names := make([]string, 0, len(f.Tasks))
	for name := range f.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind reports which body the task declares, or "" for a pure aggregation.
func (t Task) Kind() string {
	if kinds := t.bodies(); len(kinds) > 0 {
		return kinds[0]
	}
	return ""
}

func (t Task) bodies() []string {
	var kinds []string
	if len(t.Src) > 0 {
		kinds = append(kinds, "pipeline")
	}
	if len(t.Clean) > 0 {
		kinds = append(kinds, "clean")
	}
	if t.Exec != nil {
		kinds = append(kinds, "exec")
	}
	if t.Require != nil {
		kinds = append(kinds, "require")
	}
	if t.Serve != nil {
		kinds = append(kinds, "serve")
	}
	if len(t.Watch) > 0 {
		kinds = append(kinds, "watch")
	}
	return kinds
}

// NormalizedSteps converts the raw step list. A step is either a plugin name
// or a single-key mapping from plugin name to its options.
func (t Task) NormalizedSteps() ([]Step, error) {
	steps := make([]Step, 0, len(t.Steps))
	for i, raw := range t.Steps {
		switch v := raw.(type) {
		case string:
			steps = append(steps, Step{Plugin: v})
		case map[string]any:
			step, err := singleKey(v)
			if err != nil {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
			steps = append(steps, step)
		case map[any]any:
			converted := make(map[string]any, len(v))
			for k, val := range v {
				converted[fmt.Sprint(k)] = val
			}
			step, err := singleKey(converted)
			if err != nil {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
			steps = append(steps, step)
		default:
			return nil, fmt.Errorf("steps[%d]: expected plugin name or mapping, got %T", i, raw)
		}
	}
	return steps, nil
}

func singleKey(m map[string]any) (Step, error) {
	if len(m) != 1 {
		return Step{}, fmt.Errorf("expected exactly one plugin per step, got %d keys", len(m))
	}
	for name, opts := range m {
		switch o := opts.(type) {
		case nil:
			return Step{Plugin: name}, nil
		case map[string]any:
			return Step{Plugin: name, Options: o}, nil
		default:
			return Step{}, fmt.Errorf("options of %q must be a mapping, got %T", name, opts)
		}
	}
	return Step{}, nil
}

// DebounceDuration parses Debounce, falling back to DefaultDebounce.
func (w WatchSpec) DebounceDuration() (time.Duration, error) {
	if w.Debounce == "" {
		return DefaultDebounce, nil
	}
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid debounce %q: %w", w.Debounce, err)
	}
	return d, nil
}
