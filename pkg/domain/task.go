package domain

import "time"

// Task is a named unit of work with declared prerequisites.
// A task without an Action is a pure aggregation of its prerequisites.
type Task struct {
	Name        string         `json:"name" yaml:"name"`
	Deps        []string       `json:"deps,omitempty" yaml:"deps,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Watch       []WatchBinding `json:"watch,omitempty" yaml:"watch,omitempty"`
	Action      Action         `json:"-" yaml:"-"`
}

// Task kinds reported by loaders. They only affect presentation.
const (
	KindGroup    = "group"
	KindPipeline = "pipeline"
	KindClean    = "clean"
	KindExec     = "exec"
	KindRequire  = "require"
	KindServe    = "serve"
	KindWatch    = "watch"
	KindFunc     = "func"
)

// WatchBinding re-triggers Tasks whenever a file matching one of Paths changes.
// When Reload is set, a live-reload notification is broadcast after the tasks succeed.
type WatchBinding struct {
	Paths    []string      `json:"paths" yaml:"paths"`
	Tasks    []string      `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Reload   bool          `json:"reload,omitempty" yaml:"reload,omitempty"`
	Debounce time.Duration `json:"debounce,omitempty" yaml:"debounce,omitempty"`
}
