package plugins

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/sluice/pkg/pipeline"
	"github.com/mitchellh/mapstructure"
)

// ToolRunner executes registered external programs.
// *process.Runner satisfies it.
type ToolRunner interface {
	Run(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error)
}

// Env carries what plugins may need from the host.
type Env struct {
	// Root is the project directory that source globs are relative to.
	Root   string
	Tools  ToolRunner
	Logger *slog.Logger
	// Out receives human readable reports (lint findings).
	Out io.Writer
}

// Factory builds a stage from decoded Taskfile options.
type Factory func(opts map[string]any, env Env) (pipeline.Stage, error)

// Registry maps plugin names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding every built-in plugin.
func Default() *Registry {
	r := NewRegistry()
	r.Register("sass", NewSass)
	r.Register("minify-css", NewMinifyCSS)
	r.Register("uglify", NewUglify)
	r.Register("concat", NewConcat)
	r.Register("rename", NewRename)
	r.Register("file-include", NewFileInclude)
	r.Register("html-replace", NewHTMLReplace)
	r.Register("jshint", NewLint)
	return r
}

// Register adds or replaces a plugin.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists registered plugins in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named plugin.
func (r *Registry) Build(name string, opts map[string]any, env Env) (pipeline.Stage, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q", name)
	}
	if env.Logger == nil {
		env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if env.Out == nil {
		env.Out = io.Discard
	}
	stage, err := f(opts, env)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}
	return stage, nil
}

// decode maps raw Taskfile options onto a typed struct, rejecting unknown keys.
func decode(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if opts == nil {
		return nil
	}
	return dec.Decode(opts)
}
