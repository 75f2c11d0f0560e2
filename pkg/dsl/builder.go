package dsl

import (
	"context"
	"fmt"

	"github.com/aretw0/sluice/pkg/adapters/memory"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/pipeline"
)

// Builder manages the graph construction.
type Builder struct {
	order []string
	tasks map[string]*TaskBuilder
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		tasks: make(map[string]*TaskBuilder),
	}
}

// Task declares a task. Declaring the same name again returns the existing builder.
func (b *Builder) Task(name string) *TaskBuilder {
	if tb, ok := b.tasks[name]; ok {
		return tb
	}
	tb := &TaskBuilder{task: domain.Task{Name: name, Kind: domain.KindGroup}}
	b.tasks[name] = tb
	b.order = append(b.order, name)
	return tb
}

// Build validates the graph and wraps it in a memory loader.
func (b *Builder) Build() (*memory.Loader, error) {
	tasks := make([]domain.Task, 0, len(b.order))
	for _, name := range b.order {
		tasks = append(tasks, b.tasks[name].task)
	}
	g, err := domain.NewGraph(tasks...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return memory.NewFromGraph(g), nil
}

// TaskBuilder configures one task. Setting a second action replaces the first.
type TaskBuilder struct {
	task domain.Task
}

// Deps appends prerequisites.
func (tb *TaskBuilder) Deps(names ...string) *TaskBuilder {
	tb.task.Deps = append(tb.task.Deps, names...)
	return tb
}

// Describe sets the description shown by `sluice list`.
func (tb *TaskBuilder) Describe(text string) *TaskBuilder {
	tb.task.Description = text
	return tb
}

// Func completes when fn returns.
func (tb *TaskBuilder) Func(fn func(ctx context.Context) error) *TaskBuilder {
	return tb.action(domain.KindFunc, domain.Func(fn))
}

// Callback completes when fn calls done.
func (tb *TaskBuilder) Callback(fn func(ctx context.Context, done func(error))) *TaskBuilder {
	return tb.action(domain.KindFunc, domain.Callback(fn))
}

// Pipeline completes when the last stage has drained src.
func (tb *TaskBuilder) Pipeline(src pipeline.Source, stages ...pipeline.Stage) *TaskBuilder {
	return tb.action(domain.KindPipeline, domain.Stream(pipeline.New(src, stages...).Open))
}

// Service completes once run calls ready and keeps running until the
// invocation is cancelled.
func (tb *TaskBuilder) Service(run func(ctx context.Context, ready func()) error) *TaskBuilder {
	return tb.action(domain.KindServe, domain.Service(run))
}

// Action sets a custom action.
func (tb *TaskBuilder) Action(kind string, a domain.Action) *TaskBuilder {
	return tb.action(kind, a)
}

func (tb *TaskBuilder) action(kind string, a domain.Action) *TaskBuilder {
	tb.task.Kind = kind
	tb.task.Action = a
	return tb
}
