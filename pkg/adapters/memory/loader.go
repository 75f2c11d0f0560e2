package memory

import (
	"context"

	"github.com/aretw0/sluice/pkg/domain"
)

// Loader implements ports.GraphLoader over tasks defined in Go.
type Loader struct {
	tasks []domain.Task
}

// NewLoader creates a Loader. The graph is validated on every LoadGraph, so a
// bad definition surfaces when the engine is built.
func NewLoader(tasks ...domain.Task) *Loader {
	return &Loader{tasks: append([]domain.Task(nil), tasks...)}
}

// NewFromGraph wraps an already validated graph.
func NewFromGraph(g *domain.Graph) *Loader {
	return &Loader{tasks: g.Tasks()}
}

// LoadGraph builds the graph.
func (l *Loader) LoadGraph(_ context.Context) (*domain.Graph, error) {
	return domain.NewGraph(l.tasks...)
}
