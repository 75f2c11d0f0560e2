package ports

import (
	"context"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/taskfile"
)

// GraphLoader provides a ready-made task graph.
// This is how Go-defined graphs (memory, dsl) reach the engine.
type GraphLoader interface {
	// LoadGraph returns the validated task graph.
	LoadGraph(ctx context.Context) (*domain.Graph, error)
}

// DefinitionSource provides a declarative Taskfile definition that the engine
// compiles into a graph. This keeps storage (YAML/TOML file, Markdown documents)
// decoupled from how task bodies are built.
type DefinitionSource interface {
	// LoadDefinition reads and decodes the Taskfile.
	LoadDefinition(ctx context.Context) (*taskfile.File, error)
}

// Watchable defines an interface for sources that can notify about backend changes.
// This is used to hot-reload the graph in watch mode.
type Watchable interface {
	// Watch returns a channel receiving the path of each changed definition file.
	// The channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan string, error)
}
