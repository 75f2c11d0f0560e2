package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/aretw0/sluice/pkg/watch"
)

// Source implements ports.DefinitionSource and ports.Watchable for a Taskfile
// on disk.
type Source struct {
	Path   string
	Logger *slog.Logger
}

// NewSource returns a source reading the Taskfile at path.
func NewSource(path string) *Source {
	return &Source{Path: path}
}

// LoadDefinition reads and validates the Taskfile.
func (s *Source) LoadDefinition(_ context.Context) (*taskfile.File, error) {
	return taskfile.Load(s.Path)
}

// Watch reports changes to the Taskfile and to a tools file next to it. Only
// the Taskfile's own directory is watched, not the project tree below it.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	dir := filepath.Dir(s.Path)
	ch := make(chan string, 1)

	var opts []watch.Option
	if s.Logger != nil {
		opts = append(opts, watch.WithLogger(s.Logger))
	}
	binding := domain.WatchBinding{Paths: []string{filepath.Base(s.Path), "tools.yaml", "tools.json"}}
	w, err := watch.New(dir, []domain.WatchBinding{binding}, func(ctx context.Context, _ domain.WatchBinding, path string) {
		select {
		case ch <- path:
		case <-ctx.Done():
		}
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to watch taskfile: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to watch taskfile: %w", err)
	}

	go func() {
		<-w.Done()
		close(ch)
	}()
	return ch, nil
}
