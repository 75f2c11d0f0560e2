package loam

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/sluice/pkg/taskfile"
)

// Source adapts a Loam repository of Markdown task documents to
// ports.DefinitionSource. Each document is one task: the front matter holds
// the Taskfile keys and the body is the description.
type Source struct {
	Repo *loam.TypedRepository[TaskMetadata]
	Name string
}

// New creates a new Loam adapter. name becomes the project name.
func New(repo *loam.TypedRepository[TaskMetadata], name string) *Source {
	return &Source{
		Repo: repo,
		Name: name,
	}
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(dir string) (*Source, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numbers consistent across Markdown and JSON documents.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[TaskMetadata](repo), filepath.Base(filepath.Dir(absPath))), nil
}

// LoadDefinition assembles a Taskfile from every document in the repository.
func (s *Source) LoadDefinition(ctx context.Context) (*taskfile.File, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	f := &taskfile.File{
		Version: 1,
		Name:    s.Name,
		Tasks:   make(map[string]taskfile.Task),
	}
	seen := make(map[string]string)

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: task '%s' is defined in both '%s' and '%s'", id, existing, doc.ID)
		}
		seen[id] = doc.ID

		f.Tools = append(f.Tools, doc.Data.Tools...)
		if strings.HasPrefix(path.Base(id), "_") {
			continue
		}

		task := doc.Data.Task
		if task.Description == "" {
			task.Description = strings.TrimSpace(doc.Content)
		}
		f.Tasks[id] = task
	}

	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				// Loam debounces on its own.
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
