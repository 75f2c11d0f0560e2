package dsl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/pipeline"
)

func TestBuilder_BuildsGraph(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := New()
	b.Task("clean").Func(func(context.Context) error { return nil })
	b.Task("copy").
		Deps("clean").
		Pipeline(pipeline.Src(dir, "*.txt"), pipeline.Dest(filepath.Join(dir, "out")))
	b.Task("notify").Callback(func(_ context.Context, done func(error)) { done(nil) })
	b.Task("build").Deps("copy", "notify").Describe("Production build")

	loader, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	g, err := loader.LoadGraph(context.Background())
	if err != nil {
		t.Fatalf("LoadGraph() failed: %v", err)
	}

	build, ok := g.Task("build")
	if !ok {
		t.Fatal("build task missing")
	}
	if build.Kind != domain.KindGroup || build.Action != nil {
		t.Errorf("Expected build to be a pure group, got kind %q", build.Kind)
	}
	if build.Description != "Production build" {
		t.Errorf("Unexpected description %q", build.Description)
	}

	copyTask, _ := g.Task("copy")
	if copyTask.Kind != domain.KindPipeline {
		t.Errorf("Expected pipeline kind, got %q", copyTask.Kind)
	}
	c := copyTask.Action.Start(context.Background())
	<-c.Done()
	if err := c.Err(); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "a.txt")); err != nil {
		t.Errorf("Expected copied file: %v", err)
	}
}

func TestBuilder_SameNameReturnsSameTask(t *testing.T) {
	b := New()
	b.Task("a").Deps("b")
	b.Task("a").Deps("c")
	b.Task("b")
	b.Task("c")

	loader, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	g, _ := loader.LoadGraph(context.Background())
	a, _ := g.Task("a")
	if len(a.Deps) != 2 {
		t.Errorf("Expected 2 prerequisites, got %v", a.Deps)
	}
}

func TestBuilder_RejectsInvalidGraphs(t *testing.T) {
	b := New()
	b.Task("a").Deps("missing")
	if _, err := b.Build(); !errors.Is(err, domain.ErrUnknownTask) {
		t.Errorf("Expected ErrUnknownTask, got %v", err)
	}

	b = New()
	b.Task("a").Deps("b")
	b.Task("b").Deps("a")
	var cycle *domain.CycleError
	if _, err := b.Build(); !errors.As(err, &cycle) {
		t.Errorf("Expected a cycle error, got %v", err)
	}
}

func TestBuilder_Service(t *testing.T) {
	b := New()
	b.Task("server").Service(func(ctx context.Context, ready func()) error {
		ready()
		<-ctx.Done()
		return nil
	})
	loader, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	g, _ := loader.LoadGraph(context.Background())
	task, _ := g.Task("server")
	if task.Kind != domain.KindServe {
		t.Errorf("Expected serve kind, got %q", task.Kind)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := task.Action.Start(ctx)
	<-c.Done()
	if c.Err() != nil {
		t.Fatalf("service failed to start: %v", c.Err())
	}
	cancel()
	<-c.(domain.Resident).Stopped()
}
