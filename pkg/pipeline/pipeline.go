package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Source emits files into out. It must not close out.
type Source func(ctx context.Context, out chan<- *File) error

// Stage transforms a stream of files. It reads in until it is closed and must
// not close out.
type Stage interface {
	Run(ctx context.Context, in <-chan *File, out chan<- *File) error
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, in <-chan *File, out chan<- *File) error

func (fn StageFunc) Run(ctx context.Context, in <-chan *File, out chan<- *File) error {
	return fn(ctx, in, out)
}

// Map returns a stage applying fn to every file. Returning a nil file drops it.
func Map(name string, fn func(ctx context.Context, f *File) (*File, error)) Stage {
	return StageFunc(func(ctx context.Context, in <-chan *File, out chan<- *File) error {
		for f := range in {
			res, err := fn(ctx, f)
			if err != nil {
				return fmt.Errorf("%s: %s: %w", name, f.Relative(), err)
			}
			if res == nil {
				continue
			}
			if err := send(ctx, out, res); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reduce returns a stage collecting the whole stream and replacing it with the
// files fn returns. fn is called even when the stream is empty.
func Reduce(name string, fn func(ctx context.Context, files []*File) ([]*File, error)) Stage {
	return StageFunc(func(ctx context.Context, in <-chan *File, out chan<- *File) error {
		var files []*File
		for f := range in {
			files = append(files, f)
		}
		res, err := fn(ctx, files)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, f := range res {
			if err := send(ctx, out, f); err != nil {
				return err
			}
		}
		return nil
	})
}

func send(ctx context.Context, out chan<- *File, f *File) error {
	select {
	case out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pipeline connects a source to a chain of stages.
type Pipeline struct {
	src    Source
	stages []Stage
}

// New creates a pipeline.
func New(src Source, stages ...Stage) *Pipeline {
	return &Pipeline{src: src, stages: stages}
}

// Pipe appends stages and returns the pipeline.
func (p *Pipeline) Pipe(stages ...Stage) *Pipeline {
	p.stages = append(p.stages, stages...)
	return p
}

// Open starts the pipeline and returns the stream of files leaving the last
// stage. The stream closes when the pipeline is exhausted or fails; wait then
// reports the first error. Callers must drain the stream.
func (p *Pipeline) Open(ctx context.Context) (<-chan *File, func() error) {
	g, gctx := errgroup.WithContext(ctx)

	head := make(chan *File)
	g.Go(func() error {
		defer close(head)
		return p.src(gctx, head)
	})

	var in <-chan *File = head
	for _, stage := range p.stages {
		out := make(chan *File)
		src := in
		g.Go(func() error {
			defer close(out)
			err := stage.Run(gctx, src, out)
			// Unblock upstream stages when this one bails out early.
			for range src {
			}
			return err
		})
		in = out
	}

	tail := make(chan *File)
	result := make(chan error, 1)
	go func() {
		defer close(tail)
		for f := range in {
			select {
			case tail <- f:
			case <-gctx.Done():
			}
		}
		result <- g.Wait()
	}()

	return tail, func() error { return <-result }
}

// Run executes the pipeline to exhaustion and returns the files that came out.
func (p *Pipeline) Run(ctx context.Context) ([]*File, error) {
	stream, wait := p.Open(ctx)
	var files []*File
	for f := range stream {
		files = append(files, f)
	}
	return files, wait()
}
