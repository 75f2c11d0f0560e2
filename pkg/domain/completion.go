package domain

import (
	"context"
	"fmt"
	"sync"
)

// Completion is a one-shot signal that an action has finished.
// Every action shape (synchronous, callback, stream, service) is adapted into it,
// so the executor only ever waits on Done.
type Completion interface {
	// Done is closed once the action finished.
	Done() <-chan struct{}
	// Err reports the outcome. It is only meaningful after Done is closed.
	Err() error
}

// Resident is a Completion whose action keeps a resource alive after completing,
// such as a dev server or a file watcher. The resource stops when the context the
// action was started with is cancelled.
type Resident interface {
	Completion
	// Stopped is closed once the resource has shut down.
	Stopped() <-chan struct{}
	// StopErr reports why the resource stopped.
	StopErr() error
}

type future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewCompletion returns a pending Completion and the function resolving it.
// Only the first call to resolve has an effect.
func NewCompletion() (Completion, func(error)) {
	f := &future{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns an already finished Completion.
func Resolved(err error) Completion {
	c, resolve := NewCompletion()
	resolve(err)
	return c
}

func (f *future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *future) Done() <-chan struct{} { return f.done }

func (f *future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Action is the body of a task.
type Action interface {
	Start(ctx context.Context) Completion
}

// ActionFunc adapts a plain function to Action.
type ActionFunc func(ctx context.Context) Completion

func (fn ActionFunc) Start(ctx context.Context) Completion { return fn(ctx) }

// Func wraps a synchronous function. The task completes when fn returns.
func Func(fn func(ctx context.Context) error) Action {
	return ActionFunc(func(ctx context.Context) Completion {
		c, resolve := NewCompletion()
		go func() {
			defer recoverInto(resolve)
			resolve(fn(ctx))
		}()
		return c
	})
}

// Callback wraps a function that signals completion by calling done.
// Calling done more than once is harmless.
func Callback(fn func(ctx context.Context, done func(error))) Action {
	return ActionFunc(func(ctx context.Context) Completion {
		c, resolve := NewCompletion()
		go func() {
			defer recoverInto(resolve)
			fn(ctx, resolve)
		}()
		return c
	})
}

// Stream wraps a lazy producer of work items. The task completes when the item
// channel is exhausted, with the error reported by wait.
func Stream[T any](open func(ctx context.Context) (<-chan T, func() error)) Action {
	return ActionFunc(func(ctx context.Context) Completion {
		c, resolve := NewCompletion()
		go func() {
			defer recoverInto(resolve)
			items, wait := open(ctx)
			for range items {
			}
			resolve(wait())
		}()
		return c
	})
}

type resident struct {
	*future
	stopped chan struct{}
	stopErr error
}

func (r *resident) Stopped() <-chan struct{} { return r.stopped }

func (r *resident) StopErr() error {
	<-r.stopped
	return r.stopErr
}

// Service wraps a long-lived resource. The task completes when run calls ready,
// or fails if run returns first. run must return once ctx is cancelled.
func Service(run func(ctx context.Context, ready func()) error) Action {
	return ActionFunc(func(ctx context.Context) Completion {
		r := &resident{
			future:  &future{done: make(chan struct{})},
			stopped: make(chan struct{}),
		}
		go func() {
			defer close(r.stopped)
			defer recoverInto(func(err error) {
				r.stopErr = err
				r.resolve(err)
			})
			err := run(ctx, func() { r.resolve(nil) })
			r.stopErr = err
			if err == nil {
				err = fmt.Errorf("service exited before becoming ready")
			}
			r.resolve(err)
		}()
		return r
	})
}

func recoverInto(resolve func(error)) {
	if p := recover(); p != nil {
		resolve(fmt.Errorf("panic: %v", p))
	}
}
