package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart  EventType = "run_start"
	EventRunFinish EventType = "run_finish"
	EventTaskStart EventType = "task_start"
	EventTaskDone  EventType = "task_done"
	EventTaskSkip  EventType = "task_skip"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// RunEvent marks the start or end of an invocation.
type RunEvent struct {
	EventBase
	Tasks    []string      `json:"tasks"`
	Status   RunStatus     `json:"status,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// TaskEvent marks a task transition.
type TaskEvent struct {
	EventBase
	Task     string        `json:"task"`
	Status   TaskStatus    `json:"status,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for executor observability.
// Hooks may be called concurrently from different tasks.
type LifecycleHooks struct {
	OnRunStart  func(context.Context, *RunEvent)
	OnRunFinish func(context.Context, *RunEvent)
	OnTaskStart func(context.Context, *TaskEvent)
	OnTaskDone  func(context.Context, *TaskEvent)
	OnTaskSkip  func(context.Context, *TaskEvent)
}

// Merge returns hooks calling h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart:  chainRun(h.OnRunStart, other.OnRunStart),
		OnRunFinish: chainRun(h.OnRunFinish, other.OnRunFinish),
		OnTaskStart: chainTask(h.OnTaskStart, other.OnTaskStart),
		OnTaskDone:  chainTask(h.OnTaskDone, other.OnTaskDone),
		OnTaskSkip:  chainTask(h.OnTaskSkip, other.OnTaskSkip),
	}
}

func chainRun(a, b func(context.Context, *RunEvent)) func(context.Context, *RunEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *RunEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainTask(a, b func(context.Context, *TaskEvent)) func(context.Context, *TaskEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *TaskEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
