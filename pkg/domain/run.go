package domain

import "time"

// TaskStatus is the outcome of a task within one invocation.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// RunStatus is the outcome of an invocation.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// TaskResult records what happened to one task of a run.
type TaskResult struct {
	Name      string     `json:"name"`
	Status    TaskStatus `json:"status"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Duration is zero for tasks that never started.
func (r TaskResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// RunRecord is the persisted summary of an invocation.
type RunRecord struct {
	ID        string       `json:"id"`
	Project   string       `json:"project,omitempty"`
	Tasks     []string     `json:"tasks"`
	Status    RunStatus    `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
	Error     string       `json:"error,omitempty"`
	Results   []TaskResult `json:"results"`
}

// Result returns the result of the named task, if it was part of the run.
func (r *RunRecord) Result(name string) (TaskResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return TaskResult{}, false
}
