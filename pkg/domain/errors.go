package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTask is returned when a requested task or a prerequisite is not defined.
	ErrUnknownTask = errors.New("unknown task")

	// ErrCycle is returned when the prerequisite relation is not acyclic.
	ErrCycle = errors.New("cycle detected")

	// ErrInvalidGraph is returned for structural problems other than cycles.
	ErrInvalidGraph = errors.New("invalid task graph")

	// ErrRunNotFound is returned when a run ID cannot be found in the store.
	ErrRunNotFound = errors.New("run not found")

	// ErrToolMissing is returned when a required external tool is not installed.
	ErrToolMissing = errors.New("tool missing")
)

// CycleError names the tasks forming a prerequisite cycle.
// Path starts and ends with the same task.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// TaskError wraps the failure of a single task.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task '%s' failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// ToolMissingError reports an external tool that must be installed before continuing.
// Remediation holds human readable instructions.
type ToolMissingError struct {
	Tool        string
	Message     string
	Remediation []string
}

func (e *ToolMissingError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("%s is not installed", e.Tool)
	}
	return msg
}

func (e *ToolMissingError) Unwrap() error { return ErrToolMissing }
