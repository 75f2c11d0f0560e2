package loam

import "github.com/aretw0/sluice/pkg/taskfile"

// TaskMetadata is the front matter of a task document. The document body is
// the task description.
//
// Documents whose name starts with "_" declare tools only and do not become tasks.
type TaskMetadata struct {
	// ID overrides the name derived from the file path.
	ID    string              `json:"id" mapstructure:"id"`
	Tools []taskfile.ToolSpec `json:"tools" mapstructure:"tools"`

	taskfile.Task `mapstructure:",squash"`
}
