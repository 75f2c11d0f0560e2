package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/sluice/pkg/domain"
)

// RunOverlay colours tasks by their outcome in a run.
type RunOverlay struct {
	Results []domain.TaskResult
}

// OverlayFor builds an overlay from a stored run.
func OverlayFor(run *domain.RunRecord) *RunOverlay {
	if run == nil {
		return nil
	}
	return &RunOverlay{Results: run.Results}
}

// GenerateMermaid produces a Mermaid flowchart of the task graph. Edges point
// from a prerequisite to the task that waits on it. Shapes follow the task kind:
//   - serve, watch: ([Stadium])
//   - exec, require: [[Subroutine]]
//   - pipeline: [/Parallelogram/]
//   - clean: [(Cylinder)]
//   - group and others: [Rectangle]
//
// Watch bindings are drawn as dotted edges to the tasks they re-run.
func GenerateMermaid(tasks []domain.Task, overlay *RunOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, t := range tasks {
		id := sanitizeMermaidID(t.Name)
		opener, closer := shape(t.Kind)
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, t.Name, closer)
	}
	for _, t := range tasks {
		id := sanitizeMermaidID(t.Name)
		for _, dep := range t.Deps {
			fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(dep), id)
		}
		for _, b := range t.Watch {
			label := strings.ReplaceAll(strings.Join(b.Paths, " "), "\"", "'")
			for _, target := range b.Tasks {
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", id, label, sanitizeMermaidID(target))
			}
		}
	}

	if overlay != nil && len(overlay.Results) > 0 {
		sb.WriteString("\n    %% Run outcome\n")
		sb.WriteString("    classDef succeeded fill:#dcfce7,stroke:#15803d,color:#000;\n")
		sb.WriteString("    classDef failed fill:#fee2e2,stroke:#b91c1c,stroke-width:3px,color:#000;\n")
		sb.WriteString("    classDef skipped fill:#f3f4f6,stroke:#9ca3af,stroke-dasharray:4,color:#000;\n")
		for _, r := range overlay.Results {
			if r.Status == "" {
				continue
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(r.Name), r.Status)
		}
	}

	return sb.String()
}

func shape(kind string) (string, string) {
	switch kind {
	case domain.KindServe, domain.KindWatch:
		return "([", "])"
	case domain.KindExec, domain.KindRequire:
		return "[[", "]]"
	case domain.KindPipeline:
		return "[/", "/]"
	case domain.KindClean:
		return "[(", ")]"
	default:
		return "[", "]"
	}
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(id)
}
