package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/sluice/pkg/domain"
)

// TaskList formats tasks as a Markdown table.
func TaskList(project string, tasks []domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", project)
	b.WriteString("| Task | Kind | Depends on | Description |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n",
			t.Name, t.Kind, codeList(t.Deps), cell(firstLine(t.Description)))
	}
	return b.String()
}

// TaskDetail formats one task as Markdown.
func TaskDetail(t domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Name)
	fmt.Fprintf(&b, "**Kind:** %s\n\n", t.Kind)
	if len(t.Deps) > 0 {
		fmt.Fprintf(&b, "**Depends on:** %s\n\n", codeList(t.Deps))
	}
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}
	if len(t.Watch) > 0 {
		b.WriteString("## Watches\n\n")
		for _, w := range t.Watch {
			fmt.Fprintf(&b, "- %s", codeList(w.Paths))
			if len(w.Tasks) > 0 {
				fmt.Fprintf(&b, " → %s", codeList(w.Tasks))
			}
			if w.Reload {
				b.WriteString(" (reload)")
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ", ")
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
