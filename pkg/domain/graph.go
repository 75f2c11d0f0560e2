package domain

import (
	"container/heap"
	"fmt"
	"sort"
)

// Graph is an immutable, validated set of tasks.
//
// Validation runs in NewGraph and rejects:
//   - empty or duplicate task names
//   - prerequisites referencing unknown tasks
//   - duplicate prerequisites and self-loops
//   - any cycle (direct or indirect)
type Graph struct {
	tasks      map[string]Task
	names      []string
	dependents map[string][]string
}

// NewGraph builds and validates a task graph.
func NewGraph(tasks ...Task) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]Task, len(tasks)),
		names:      make([]string, 0, len(tasks)),
		dependents: make(map[string][]string),
	}

	for _, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: task name is required", ErrInvalidGraph)
		}
		if _, exists := g.tasks[t.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate task name %q", ErrInvalidGraph, t.Name)
		}
		t.Deps = append([]string(nil), t.Deps...)
		g.tasks[t.Name] = t
		g.names = append(g.names, t.Name)
	}
	sort.Strings(g.names)

	for _, name := range g.names {
		t := g.tasks[name]
		seen := make(map[string]struct{}, len(t.Deps))
		for _, dep := range t.Deps {
			if dep == name {
				return nil, &CycleError{Path: []string{name, name}}
			}
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %q (prerequisite of %q)", ErrUnknownTask, dep, name)
			}
			if _, dup := seen[dep]; dup {
				return nil, fmt.Errorf("%w: duplicate prerequisite %q in %q", ErrInvalidGraph, dep, name)
			}
			seen[dep] = struct{}{}
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}

	if path := g.findCycle(g.names); path != nil {
		return nil, &CycleError{Path: path}
	}
	return g, nil
}

// Task returns the named task.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Names returns every task name in lexical order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Tasks returns every task in lexical order of name.
func (g *Graph) Tasks() []Task {
	out := make([]Task, 0, len(g.names))
	for _, name := range g.names {
		out = append(out, g.tasks[name])
	}
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int { return len(g.names) }

// Dependents returns the tasks that list name as a prerequisite, in lexical order.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Closure returns the requested tasks together with all their transitive
// prerequisites, in lexical order. Unknown names fail with ErrUnknownTask.
func (g *Graph) Closure(names ...string) ([]string, error) {
	for _, name := range names {
		if _, ok := g.tasks[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
		}
	}

	visited := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range g.tasks[name].Deps {
			visit(dep)
		}
	}
	for _, name := range names {
		visit(name)
	}

	out := make([]string, 0, len(visited))
	for name := range visited {
		out = append(out, name)
	}
	sort.Strings(out)

	if path := g.findCycle(out); path != nil {
		return nil, &CycleError{Path: path}
	}
	return out, nil
}

// TopologicalOrder returns the given tasks (all tasks when none are given)
// ordered so that every task appears after its prerequisites. Ties are broken
// lexically, so the order is deterministic.
func (g *Graph) TopologicalOrder(names ...string) ([]string, error) {
	if len(names) == 0 {
		names = g.names
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := g.tasks[n]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTask, n)
		}
		set[n] = true
	}

	indeg := make(map[string]int, len(set))
	for n := range set {
		for _, dep := range g.tasks[n].Deps {
			if set[dep] {
				indeg[n]++
			}
		}
	}

	ready := &nameHeap{}
	for n := range set {
		if indeg[n] == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]string, 0, len(set))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(string)
		order = append(order, n)
		for _, d := range g.dependents[n] {
			if !set[d] {
				continue
			}
			indeg[d]--
			if indeg[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	if len(order) != len(set) {
		sorted := make([]string, 0, len(set))
		for n := range set {
			sorted = append(sorted, n)
		}
		sort.Strings(sorted)
		return nil, &CycleError{Path: g.findCycle(sorted)}
	}
	return order, nil
}

// findCycle runs a coloured depth-first search over the given roots and returns
// the first cycle found, or nil.
func (g *Graph) findCycle(roots []string) []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.tasks))
	var stack []string

	var visit func(string) []string
	visit = func(name string) []string {
		color[name] = gray
		stack = append(stack, name)

		deps := append([]string(nil), g.tasks[name].Deps...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch color[dep] {
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == dep {
						path := append([]string(nil), stack[i:]...)
						return append(path, dep)
					}
				}
			case white:
				if p := visit(dep); p != nil {
					return p
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, r := range roots {
		if color[r] == white {
			if p := visit(r); p != nil {
				return p
			}
		}
	}
	return nil
}

type nameHeap []string

func (h nameHeap) Len() int           { return len(h) }
func (h nameHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nameHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nameHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *nameHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
