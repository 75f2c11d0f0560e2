package tests

import (
	"context"
	"sort"
	"testing"

	"github.com/aretw0/sluice/pkg/ports"
)

// GraphLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.GraphLoader.
// want maps every expected task name to its prerequisites.
func GraphLoaderContractTest(t *testing.T, loader ports.GraphLoader, want map[string][]string) {
	t.Helper()

	g, err := loader.LoadGraph(context.Background())
	if err != nil {
		t.Fatalf("unexpected error loading graph: %v", err)
	}

	t.Run("Tasks", func(t *testing.T) {
		names := g.Names()
		if len(names) != len(want) {
			t.Fatalf("expected %d tasks, got %d: %v", len(want), len(names), names)
		}
		for name, deps := range want {
			task, ok := g.Task(name)
			if !ok {
				t.Errorf("task %s missing", name)
				continue
			}
			got := append([]string(nil), task.Deps...)
			exp := append([]string(nil), deps...)
			sort.Strings(got)
			sort.Strings(exp)
			if len(got) != len(exp) {
				t.Errorf("deps mismatch for %s. got %v, want %v", name, got, exp)
				continue
			}
			for i := range got {
				if got[i] != exp[i] {
					t.Errorf("deps mismatch for %s. got %v, want %v", name, got, exp)
					break
				}
			}
		}
	})

	t.Run("Order", func(t *testing.T) {
		order, err := g.TopologicalOrder()
		if err != nil {
			t.Fatalf("unexpected error ordering graph: %v", err)
		}
		pos := make(map[string]int, len(order))
		for i, n := range order {
			pos[n] = i
		}
		for name, deps := range want {
			for _, d := range deps {
				if pos[d] >= pos[name] {
					t.Errorf("%s ordered before its prerequisite %s", name, d)
				}
			}
		}
	})
}
