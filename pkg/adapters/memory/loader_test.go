package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/sluice/pkg/adapters/memory"
	"github.com/aretw0/sluice/pkg/domain"
	contract "github.com/aretw0/sluice/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryLoader_Contract(t *testing.T) {
	loader := memory.NewLoader(
		domain.Task{Name: "clean"},
		domain.Task{Name: "uglify", Deps: []string{"clean"}},
		domain.Task{Name: "images", Deps: []string{"clean"}},
		domain.Task{Name: "build", Deps: []string{"uglify", "images"}},
	)

	contract.GraphLoaderContractTest(t, loader, map[string][]string{
		"clean":  nil,
		"uglify": {"clean"},
		"images": {"clean"},
		"build":  {"uglify", "images"},
	})
}

func TestInMemoryLoader_InvalidGraph(t *testing.T) {
	loader := memory.NewLoader(
		domain.Task{Name: "a", Deps: []string{"b"}},
		domain.Task{Name: "b", Deps: []string{"a"}},
	)
	_, err := loader.LoadGraph(context.Background())
	assert.ErrorIs(t, err, domain.ErrCycle)
}
