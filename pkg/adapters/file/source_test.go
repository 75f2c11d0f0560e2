package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/sluice/pkg/adapters/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `version: 1
tasks:
  clean:
    clean: [./www/*]
  build:
    deps: [clean]
`

func TestSource_LoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sluice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	def, err := file.NewSource(path).LoadDefinition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"clean"}, def.Tasks["build"].Deps)

	_, err = file.NewSource(filepath.Join(dir, "missing.yaml")).LoadDefinition(context.Background())
	assert.Error(t, err)
}

func TestSource_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sluice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := file.NewSource(path).Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(minimal+"  lint: {}\n"), 0o644))

	select {
	case p := <-changes:
		assert.Equal(t, "sluice.yaml", p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
