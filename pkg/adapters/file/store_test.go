package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/sluice/pkg/adapters/file"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.NewStore(t.TempDir())
	ports.RunRunStoreContract(t, store)
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(filepath.Join(dir, "runs"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "r1", Status: domain.RunSucceeded}))
	_, err := os.Stat(filepath.Join(dir, "runs", "r1.json"))
	assert.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(dir, "runs", "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are cleaned up")

	assert.Error(t, store.Save(ctx, &domain.RunRecord{ID: "../escape"}))
	assert.Error(t, store.Save(ctx, &domain.RunRecord{}))
}

func TestFileStore_ListOrder(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "zzz"}))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "zzz.json"), old, old))
	require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "aaa"}))

	runs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zzz", "aaa"}, runs)

	empty, err := file.NewStore(filepath.Join(dir, "missing")).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
