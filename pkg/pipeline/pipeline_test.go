package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"www_dev/js/app.js":           "a",
		"www_dev/js/controllers/c.js": "c",
		"www_dev/js/vendor/skip.js":   "v",
		"www_dev/css/style.css":       "s",
	})

	globs, err := Expand(root, "./www_dev/js/**/*.js", "!www_dev/js/vendor/**")
	require.NoError(t, err)
	require.Len(t, globs, 2)

	assert.Equal(t, filepath.Join(root, "www_dev/js/app.js"), globs[0].Path)
	assert.Equal(t, filepath.Join(root, "www_dev/js"), globs[0].Base)
	assert.Equal(t, filepath.Join(root, "www_dev/js/controllers/c.js"), globs[1].Path)

	none, err := Expand(root, "missing/**/*.png")
	require.NoError(t, err, "unmatched pattern is not an error")
	assert.Empty(t, none)
}

func TestPipeline_SrcMapDest(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.txt":     "alpha",
		"src/sub/b.txt": "beta",
	})
	out := filepath.Join(root, "out")

	upper := Map("upper", func(_ context.Context, f *File) (*File, error) {
		f.Contents = bytes.ToUpper(f.Contents)
		return f, nil
	})

	files, err := New(Src(root, "src/**/*.txt"), upper, Dest(out)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)

	data, err := os.ReadFile(filepath.Join(out, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "BETA", string(data))
	assert.Equal(t, filepath.Join(out, "a.txt"), files[0].Path)
}

func TestPipeline_ReduceAndDrop(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.js": "1", "b.js": "2", "c.js": "3"})

	dropB := Map("drop", func(_ context.Context, f *File) (*File, error) {
		if strings.HasSuffix(f.Path, "b.js") {
			return nil, nil
		}
		return f, nil
	})
	join := Reduce("join", func(_ context.Context, files []*File) ([]*File, error) {
		var buf bytes.Buffer
		for _, f := range files {
			buf.Write(f.Contents)
		}
		return []*File{{Path: filepath.Join(root, "all.js"), Base: root, Contents: buf.Bytes()}}, nil
	})

	files, err := New(Src(root, "*.js")).Pipe(dropB, join).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "13", string(files[0].Contents))
}

func TestPipeline_StageErrorStopsStream(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.js": "1", "b.js": "2", "c.js": "3"})
	boom := errors.New("syntax error")

	fail := Map("lint", func(_ context.Context, f *File) (*File, error) {
		if strings.HasSuffix(f.Path, "b.js") {
			return nil, boom
		}
		return f, nil
	})

	_, err := New(Src(root, "*.js"), fail, Dest(filepath.Join(root, "out"))).Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "lint: b.js")
}

func TestPipeline_RepeatedRunsAreByteIdentical(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x/1.txt": "one", "x/2.txt": "two", "x/3.txt": "three"})

	concat := Reduce("concat", func(_ context.Context, files []*File) ([]*File, error) {
		var buf bytes.Buffer
		for _, f := range files {
			buf.Write(f.Contents)
			buf.WriteByte('\n')
		}
		return []*File{{Path: filepath.Join(root, "x", "all.txt"), Base: filepath.Join(root, "x"), Contents: buf.Bytes()}}, nil
	})

	var outputs [][]byte
	for i := 0; i < 5; i++ {
		out := filepath.Join(root, "build")
		_, err := New(Src(root, "x/*.txt", "!x/all.txt"), concat, Dest(out)).Run(context.Background())
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(out, "all.txt"))
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	for _, o := range outputs[1:] {
		assert.Equal(t, outputs[0], o)
	}
}

func TestDest_UnchangedContentsAreNotRewritten(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.txt": "same", "src/b.txt": "old", "out/a.txt": "same", "out/b.txt": "stale"})
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(t, os.Chtimes(filepath.Join(root, "out", name), past, past))
	}

	_, err := New(Src(root, "src/*.txt"), Dest(filepath.Join(root, "out"))).Run(context.Background())
	require.NoError(t, err)

	same, err := os.Stat(filepath.Join(root, "out", "a.txt"))
	require.NoError(t, err)
	assert.True(t, same.ModTime().Equal(past), "identical output keeps its mtime")

	changed, err := os.Stat(filepath.Join(root, "out", "b.txt"))
	require.NoError(t, err)
	assert.True(t, changed.ModTime().After(past))
	data, err := os.ReadFile(filepath.Join(root, "out", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestPipeline_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Src(root, "*")).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
