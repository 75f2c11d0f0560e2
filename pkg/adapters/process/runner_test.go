package process

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}
}

func TestRunner_Run(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner()
	runner.Register("upper", "tr", "a-z", "A-Z")
	runner.Register("fail", "sh", "-c", "echo broken pipe >&2; exit 3")

	t.Run("Pipes Stdin Through Registered Command", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "upper", []byte("body{}"))
		require.NoError(t, err)
		assert.Equal(t, "BODY{}", string(out))
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "hacker_script", nil)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("Reports Stderr On Failure", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "fail", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail: execution failed")
		assert.Contains(t, err.Error(), "broken pipe")
	})

	t.Run("Inline Execution", func(t *testing.T) {
		inline := NewRunner(WithInlineExecution(true))
		out, err := inline.Run(context.Background(), "echo", nil, "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(out))
	})
}

func TestRunner_Stream(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	runner := NewRunner(
		WithBaseDir(dir),
		WithRegistry(FromTaskfile([]taskfile.ToolSpec{
			{Name: "bower", Command: "sh", Args: []string{"-c"}, Env: map[string]string{"GREETING": "cached"}},
		})),
	)

	var out bytes.Buffer
	err := runner.Stream(context.Background(), "bower", "", &out, "bower", `printf "jquery $GREETING\nangular %s" "$(pwd -P)"`)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, "bower jquery cached\nbower angular "+resolved+"\n", out.String())
}

func TestRunner_Cancellation(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner()
	runner.Register("sleep", "sleep", "10")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Run(ctx, "sleep", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_Which(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner()
	runner.Register("shell", "sh")

	p, err := runner.Which("shell")
	require.NoError(t, err)
	assert.Equal(t, "sh", filepath.Base(p))

	_, err = runner.Which("definitely-not-installed-tool")
	assert.Error(t, err)
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()

	missing, err := LoadTools(filepath.Join(dir, "tools.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  - name: lint\n    command: eslint\n    args: [--quiet]\n  - command: orphan\n"), 0o644))
	tools, err := LoadTools(path)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, []string{"--quiet"}, tools["lint"].Args)

	merged := Merge(tools, FromTaskfile([]taskfile.ToolSpec{{Name: "lint"}}))
	assert.Equal(t, "lint", merged["lint"].Command, "a bare name runs itself")
}
