package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/presentation/tui"
	fileadapter "github.com/aretw0/sluice/pkg/adapters/file"
	"github.com/aretw0/sluice/pkg/adapters/memory"
	redisadapter "github.com/aretw0/sluice/pkg/adapters/redis"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func project(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

const copyProject = `version: 1
tasks:
  default:
    deps: [copy]
  copy:
    description: Copy text files.
    src: [./src/*.txt]
    dest: ./out
`

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	t.Run("Memory by default", func(t *testing.T) {
		store, locker, closeStore, err := openStore(Options{Dir: dir})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, store)
		assert.Nil(t, locker)
		assert.NoError(t, closeStore())
	})

	t.Run("File under the project", func(t *testing.T) {
		store, locker, _, err := openStore(Options{Dir: dir, Store: StoreFile, KeepRuns: 1})
		require.NoError(t, err)
		assert.Nil(t, locker)

		ctx := context.Background()
		require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "a-old", Error: "token=abc"}))
		require.NoError(t, store.Save(ctx, &domain.RunRecord{ID: "b-new", Error: "token=abc", StartedAt: time.Now()}))
		assert.NoFileExists(t, filepath.Join(dir, fileadapter.DefaultRunsDir, "a-old.json"))

		data, err := os.ReadFile(filepath.Join(dir, fileadapter.DefaultRunsDir, "b-new.json"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "token=***")
	})

	t.Run("Redis with a lock", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, locker, closeStore, err := openStore(Options{Store: StoreRedis, RedisURL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		assert.NotNil(t, store)
		assert.IsType(t, &redisadapter.Locker{}, locker)
		assert.NoError(t, closeStore())
	})

	t.Run("Redis needs a URL", func(t *testing.T) {
		_, _, _, err := openStore(Options{Store: StoreRedis})
		assert.Error(t, err)
	})

	t.Run("Unknown store", func(t *testing.T) {
		_, _, _, err := openStore(Options{Store: "s3"})
		assert.ErrorContains(t, err, `unknown store "s3"`)
	})
}

func TestDefinitionSource(t *testing.T) {
	t.Run("Explicit file relative to dir", func(t *testing.T) {
		dir := project(t, map[string]string{"build/ci.yaml": copyProject})
		def, err := loadDefinition(context.Background(), Options{Dir: dir, File: "build/ci.yaml"})
		require.NoError(t, err)
		assert.Contains(t, def.Tasks, "copy")
	})

	t.Run("Missing explicit file", func(t *testing.T) {
		_, err := definitionSource(Options{Dir: t.TempDir(), File: "nope.yaml"})
		assert.Error(t, err)
	})

	t.Run("Markdown tasks", func(t *testing.T) {
		dir := project(t, map[string]string{"tasks/default.md": "---\ndeps: []\n---\nNothing to do.\n"})
		def, err := loadDefinition(context.Background(), Options{Dir: dir})
		require.NoError(t, err)
		assert.Equal(t, "Nothing to do.", def.Tasks["default"].Description)
	})

	t.Run("Nothing found", func(t *testing.T) {
		_, err := definitionSource(Options{Dir: t.TempDir()})
		assert.ErrorIs(t, err, taskfile.ErrNotFound)
		assert.ErrorContains(t, err, "sluice init")
	})
}

func TestExecute_RunsDefaultTask(t *testing.T) {
	dir := project(t, map[string]string{"sluice.yaml": copyProject, "src/a.txt": "hello"})
	var out bytes.Buffer

	err := Execute(context.Background(), Options{Dir: dir, NoColor: true, Stdout: &out, Store: StoreFile}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Contains(t, out.String(), "Starting 'copy'...")
	assert.Contains(t, out.String(), "Finished 'default' after")

	out.Reset()
	require.NoError(t, History(context.Background(), Options{Dir: dir, Store: StoreFile, Stdout: &out}))
	assert.Contains(t, out.String(), "succeeded")
	assert.Contains(t, out.String(), "default")
}

func TestExecute_MissingToolExitsWithRemediation(t *testing.T) {
	dir := project(t, map[string]string{"sluice.yaml": `version: 1
tools:
  - name: marker
    command: touch
tasks:
  git-check:
    require:
      tool: definitely-not-installed-vcs
      message: Git is not installed.
      remediation:
        - "Download git here: http://git-scm.com/downloads"
  install:
    deps: [git-check]
    exec:
      tool: marker
      args: [installed]
`})
	var out bytes.Buffer

	err := Execute(context.Background(), Options{Dir: dir, NoColor: true, Stdout: &out}, []string{"install"})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.True(t, exit.Reported)
	assert.Contains(t, out.String(), "Git is not installed.")
	assert.Contains(t, out.String(), "http://git-scm.com/downloads")
	assert.NoFileExists(t, filepath.Join(dir, "installed"))
}

func TestExecute_UnknownTask(t *testing.T) {
	dir := project(t, map[string]string{"sluice.yaml": copyProject})
	err := Execute(context.Background(), Options{Dir: dir, Stdout: &bytes.Buffer{}}, []string{"deploy"})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.False(t, exit.Reported)
	assert.ErrorIs(t, err, domain.ErrUnknownTask)
}

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	reloads int
	changes chan string
	reload  error
}

func (f *fakeRunner) Run(ctx context.Context, _ ...string) (*domain.RunRecord, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	<-ctx.Done()
	return &domain.RunRecord{Status: domain.RunCancelled}, ctx.Err()
}

func (f *fakeRunner) Watch(context.Context) (<-chan string, error) { return f.changes, nil }

func (f *fakeRunner) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.reload
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, f.reloads
}

func TestRunWithReload_RestartsOnChange(t *testing.T) {
	f := &fakeRunner{changes: make(chan string)}
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	reporter := tui.NewReporter(&out, true)

	done := make(chan error, 1)
	go func() { done <- runWithReload(ctx, f, []string{"default"}, reporter, nopLogger()) }()

	f.changes <- "sluice.yaml"
	require.Eventually(t, func() bool { runs, _ := f.counts(); return runs == 2 }, 2*time.Second, 10*time.Millisecond)

	f.mu.Lock()
	f.reload = errors.New("cycle detected")
	f.mu.Unlock()
	f.changes <- "sluice.yaml"
	require.Eventually(t, func() bool { _, reloads := f.counts(); return reloads == 2 }, 2*time.Second, 10*time.Millisecond)
	runs, _ := f.counts()
	assert.Equal(t, 2, runs, "a failed reload keeps the current run")

	cancel()
	err := <-done
	assert.NoError(t, handleExecutionError(ctx, err, reporter))
	assert.Contains(t, out.String(), "reload failed: cycle detected")
}

func TestListDescribeGraph(t *testing.T) {
	dir := project(t, map[string]string{"sluice.yaml": copyProject})
	var out bytes.Buffer
	opts := Options{Dir: dir, Stdout: &out}

	require.NoError(t, List(opts))
	assert.Contains(t, out.String(), "| `copy` | pipeline | - | Copy text files. |")

	out.Reset()
	require.NoError(t, Describe(opts, "default"))
	assert.Contains(t, out.String(), "**Depends on:** `copy`")
	assert.ErrorIs(t, Describe(opts, "deploy"), domain.ErrUnknownTask)

	out.Reset()
	require.NoError(t, Graph(context.Background(), opts, ""))
	assert.True(t, strings.HasPrefix(out.String(), "graph LR\n"))
	assert.Contains(t, out.String(), "copy --> default")
}

func TestValidate(t *testing.T) {
	var out bytes.Buffer
	dir := project(t, map[string]string{"sluice.yaml": copyProject})
	require.NoError(t, Validate(context.Background(), Options{Dir: dir, Stdout: &out, NoColor: true}))
	assert.Contains(t, out.String(), "2 tasks valid")

	out.Reset()
	broken := project(t, map[string]string{"sluice.yaml": "version: 1\ntasks:\n  default:\n    src: [a]\n    steps: [nope]\n"})
	err := Validate(context.Background(), Options{Dir: broken, Stdout: &out, NoColor: true})
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Contains(t, out.String(), `unknown plugin "nope"`)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, Init(Options{Dir: dir, Stdout: &out}, false))

	data, err := os.ReadFile(filepath.Join(dir, "sluice.yaml"))
	require.NoError(t, err)
	assert.Equal(t, taskfile.Default, data)

	assert.ErrorContains(t, Init(Options{Dir: dir, Stdout: &out}, false), "already exists")
	assert.NoError(t, Init(Options{Dir: dir, Stdout: &out}, true))
}

func TestServe_StopsOnCancel(t *testing.T) {
	dir := project(t, map[string]string{"sluice.yaml": copyProject, "www/index.html": "<html><body></body></html>"})
	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, Options{Dir: dir, Stdout: &out, NoColor: true}, ServeOptions{BaseDir: "www", Host: "127.0.0.1", Port: 0})
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Serving www at http://127.0.0.1:") }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func nopLogger() *slog.Logger { return logging.NewNop() }
