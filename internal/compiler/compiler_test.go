package compiler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/sluice/internal/runtime"
	"github.com/aretw0/sluice/internal/testutils"
	httpadapter "github.com/aretw0/sluice/pkg/adapters/http"
	"github.com/aretw0/sluice/pkg/adapters/process"
	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/taskfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompiler(t *testing.T, root string, tools map[string]process.ProcessConfig) (*Compiler, *bytes.Buffer) {
	t.Helper()
	c := New(root)
	c.Tools = process.NewRunner(process.WithRegistry(tools), process.WithBaseDir(root))
	c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	out := &bytes.Buffer{}
	c.Out = out
	c.Rerun = func(context.Context, ...string) (*domain.RunRecord, error) {
		return &domain.RunRecord{Status: domain.RunSucceeded}, nil
	}
	return c, out
}

func compileGraph(t *testing.T, c *Compiler, src string) *domain.Graph {
	t.Helper()
	f, err := taskfile.Parse([]byte(src), ".yaml")
	require.NoError(t, err)
	tasks, err := c.Compile(f)
	require.NoError(t, err)
	g, err := domain.NewGraph(tasks...)
	require.NoError(t, err)
	return g
}

func TestCompile_DefaultTaskfile(t *testing.T) {
	f, err := taskfile.Parse(taskfile.Default, ".yaml")
	require.NoError(t, err)
	c, _ := newCompiler(t, t.TempDir(), process.FromTaskfile(f.Tools))

	tasks, err := c.Compile(f)
	require.NoError(t, err)
	g, err := domain.NewGraph(tasks...)
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, task := range g.Tasks() {
		kinds[task.Name] = task.Kind
	}
	assert.Equal(t, domain.KindGroup, kinds["default"])
	assert.Equal(t, domain.KindServe, kinds["browser-sync"])
	assert.Equal(t, domain.KindWatch, kinds["watch"])
	assert.Equal(t, domain.KindExec, kinds["install"])
	assert.Equal(t, domain.KindRequire, kinds["git-check"])
	assert.Equal(t, domain.KindPipeline, kinds["sass"])
	assert.Equal(t, domain.KindClean, kinds["clean"])

	watch, _ := g.Task("watch")
	require.Len(t, watch.Watch, 2)
	assert.Equal(t, []string{"sass"}, watch.Watch[0].Tasks)
	assert.True(t, watch.Watch[0].Reload)
	assert.Equal(t, taskfile.DefaultDebounce, watch.Watch[0].Debounce)
	assert.Equal(t, []string{"htmlBlockInclude"}, watch.Watch[1].Tasks)
	assert.Contains(t, watch.Watch[1].Paths, "!www_dev/index.html", "the template binding must not watch its own output")
}

func TestCompile_ReportsEveryProblem(t *testing.T) {
	c, _ := newCompiler(t, t.TempDir(), nil)
	f, err := taskfile.Parse([]byte(`version: 1
tasks:
  styles:
    src: [a.scss]
    steps: [gulp-magic]
  install:
    exec: {tool: bower}
  watch:
    watch:
      - paths: ["**/*.js"]
        tasks: [lint]
`), ".yaml")
	require.NoError(t, err)

	_, err = c.Compile(f)
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown plugin "gulp-magic"`)
	assert.ErrorContains(t, err, `unknown tool "bower"`)
	assert.ErrorContains(t, err, `"lint"`)

	c.Rerun = nil
	f.Tasks = map[string]taskfile.Task{"watch": {Watch: []taskfile.WatchSpec{{Paths: []string{"*.js"}}}}}
	_, err = c.Compile(f)
	assert.ErrorContains(t, err, "no runner configured")
}

const buildTaskfile = `version: 1
tasks:
  build:
    deps: [index-html-build, uglify, images, copy-css]
  clean:
    clean: [./www/*]
  index-html-build:
    deps: [clean]
    src: [./www_dev/index.html]
    steps:
      - html-replace: {js: js/bundle.min.js}
    dest: ./www/
  uglify:
    deps: [clean]
    src: [./www_dev/js/**/*.js]
    steps:
      - uglify: {file: bundle.min.js, mangle: false}
    dest: ./www/js
  images:
    deps: [clean]
    src: [./www_dev/img/*]
    dest: ./www/img
  copy-css:
    deps: [clean]
    src: [./www_dev/css/*.css]
    dest: ./www/css/
`

func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	}))
	return out
}

func TestProductionBuild_IsIdempotent(t *testing.T) {
	root := testutils.Project(t, buildTaskfile, map[string]string{
		"www_dev/index.html": "<html><body>\n  <!-- build:js -->\n  <script src=\"js/app.js\"></script>\n  <script src=\"js/controllers.js\"></script>\n  <!-- endbuild -->\n</body></html>\n",
		"www_dev/js/app.js":         "var greeting = 'hello';\nfunction greet(name) { return greeting + ' ' + name; }\n",
		"www_dev/js/controllers.js": "function HomeCtrl(scope) { scope.title = greet('home'); }\n",
		"www_dev/img/logo.png":      "\x89PNG",
		"www_dev/css/app.css":       "a{color:red}",
		"www/stale.txt":             "old",
	})
	c, _ := newCompiler(t, root, nil)
	g := compileGraph(t, c, buildTaskfile)
	exec := runtime.NewExecutor(runtime.WithLogger(c.Logger))

	run, err := exec.Run(context.Background(), g, "build")
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.Status)
	first := snapshotTree(t, filepath.Join(root, "www"))

	assert.NotContains(t, first, "stale.txt")
	assert.Contains(t, first["index.html"], `<script src="js/bundle.min.js"></script>`)
	assert.NotContains(t, first["index.html"], "controllers.js")
	assert.Contains(t, first["js/bundle.min.js"], "greeting", "identifiers are kept without mangling")
	assert.Equal(t, "\x89PNG", first["img/logo.png"])
	assert.Equal(t, "a{color:red}", first["css/app.css"])

	_, err = exec.Run(context.Background(), g, "build")
	require.NoError(t, err)
	assert.Equal(t, first, snapshotTree(t, filepath.Join(root, "www")))
}

func TestRequire_MissingToolStopsInstall(t *testing.T) {
	root := t.TempDir()
	src := `version: 1
tasks:
  git-check:
    require:
      tool: git
      message: Git is not installed.
      remediation: [Install git first.]
  install:
    deps: [git-check]
    exec:
      tool: marker
`
	c, _ := newCompiler(t, root, map[string]process.ProcessConfig{
		"git":    {Name: "git", Command: "sluice-no-such-binary"},
		"marker": {Name: "marker", Command: "touch", Args: []string{"installed"}},
	})
	g := compileGraph(t, c, src)

	run, err := runtime.NewExecutor(runtime.WithLogger(c.Logger)).Run(context.Background(), g, "install")
	require.Error(t, err)

	var missing *domain.ToolMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "Git is not installed.", missing.Error())
	assert.Equal(t, []string{"Install git first."}, missing.Remediation)

	res, _ := run.Result("install")
	assert.Equal(t, domain.TaskSkipped, res.Status)
	assert.NoFileExists(t, filepath.Join(root, "installed"))
}

func TestExec_EchoesWithPrefix(t *testing.T) {
	root := t.TempDir()
	c, out := newCompiler(t, root, map[string]process.ProcessConfig{
		"sh": {Name: "sh", Command: "sh", Args: []string{"-c"}},
	})
	g := compileGraph(t, c, `version: 1
tasks:
  install:
    exec: {tool: sh, args: ["echo cached angular#1.4"], echo: bower}
`)
	_, err := runtime.NewExecutor(runtime.WithLogger(c.Logger)).Run(context.Background(), g, "install")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "bower")
	assert.Contains(t, out.String(), "bower cached angular#1.4\n")
}

func TestExec_BowerLogLines(t *testing.T) {
	root := t.TempDir()
	c, out := newCompiler(t, root, map[string]process.ProcessConfig{
		"sh": {Name: "sh", Command: "sh", Args: []string{"-c"}},
	})
	g := compileGraph(t, c, `version: 1
tasks:
  install:
    exec:
      tool: sh
      args: ["echo 'bower angular#~1.4.0      cached https://github.com/angular/bower-angular.git#1.4.14'; echo 'not a log'"]
      echo: bower
      log: bower
`)
	_, err := runtime.NewExecutor(runtime.WithLogger(c.Logger)).Run(context.Background(), g, "install")
	require.NoError(t, err)
	assert.Equal(t, "bower cached https://github.com/angular/bower-angular.git#1.4.14\nbower not a log\n", out.String())

	f, err := taskfile.Parse([]byte(`version: 1
tasks:
  install:
    exec: {tool: sh, log: npm}
`), ".yaml")
	if err == nil {
		_, err = c.Compile(f)
	}
	assert.ErrorContains(t, err, `"npm"`)
}

func TestWatch_RerunsExactlyTheBoundTasksOnce(t *testing.T) {
	root := t.TempDir()
	testutils.WriteFiles(t, root, map[string]string{"scss/app.scss": "a{}"})
	c, _ := newCompiler(t, root, nil)

	var (
		mu      sync.Mutex
		started []string
	)
	exec := runtime.NewExecutor(
		runtime.WithLogger(c.Logger),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnTaskStart: func(_ context.Context, e *domain.TaskEvent) {
				mu.Lock()
				started = append(started, e.Task)
				mu.Unlock()
			},
		}),
	)
	var g *domain.Graph
	c.Rerun = func(ctx context.Context, names ...string) (*domain.RunRecord, error) {
		return exec.Run(ctx, g, names...)
	}

	// sass writes into the tree it watches; its output is excluded from the binding.
	g = compileGraph(t, c, `version: 1
tasks:
  sass:
    src: [./scss/*.scss]
    steps:
      - rename: {extname: .css}
    dest: ./scss/build/
  lint: {}
  watch:
    watch:
      - paths: [scss/**/*, "!scss/build/**"]
        tasks: [sass]
        reload: true
        debounce: 20ms
`)
	reloads, unsubscribe := c.Reloads.Subscribe(httpadapter.TopicReload)
	defer unsubscribe()

	task, _ := g.Task("watch")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	completion := task.Action.Start(ctx)
	select {
	case <-completion.Done():
		require.NoError(t, completion.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "scss/app.scss"), []byte("b{}"), 0o644))
	select {
	case path := <-reloads:
		assert.Equal(t, "scss/app.scss", path)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload broadcast")
	}

	// Let any event raised by the rerun's own output settle.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"sass"}, started, "one rerun of the bound task and nothing else")
	mu.Unlock()

	data, err := os.ReadFile(filepath.Join(root, "scss/build/app.css"))
	require.NoError(t, err)
	assert.Equal(t, "b{}", string(data))
	select {
	case path := <-reloads:
		t.Fatalf("unexpected second reload for %s", path)
	default:
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestServe_StartsDevServer(t *testing.T) {
	root := t.TempDir()
	testutils.WriteFiles(t, root, map[string]string{"www_dev/index.html": "<body>app</body>"})
	c, _ := newCompiler(t, root, nil)
	port := freePort(t)

	g := compileGraph(t, c, `version: 1
tasks:
  serve:
    serve:
      base_dir: ./www_dev
      host: 127.0.0.1
      port: `+strconv.Itoa(port)+`
      files: ["**/*.html"]
`)
	task, _ := g.Task("serve")
	ctx, cancel := context.WithCancel(context.Background())
	completion := task.Action.Start(ctx)
	select {
	case <-completion.Done():
		require.NoError(t, completion.Err())
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), httpadapter.EventsPath)

	cancel()
	resident, ok := completion.(domain.Resident)
	require.True(t, ok)
	select {
	case <-resident.Stopped():
		assert.NoError(t, resident.StopErr())
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestCleanTargets(t *testing.T) {
	root := t.TempDir()
	testutils.WriteFiles(t, root, map[string]string{
		"www/index.html":   "x",
		"www/js/app.js":    "x",
		"www/.gitkeep":     "",
		"www_dev/keep.txt": "x",
	})

	targets, err := cleanTargets(root, []string{"./www/*", "!www/.gitkeep"})
	require.NoError(t, err)
	rel := make([]string, len(targets))
	for i, p := range targets {
		r, _ := filepath.Rel(root, p)
		rel[i] = filepath.ToSlash(r)
	}
	assert.Equal(t, []string{"www/js", "www/index.html"}, rel)

	_, err = cleanTargets(root, []string{"../outside/*"})
	assert.ErrorContains(t, err, "inside the project")
}
