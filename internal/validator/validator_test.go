package validator

import (
	"strings"
	"testing"

	"github.com/aretw0/sluice/pkg/adapters/process"
	"github.com/aretw0/sluice/pkg/plugins"
	"github.com/aretw0/sluice/pkg/taskfile"
)

func parse(t *testing.T, src string) *taskfile.File {
	t.Helper()
	f, err := taskfile.Parse([]byte(src), ".yaml")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return f
}

func TestValidateTaskfile(t *testing.T) {
	tools := process.NewRunner()
	tools.Register("bower", "bower")
	reg := plugins.Default()

	// Scenario A: the built-in default Taskfile is valid.
	def, err := taskfile.Parse(taskfile.Default, ".yaml")
	if err != nil {
		t.Fatalf("default taskfile: %v", err)
	}
	defTools := process.NewRunner(process.WithRegistry(process.FromTaskfile(def.Tools)))
	if err := ValidateTaskfile(def, reg, defTools, "default").Err(); err != nil {
		t.Errorf("Scenario A (Default) failed: %v", err)
	}

	// Scenario B: every broken reference is reported at once.
	broken := parse(t, `version: 1
tasks:
  default:
    deps: [styles]
  styles:
    src: [scss/*.scss]
    steps: [sassy]
    dest: css
  deploy:
    exec: {tool: rsync}
  watch:
    watch:
      - paths: ["scss/[*.scss"]
        tasks: [ghost]
`)
	res := ValidateTaskfile(broken, reg, tools, "default")
	err = res.Err()
	if err == nil {
		t.Fatal("Scenario B (Broken) should have failed, but got nil")
	}
	for _, want := range []string{`unknown plugin "sassy"`, `unknown tool "rsync"`, `unknown task "ghost"`, `invalid pattern`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in error, got: %v", want, err)
		}
	}

	// Scenario C: a cycle stops the analysis.
	cyclic := parse(t, `version: 1
tasks:
  a: {deps: [b]}
  b: {deps: [a]}
`)
	if err := ValidateTaskfile(cyclic, reg, tools, "").Err(); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Scenario C (Cycle) expected a cycle error, got %v", err)
	}
}

func TestValidateTaskfile_Warnings(t *testing.T) {
	f := parse(t, `version: 1
tasks:
  stray: {}
  check:
    require: {tool: definitely-not-installed-tool}
    description: Checks the tool.
`)
	res := ValidateTaskfile(f, plugins.Default(), process.NewRunner(), "default")
	if err := res.Err(); err != nil {
		t.Fatalf("warnings must not fail validation: %v", err)
	}

	var got []string
	for _, i := range res.Issues {
		if i.Severity != SeverityWarning {
			t.Errorf("unexpected issue %s", i)
		}
		got = append(got, i.String())
	}
	joined := strings.Join(got, "\n")
	for _, want := range []string{
		`task "check": required tool "definitely-not-installed-tool" is not installed`,
		`no "default" task`,
		`task "stray": not referenced by any task and has no description`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected warning %q, got:\n%s", want, joined)
		}
	}
}
