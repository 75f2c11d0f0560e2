package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotRegistered is returned when a tool is neither registered nor allowed inline.
var ErrNotRegistered = errors.New("process tool not registered")

// Runner executes local processes.
// It follows a Strict Registry pattern for security (Allow-Listing): only tools
// declared in the Taskfile run, unless inline execution is enabled.
type Runner struct {
	mu          sync.RWMutex
	registry    map[string]RegisteredProcess
	allowInline bool
	baseDir     string
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string // Prepended to every invocation
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			r.registry[name] = RegisteredProcess{Command: tool.Command, Args: tool.Args, Env: tool.Environment}
		}
	}
}

// WithInlineExecution lets unregistered names run as commands found on PATH.
func WithInlineExecution(allow bool) RunnerOption {
	return func(r *Runner) {
		r.allowInline = allow
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredProcess),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Tools lists registered tool names in lexical order.
func (r *Runner) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registry))
	for n := range r.registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Runner) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registry[name]
	return ok
}

func (r *Runner) resolve(name string) (RegisteredProcess, error) {
	r.mu.RLock()
	proc, ok := r.registry[name]
	r.mu.RUnlock()
	if ok {
		return proc, nil
	}
	if r.allowInline {
		return RegisteredProcess{Command: name}, nil
	}
	return RegisteredProcess{}, fmt.Errorf("%w: %s (and inline execution not enabled)", ErrNotRegistered, name)
}

// Which reports the resolved executable path of a tool, looking it up on PATH.
// Unregistered names are looked up as-is.
func (r *Runner) Which(name string) (string, error) {
	r.mu.RLock()
	proc, ok := r.registry[name]
	r.mu.RUnlock()
	command := name
	if ok {
		command = proc.Command
	}
	return exec.LookPath(command)
}

func (r *Runner) command(ctx context.Context, proc RegisteredProcess, dir string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, proc.Command, append(append([]string{}, proc.Args...), args...)...)
	cmd.Dir = r.baseDir
	if dir != "" {
		if filepath.IsAbs(dir) || r.baseDir == "" {
			cmd.Dir = dir
		} else {
			cmd.Dir = filepath.Join(r.baseDir, dir)
		}
	}
	env := cmd.Environ()
	for k, v := range proc.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env
	return cmd
}

// Run executes a tool with stdin and returns its stdout.
// A failing process yields an error carrying its trimmed stderr.
func (r *Runner) Run(ctx context.Context, name string, stdin []byte, args ...string) ([]byte, error) {
	proc, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	cmd := r.command(ctx, proc, "", args)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, execError(ctx, name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Stream executes a tool in dir, copying stdout and stderr to out line by line,
// each line preceded by prefix.
func (r *Runner) Stream(ctx context.Context, name, dir string, out io.Writer, prefix string, args ...string) error {
	proc, err := r.resolve(name)
	if err != nil {
		return err
	}
	cmd := r.command(ctx, proc, dir, args)

	pw := &prefixWriter{out: out, prefix: prefix}
	var stderr bytes.Buffer
	cmd.Stdout = pw
	cmd.Stderr = io.MultiWriter(pw, &stderr)

	err = cmd.Run()
	pw.Flush()
	if err != nil {
		return execError(ctx, name, err, stderr.String())
	}
	return nil
}

func execError(ctx context.Context, name string, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s: execution failed: %w", name, err)
	}
	return fmt.Errorf("%s: execution failed: %w: %s", name, err, stderr)
}

// prefixWriter writes complete lines with a prefix.
type prefixWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
	buf    bytes.Buffer
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line, keep it for the next write.
			rest := append([]byte(nil), line...)
			w.buf.Reset()
			w.buf.Write(rest)
			return len(p), nil
		}
		if err := w.line(line); err != nil {
			return 0, err
		}
	}
}

func (w *prefixWriter) line(line []byte) error {
	var err error
	if w.prefix != "" {
		_, err = fmt.Fprintf(w.out, "%s %s", w.prefix, line)
	} else {
		_, err = w.out.Write(line)
	}
	return err
}

// Flush writes a trailing partial line.
func (w *prefixWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return
	}
	rest := append(w.buf.Bytes(), '\n')
	w.buf.Reset()
	_ = w.line(rest)
}
