// Package watch re-triggers tasks when files matching watch bindings change.
//
// A Watcher is an owned resource: it holds an fsnotify handle and one goroutine
// per binding, and releases both when its context is cancelled or Close is called.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce applies to bindings without their own debounce.
const DefaultDebounce = 100 * time.Millisecond

// Trigger is called once a binding's debounce window elapses. path is the last
// changed file, relative to the watcher root. Calls for the same binding never
// overlap.
type Trigger func(ctx context.Context, b domain.WatchBinding, path string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithIgnore skips directories with these base names when adding watches.
func WithIgnore(names ...string) Option {
	return func(w *Watcher) { w.ignore = append(w.ignore, names...) }
}

type binding struct {
	domain.WatchBinding
	include []string
	exclude []string
	kick    chan struct{}

	mu   sync.Mutex
	last string
}

// Watcher evaluates watch bindings against file-system events below root.
type Watcher struct {
	root     string
	bindings []*binding
	trigger  Trigger
	logger   *slog.Logger
	ignore   []string
	// trees are the directories watched recursively; new subdirectories are
	// only added below them.
	trees []string

	fsw       *fsnotify.Watcher
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// New validates bindings and prepares a watcher. Nothing is watched until Start.
func New(root string, bindings []domain.WatchBinding, trigger Trigger, opts ...Option) (*Watcher, error) {
	if trigger == nil {
		return nil, errors.New("watch: trigger is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: invalid root: %w", err)
	}
	w := &Watcher{
		root:    abs,
		trigger: trigger,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		ignore:  []string{".git", ".sluice", "node_modules"},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	for i, b := range bindings {
		if len(b.Paths) == 0 {
			return nil, fmt.Errorf("watch: binding %d has no paths", i)
		}
		nb := &binding{WatchBinding: b, kick: make(chan struct{}, 1)}
		if nb.Debounce <= 0 {
			nb.Debounce = DefaultDebounce
		}
		for _, p := range b.Paths {
			neg := strings.HasPrefix(p, "!")
			clean := cleanPattern(strings.TrimPrefix(p, "!"))
			if !doublestar.ValidatePattern(clean) {
				return nil, fmt.Errorf("watch: invalid pattern %q", p)
			}
			if neg {
				nb.exclude = append(nb.exclude, clean)
			} else {
				nb.include = append(nb.include, clean)
			}
		}
		w.bindings = append(w.bindings, nb)
	}
	return w, nil
}

func cleanPattern(p string) string {
	p = filepath.ToSlash(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return path.Clean(p)
}

// Start adds watches and begins dispatching. It returns once the watches are
// in place; the watcher runs until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	w.fsw = fsw

	for _, b := range w.bindings {
		for _, p := range b.include {
			if err := w.addPattern(p); err != nil {
				fsw.Close()
				return err
			}
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	for _, b := range w.bindings {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.dispatch(ctx, b)
		}()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	go func() {
		w.wg.Wait()
		fsw.Close()
		close(w.done)
	}()
	return nil
}

// Close stops the watcher and waits for in-flight triggers to return.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		if w.cancel == nil {
			close(w.done)
			return
		}
		w.cancel()
	})
	<-w.done
	return nil
}

// Done is closed once the watcher has fully stopped.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// existing returns dir or its closest existing ancestor below root.
func (w *Watcher) existing(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(parent, w.root) {
			return w.root
		}
		dir = parent
	}
}

func (w *Watcher) skip(name string) bool {
	for _, ig := range w.ignore {
		if name == ig {
			return true
		}
	}
	return false
}

// addPattern watches the directories a pattern can match in. A pattern whose
// remainder stays within its base directory, such as "sluice.yaml" or
// "src/*.txt", needs only that directory.
func (w *Watcher) addPattern(p string) error {
	base, rest := doublestar.SplitPattern(p)
	dir := filepath.Join(w.root, filepath.FromSlash(base))
	top := w.existing(dir)
	if top == dir && !strings.Contains(rest, "/") {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		return nil
	}
	w.trees = append(w.trees, top)
	return w.addTree(top)
}

func (w *Watcher) inTree(dir string) bool {
	for _, t := range w.trees {
		if dir == t || strings.HasPrefix(dir, t+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.skip(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !w.skip(info.Name()) && w.inTree(ev.Name) {
						if err := w.addTree(ev.Name); err != nil {
							w.logger.Warn("Failed to watch new directory", "dir", ev.Name, "err", err)
						}
					}
					continue
				}
			}
			w.handle(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "err", err)
		}
	}
}

// handle matches an absolute path against every binding and schedules the
// ones that match.
func (w *Watcher) handle(abs string) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, b := range w.bindings {
		if !b.matches(rel) {
			continue
		}
		w.logger.Debug("Change detected", "path", rel, "tasks", b.Tasks)
		b.mu.Lock()
		b.last = rel
		b.mu.Unlock()
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

func (b *binding) matches(rel string) bool {
	for _, ex := range b.exclude {
		if ok, _ := doublestar.Match(ex, rel); ok {
			return false
		}
	}
	for _, in := range b.include {
		if ok, _ := doublestar.Match(in, rel); ok {
			return true
		}
	}
	return false
}

// dispatch debounces kicks for one binding and fires the trigger serially.
func (w *Watcher) dispatch(ctx context.Context, b *binding) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
		}

		timer := time.NewTimer(b.Debounce)
	settle:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-b.kick:
				timer.Reset(b.Debounce)
			case <-timer.C:
				break settle
			}
		}

		b.mu.Lock()
		last := b.last
		b.mu.Unlock()
		w.trigger(ctx, b.WatchBinding, last)
	}
}
