package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultLockTTL bounds how long a crashed process can keep a project locked.
const DefaultLockTTL = 10 * time.Minute

// Executor runs invocations against a task graph.
//
// For each invocation it resolves the closure of the requested tasks, starts
// every task whose prerequisites have completed, and runs independent tasks
// concurrently. The first failure halts scheduling: tasks already running are
// allowed to finish, nothing new starts, and the remainder is recorded as skipped.
type Executor struct {
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	concurrency int
	store       ports.RunStore
	locker      ports.DistributedLocker
	lockKey     string
	lockTTL     time.Duration
	project     string
	now         func() time.Time
	newID       func() string
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks. Hooks from repeated calls are chained.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithConcurrency caps the number of tasks running at once. Zero means unlimited.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		e.concurrency = n
	}
}

// WithRunStore persists a record of every invocation.
func WithRunStore(store ports.RunStore) Option {
	return func(e *Executor) {
		e.store = store
	}
}

// WithLocker holds a lock on key while an invocation schedules its tasks. The
// lock is released before the invocation starts holding its services.
func WithLocker(locker ports.DistributedLocker, key string, ttl time.Duration) Option {
	return func(e *Executor) {
		e.locker = locker
		e.lockKey = key
		e.lockTTL = ttl
	}
}

// WithProject labels run records.
func WithProject(name string) Option {
	return func(e *Executor) {
		e.project = name
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// WithIDGenerator replaces the run ID generator, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(e *Executor) {
		e.newID = fn
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lockKey == "" {
		e.lockKey = e.project
	}
	return e
}

type taskDone struct {
	name  string
	start time.Time
	end   time.Time
	err   error
	res   domain.Resident
}

// Run executes the named tasks and their prerequisites.
//
// The returned record is never nil once the requested names resolved, even on
// failure. Unknown task names fail before anything runs.
func (e *Executor) Run(ctx context.Context, g *domain.Graph, names ...string) (*domain.RunRecord, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no task requested", domain.ErrUnknownTask)
	}
	closure, err := g.Closure(names...)
	if err != nil {
		return nil, err
	}

	release := func() {}
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "run:"+e.lockKey, e.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock project %q: %w", e.lockKey, err)
		}
		var once sync.Once
		release = func() {
			once.Do(func() {
				if err := unlock(context.Background()); err != nil {
					e.logger.Warn("Failed to release project lock", "err", err)
				}
			})
		}
		defer release()
	}

	run := &domain.RunRecord{
		ID:        e.newID(),
		Project:   e.project,
		Tasks:     append([]string(nil), names...),
		Status:    domain.RunRunning,
		StartedAt: e.now(),
	}
	logger := e.logger.With("run_id", run.ID)
	logger.Info("Run started", "tasks", names, "closure", len(closure))
	if e.hooks.OnRunStart != nil {
		e.hooks.OnRunStart(ctx, &domain.RunEvent{
			EventBase: e.event(domain.EventRunStart, run.ID),
			Tasks:     run.Tasks,
		})
	}

	// Actions observe runCtx. It outlives scheduling so that services started by
	// the run keep serving until the caller cancels ctx.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	results, residents, runErr := e.schedule(runCtx, g, closure, run.ID, logger)
	// The lock covers scheduling only. Services left running by the run must not
	// keep other invocations of the project out.
	release()

	if runErr == nil && len(residents) > 0 {
		runErr = e.hold(ctx, residents, logger)
	}
	cancelRun()
	for _, r := range residents {
		<-r.res.Stopped()
	}

	run.EndedAt = e.now()
	run.Results = make([]domain.TaskResult, 0, len(closure))
	for _, name := range closure {
		run.Results = append(run.Results, results[name])
	}
	switch {
	case runErr == nil:
		run.Status = domain.RunSucceeded
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		run.Status = domain.RunCancelled
		run.Error = runErr.Error()
	default:
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
	}

	logger.Info("Run finished", "status", run.Status, "duration", run.EndedAt.Sub(run.StartedAt))
	if e.hooks.OnRunFinish != nil {
		e.hooks.OnRunFinish(ctx, &domain.RunEvent{
			EventBase: e.event(domain.EventRunFinish, run.ID),
			Tasks:     run.Tasks,
			Status:    run.Status,
			Duration:  run.EndedAt.Sub(run.StartedAt),
			Err:       runErr,
		})
	}

	if e.store != nil {
		if err := e.store.Save(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("Failed to persist run", "err", err)
		}
	}
	return run, runErr
}

// schedule runs the closure to completion or first failure.
func (e *Executor) schedule(ctx context.Context, g *domain.Graph, closure []string, runID string, logger *slog.Logger) (map[string]domain.TaskResult, []taskDone, error) {
	inClosure := make(map[string]bool, len(closure))
	for _, n := range closure {
		inClosure[n] = true
	}

	pending := make(map[string]int, len(closure))
	results := make(map[string]domain.TaskResult, len(closure))
	var ready []string
	for _, name := range closure {
		task, _ := g.Task(name)
		pending[name] = len(task.Deps)
		results[name] = domain.TaskResult{Name: name, Status: domain.TaskPending}
		if pending[name] == 0 {
			ready = append(ready, name)
		}
	}

	done := make(chan taskDone, len(closure))
	var group errgroup.Group
	if e.concurrency > 0 {
		group.SetLimit(e.concurrency)
	}

	var (
		residents []taskDone
		failures  []error
		running   int
	)

	for {
		for len(failures) == 0 && len(ready) > 0 && ctx.Err() == nil {
			name := ready[0]
			ready = ready[1:]
			task, _ := g.Task(name)
			running++
			results[name] = domain.TaskResult{Name: name, Status: domain.TaskRunning, StartedAt: e.now()}
			group.Go(func() error {
				done <- e.runTask(ctx, task, runID, logger)
				return nil
			})
		}
		if running == 0 {
			break
		}

		d := <-done
		running--
		res := results[d.name]
		res.StartedAt = d.start
		res.EndedAt = d.end
		if d.err != nil {
			res.Status = domain.TaskFailed
			res.Error = d.err.Error()
			failures = append(failures, &domain.TaskError{Task: d.name, Err: d.err})
			logger.Error("Task failed", "task", d.name, "err", d.err)
		} else {
			res.Status = domain.TaskSucceeded
			if d.res != nil {
				residents = append(residents, d)
			}
			var unlocked []string
			for _, dep := range g.Dependents(d.name) {
				if !inClosure[dep] {
					continue
				}
				pending[dep]--
				if pending[dep] == 0 {
					unlocked = append(unlocked, dep)
				}
			}
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
		results[d.name] = res
	}
	_ = group.Wait()

	skipped := 0
	for _, name := range closure {
		res := results[name]
		if res.Status != domain.TaskPending {
			continue
		}
		skipped++
		res.Status = domain.TaskSkipped
		results[name] = res
		if e.hooks.OnTaskSkip != nil {
			e.hooks.OnTaskSkip(ctx, &domain.TaskEvent{
				EventBase: e.event(domain.EventTaskSkip, runID),
				Task:      name,
				Status:    domain.TaskSkipped,
			})
		}
	}

	if len(failures) > 0 {
		return results, residents, errors.Join(failures...)
	}
	if err := ctx.Err(); err != nil && skipped > 0 {
		return results, residents, fmt.Errorf("run interrupted: %w", err)
	}
	return results, residents, nil
}

func (e *Executor) runTask(ctx context.Context, task domain.Task, runID string, logger *slog.Logger) taskDone {
	d := taskDone{name: task.Name, start: e.now()}
	logger.Debug("Task started", "task", task.Name)
	if e.hooks.OnTaskStart != nil {
		e.hooks.OnTaskStart(ctx, &domain.TaskEvent{
			EventBase: e.event(domain.EventTaskStart, runID),
			Task:      task.Name,
			Status:    domain.TaskRunning,
		})
	}

	if task.Action != nil {
		c := startAction(ctx, task.Action)
		select {
		case <-c.Done():
			d.err = c.Err()
		case <-ctx.Done():
			d.err = ctx.Err()
		}
		if r, ok := c.(domain.Resident); ok && d.err == nil {
			d.res = r
		}
	}

	d.end = e.now()
	status := domain.TaskSucceeded
	if d.err != nil {
		status = domain.TaskFailed
	}
	logger.Debug("Task finished", "task", task.Name, "status", status, "duration", d.end.Sub(d.start))
	if e.hooks.OnTaskDone != nil {
		e.hooks.OnTaskDone(ctx, &domain.TaskEvent{
			EventBase: e.event(domain.EventTaskDone, runID),
			Task:      task.Name,
			Status:    status,
			Duration:  d.end.Sub(d.start),
			Err:       d.err,
		})
	}
	return d
}

// startAction shields the scheduler from actions that panic while starting.
func startAction(ctx context.Context, a domain.Action) (c domain.Completion) {
	defer func() {
		if p := recover(); p != nil {
			c = domain.Resolved(fmt.Errorf("panic: %v", p))
		}
	}()
	c = a.Start(ctx)
	if c == nil {
		c = domain.Resolved(nil)
	}
	return c
}

// hold keeps the run alive while services are up. It returns when ctx is
// cancelled (a clean stop) or when a service stops on its own.
func (e *Executor) hold(ctx context.Context, residents []taskDone, logger *slog.Logger) error {
	names := make([]string, 0, len(residents))
	for _, r := range residents {
		names = append(names, r.name)
	}
	logger.Info("Services running", "tasks", strings.Join(names, ","))

	stopped := make(chan taskDone, len(residents))
	var wg sync.WaitGroup
	for _, r := range residents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-r.res.Stopped():
				stopped <- r
			case <-ctx.Done():
			}
		}()
	}

	select {
	case <-ctx.Done():
		wg.Wait()
		return nil
	case r := <-stopped:
		if ctx.Err() != nil {
			wg.Wait()
			return nil
		}
		err := r.res.StopErr()
		if err == nil {
			err = fmt.Errorf("service stopped unexpectedly")
		}
		return &domain.TaskError{Task: r.name, Err: err}
	}
}

func (e *Executor) event(t domain.EventType, runID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, RunID: runID}
}
