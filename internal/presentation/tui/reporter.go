package tui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/muesli/termenv"
)

// Reporter prints task progress in the classic gulp format:
//
//	[14:02:11] Starting 'sass'...
//	[14:02:12] Finished 'sass' after 812 ms
type Reporter struct {
	out   *termenv.Output
	mu    sync.Mutex
	clock func() time.Time
}

// NewReporter writes progress lines to w. noColor forces plain text.
func NewReporter(w io.Writer, noColor bool) *Reporter {
	opts := []termenv.OutputOption{}
	if noColor {
		opts = append(opts, termenv.WithProfile(termenv.Ascii))
	}
	return &Reporter{out: termenv.NewOutput(w, opts...), clock: time.Now}
}

// Hooks returns the lifecycle hooks that drive the reporter.
func (r *Reporter) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskStart: func(_ context.Context, ev *domain.TaskEvent) {
			r.line("Starting %s...", r.name(ev.Task))
		},
		OnTaskDone: func(_ context.Context, ev *domain.TaskEvent) {
			if ev.Status == domain.TaskFailed {
				r.line("%s %s after %s: %v", r.out.String("Errored").Foreground(termenv.ANSIRed),
					r.name(ev.Task), r.duration(ev.Duration), ev.Err)
				return
			}
			r.line("Finished %s after %s", r.name(ev.Task), r.duration(ev.Duration))
		},
		OnTaskSkip: func(_ context.Context, ev *domain.TaskEvent) {
			r.line("Skipped %s", r.name(ev.Task))
		},
	}
}

// Errorf prints a red message.
func (r *Reporter) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.out.String(fmt.Sprintf(format, args...)).Foreground(termenv.ANSIRed))
}

// ToolMissing prints the message and remediation of a missing tool.
func (r *Reporter) ToolMissing(err *domain.ToolMissingError) {
	msg := err.Message
	if msg == "" {
		msg = fmt.Sprintf("%s is not installed.", err.Tool)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.out.String("  "+msg).Foreground(termenv.ANSIRed))
	for _, l := range err.Remediation {
		fmt.Fprintln(r.out, r.out.String("  "+l).Foreground(termenv.ANSICyan))
	}
}

func (r *Reporter) line(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp := r.out.String(r.clock().Format("15:04:05")).Faint()
	fmt.Fprintf(r.out, "[%s] %s\n", stamp, fmt.Sprintf(format, args...))
}

func (r *Reporter) name(task string) string {
	return "'" + r.out.String(task).Foreground(termenv.ANSICyan).String() + "'"
}

func (r *Reporter) duration(d time.Duration) string {
	var s string
	switch {
	case d < time.Millisecond:
		s = fmt.Sprintf("%d μs", d.Microseconds())
	case d < time.Second:
		s = fmt.Sprintf("%d ms", d.Milliseconds())
	default:
		s = fmt.Sprintf("%.2f s", d.Seconds())
	}
	return r.out.String(s).Foreground(termenv.ANSIMagenta).String()
}
