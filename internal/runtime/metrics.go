package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes executor activity to Prometheus through lifecycle hooks.
type Metrics struct {
	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	RunsInFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered (for example by a previous engine in watch
// mode) are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TaskRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sluice_task_runs_total",
				Help: "Total number of task executions by outcome",
			},
			[]string{"task", "status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sluice_task_duration_seconds",
				Help:    "Duration of task executions",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"task"},
		),
		RunsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sluice_runs_in_flight",
				Help: "Number of invocations currently executing",
			},
		),
	}
	if reg == nil {
		return m
	}
	m.TaskRuns = register(reg, m.TaskRuns)
	m.TaskDuration = register(reg, m.TaskDuration)
	m.RunsInFlight = register(reg, m.RunsInFlight)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			m.RunsInFlight.Inc()
		},
		OnRunFinish: func(ctx context.Context, e *domain.RunEvent) {
			m.RunsInFlight.Dec()
		},
		OnTaskDone: func(ctx context.Context, e *domain.TaskEvent) {
			m.TaskRuns.WithLabelValues(e.Task, string(e.Status)).Inc()
			m.TaskDuration.WithLabelValues(e.Task).Observe(e.Duration.Seconds())
		},
		OnTaskSkip: func(ctx context.Context, e *domain.TaskEvent) {
			m.TaskRuns.WithLabelValues(e.Task, string(domain.TaskSkipped)).Inc()
		},
	}
}
