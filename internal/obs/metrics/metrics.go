// Package metrics provides the Prometheus collectors for bunsane-sub005:
// NewWithRegistry plus MustRegister, an env-gated Enabled(), and the
// query/cache/hook/scheduler/storage counters this system emits.
package metrics

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this module registers.
type Metrics struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	QueryCacheHits  *prometheus.CounterVec
	QueryCacheMiss  *prometheus.CounterVec

	StorageOpsTotal  *prometheus.CounterVec
	StorageOpLatency *prometheus.HistogramVec

	HookDispatchTotal    *prometheus.CounterVec
	HookDispatchDuration *prometheus.HistogramVec
	HookFailuresTotal    *prometheus.CounterVec

	SchedulerExecutionsTotal *prometheus.CounterVec
	SchedulerTaskDuration    *prometheus.HistogramVec
	SchedulerTimedOutTotal   *prometheus.CounterVec
	SchedulerActiveTasks     prometheus.Gauge

	CacheEntries prometheus.Gauge
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
// A nil registerer skips registration, useful in tests that construct
// collectors without a global side effect.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_queries_total",
				Help: "Total number of compiled queries executed.",
			},
			[]string{"component", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecs_query_duration_seconds",
				Help:    "Query compile+execute duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"component"},
		),
		QueryCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_query_cache_hits_total",
				Help: "Total number of query results served from cache.",
			},
			[]string{"tier"},
		),
		QueryCacheMiss: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_query_cache_misses_total",
				Help: "Total number of query results not found in cache.",
			},
			[]string{"tier"},
		),

		StorageOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_storage_operations_total",
				Help: "Total number of storage driver operations.",
			},
			[]string{"operation", "status"},
		),
		StorageOpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecs_storage_operation_duration_seconds",
				Help:    "Storage driver operation duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),

		HookDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_hook_dispatch_total",
				Help: "Total number of hook handler invocations.",
			},
			[]string{"hook", "status"},
		),
		HookDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecs_hook_dispatch_duration_seconds",
				Help:    "Hook handler execution duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"hook"},
		),
		HookFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_hook_failures_total",
				Help: "Total number of hook handler errors, contained at the dispatcher.",
			},
			[]string{"hook"},
		),

		SchedulerExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_scheduler_executions_total",
				Help: "Total number of scheduled task executions by outcome.",
			},
			[]string{"task", "status"},
		),
		SchedulerTaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecs_scheduler_task_duration_seconds",
				Help:    "Scheduled task execution duration in seconds.",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		SchedulerTimedOutTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecs_scheduler_timed_out_total",
				Help: "Total number of scheduled task executions that exceeded their timeout.",
			},
			[]string{"task"},
		),
		SchedulerActiveTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecs_scheduler_active_tasks",
				Help: "Current number of tasks running concurrently.",
			},
		),

		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecs_cache_local_entries",
				Help: "Current number of entries held in the local cache tier.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.QueriesTotal,
			m.QueryDuration,
			m.QueryCacheHits,
			m.QueryCacheMiss,
			m.StorageOpsTotal,
			m.StorageOpLatency,
			m.HookDispatchTotal,
			m.HookDispatchDuration,
			m.HookFailuresTotal,
			m.SchedulerExecutionsTotal,
			m.SchedulerTaskDuration,
			m.SchedulerTimedOutTotal,
			m.SchedulerActiveTasks,
			m.CacheEntries,
		)
	}

	return m
}

// RecordQuery records one compiled-query execution.
func (m *Metrics) RecordQuery(component, status string, d time.Duration) {
	m.QueriesTotal.WithLabelValues(component, status).Inc()
	m.QueryDuration.WithLabelValues(component).Observe(d.Seconds())
}

// RecordCacheHit records a cache hit on the given tier ("local" or "remote").
func (m *Metrics) RecordCacheHit(tier string) {
	m.QueryCacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a cache miss on the given tier.
func (m *Metrics) RecordCacheMiss(tier string) {
	m.QueryCacheMiss.WithLabelValues(tier).Inc()
}

// RecordStorageOp records one storage driver operation.
func (m *Metrics) RecordStorageOp(operation, status string, d time.Duration) {
	m.StorageOpsTotal.WithLabelValues(operation, status).Inc()
	m.StorageOpLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordHookDispatch records one hook handler invocation outcome.
func (m *Metrics) RecordHookDispatch(hook, status string, d time.Duration) {
	m.HookDispatchTotal.WithLabelValues(hook, status).Inc()
	m.HookDispatchDuration.WithLabelValues(hook).Observe(d.Seconds())
	if status == "error" {
		m.HookFailuresTotal.WithLabelValues(hook).Inc()
	}
}

// RecordSchedulerExecution records one scheduled task run outcome.
func (m *Metrics) RecordSchedulerExecution(task, status string, d time.Duration) {
	m.SchedulerExecutionsTotal.WithLabelValues(task, status).Inc()
	m.SchedulerTaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// RecordSchedulerTimeout records a task execution exceeding its timeout.
func (m *Metrics) RecordSchedulerTimeout(task string) {
	m.SchedulerTimedOutTotal.WithLabelValues(task).Inc()
}

// SetActiveTasks updates the current concurrently-running task count.
func (m *Metrics) SetActiveTasks(n int) {
	m.SchedulerActiveTasks.Set(float64(n))
}

// SetCacheEntries updates the current local cache entry count.
func (m *Metrics) SetCacheEntries(n int) {
	m.CacheEntries.Set(float64(n))
}

// Enabled reports whether Prometheus metrics should be exposed, gated by
// METRICS_ENABLED (defaults to enabled).
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
