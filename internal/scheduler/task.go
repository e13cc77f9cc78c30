// Package scheduler implements interval/cron-driven tasks whose input is an
// ECS query result set, dispatched by a single concurrency-capped loop: a
// periodic scan, a per-task concurrency slot, a panic-recovered execution
// goroutine, and next-fire-time recomputation relative to the scheduled
// tick rather than completion time. CRON expressions are parsed with
// robfig/cron/v3.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/yaaruu/bunsane-sub005/internal/query"
)

// Interval enumerates the fixed cadences a Task may run on; CRON uses a
// parsed five-field expression instead.
type Interval string

const (
	IntervalMinute  Interval = "MINUTE"
	IntervalHour    Interval = "HOUR"
	IntervalDaily   Interval = "DAILY"
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
	IntervalCron    Interval = "CRON"
)

// Handler receives the entities matched by a task's query on a fire and
// runs the task's business logic.
type Handler func(ctx context.Context, results []query.Result) error

// Task is the scheduler's task record: an interval/cron cadence paired
// with a query to build and a handler to dispatch its results to.
type Task struct {
	Name            string
	ComponentTarget string
	Query           *query.Builder
	Interval        Interval
	CronExpression  string
	Handler         Handler

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Priority   int

	mu             sync.Mutex
	enabled        bool
	isRunning      bool
	nextExecution  time.Time
	executionCount int
	failureCount   int
	retryCount     int
	lastDuration   time.Duration
	lastError      error
	schedule       schedule
}

func newTask(t Task) (*Task, error) {
	sched, err := parseSchedule(t.Interval, t.CronExpression)
	if err != nil {
		return nil, err
	}
	if t.Query == nil {
		t.Query = query.New()
	}
	t.schedule = sched
	t.enabled = true
	t.nextExecution = sched.next(time.Now())
	return &t, nil
}

func (t *Task) dueAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextExecution
}

func (t *Task) isEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// tryAcquire claims the task's reentrancy guard; a task already running is
// skipped on this tick rather than stacked behind the prior run.
func (t *Task) tryAcquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return false
	}
	t.isRunning = true
	return true
}

func (t *Task) release() {
	t.mu.Lock()
	t.isRunning = false
	t.mu.Unlock()
}

// advance recomputes nextExecution relative to scheduledFor, the tick time
// the run was due at, not wall-clock completion time, and skips any ticks
// that have already elapsed instead of bursting through them.
func (t *Task) advance(scheduledFor time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.schedule.next(scheduledFor)
	now := time.Now()
	for !next.After(now) {
		advanced := t.schedule.next(next)
		if !advanced.After(next) {
			break
		}
		next = advanced
	}
	t.nextExecution = next
}

func (t *Task) recordRun(d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executionCount++
	t.lastDuration = d
	t.lastError = err
	if err != nil {
		t.failureCount++
	}
}

func (t *Task) recordRetry() {
	t.mu.Lock()
	t.retryCount++
	t.mu.Unlock()
}

// Snapshot is a point-in-time read of a task's execution counters, returned
// by Scheduler.GetMetrics.
type Snapshot struct {
	Name           string
	Enabled        bool
	NextExecution  time.Time
	ExecutionCount int
	FailureCount   int
	RetryCount     int
	LastDuration   time.Duration
	LastError      error
}

func (t *Task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Name:           t.Name,
		Enabled:        t.enabled,
		NextExecution:  t.nextExecution,
		ExecutionCount: t.executionCount,
		FailureCount:   t.failureCount,
		RetryCount:     t.retryCount,
		LastDuration:   t.lastDuration,
		LastError:      t.lastError,
	}
}
