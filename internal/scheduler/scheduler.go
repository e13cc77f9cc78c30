package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/obs/logging"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
	"github.com/yaaruu/bunsane-sub005/internal/query"
)

// maxRetryBackoff caps the exponential backoff delay between retries
// regardless of how many attempts have elapsed or how large a task's base
// RetryDelay is.
const maxRetryBackoff = 30 * time.Second

// Config bounds the dispatch loop's behavior.
type Config struct {
	TickInterval       time.Duration
	MaxConcurrentTasks int
}

// DefaultConfig returns the scheduler's default polling cadence and
// concurrency cap.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second, MaxConcurrentTasks: 8}
}

// Scheduler runs a single concurrency-capped dispatch loop over its
// registered tasks, ordered by (nextExecution ASC, priority DESC) on every
// tick.
type Scheduler struct {
	cfg      Config
	executor *query.Executor
	logger   *logging.Logger
	metrics  *metrics.Metrics

	mu    sync.RWMutex
	tasks []*Task

	sem chan struct{}

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New builds a Scheduler that runs queries through executor.
func New(executor *query.Executor, cfg Config, logger *logging.Logger, m *metrics.Metrics) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 8
	}
	return &Scheduler{
		cfg:      cfg,
		executor: executor,
		logger:   logger,
		metrics:  m,
		sem:      make(chan struct{}, cfg.MaxConcurrentTasks),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Register adds a task to the schedule. The task becomes eligible on the
// next tick.
func (s *Scheduler) Register(t Task) (*Task, error) {
	task, err := newTask(t)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return task, nil
}

// Enable re-activates a task previously disabled with Disable.
func (s *Scheduler) Enable(name string) {
	s.withTask(name, func(t *Task) {
		t.mu.Lock()
		t.enabled = true
		t.mu.Unlock()
	})
}

// Disable pauses a task; the dispatch loop skips it until re-enabled.
func (s *Scheduler) Disable(name string) {
	s.withTask(name, func(t *Task) {
		t.mu.Lock()
		t.enabled = false
		t.mu.Unlock()
	})
}

func (s *Scheduler) withTask(name string, fn func(*Task)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.Name == name {
			fn(t)
			return
		}
	}
}

// ExecuteNow runs a named task immediately, outside its regular schedule,
// honoring the same concurrency guard and retry policy as a normal tick.
func (s *Scheduler) ExecuteNow(ctx context.Context, name string) error {
	s.mu.RLock()
	var target *Task
	for _, t := range s.tasks {
		if t.Name == name {
			target = t
			break
		}
	}
	s.mu.RUnlock()
	if target == nil {
		return apperrors.NotFound("task", name)
	}
	if !target.tryAcquire() {
		return apperrors.Scheduler(name, nil).WithDetail("reason", "already running")
	}
	defer target.release()
	return s.runWithRetry(ctx, target, time.Now())
}

// Start launches the dispatch loop in a background goroutine. Stop ends it.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop ends the dispatch loop and waits for the current tick's in-flight
// tasks to finish dispatching (not necessarily completing, for
// long-running handlers past their timeout).
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every due, enabled task in (nextExecution ASC, priority
// DESC) order, bounded by the scheduler's concurrency cap. A task already
// running (isRunning) or already saturating the semaphore is skipped this
// tick, not queued — the next tick picks it up once its slot frees.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	s.mu.RLock()
	due := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.isEnabled() && !t.dueAt().After(now) {
			due = append(due, t)
		}
	}
	s.mu.RUnlock()

	sortDue(due)

	var wg sync.WaitGroup
	for _, t := range due {
		if !t.tryAcquire() {
			continue
		}
		select {
		case s.sem <- struct{}{}:
		default:
			t.release()
			continue
		}

		wg.Add(1)
		scheduledFor := t.dueAt()
		go func(t *Task) {
			defer wg.Done()
			defer func() { <-s.sem }()
			defer t.release()
			s.dispatch(ctx, t, scheduledFor)
		}(t)
	}

	if s.metrics != nil {
		s.metrics.SetActiveTasks(len(s.sem))
	}
	wg.Wait()
}

// sortDue orders by nextExecution ascending, breaking ties by priority
// descending so higher-priority tasks win a dead heat.
func sortDue(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		at, bt := a.dueAt(), b.dueAt()
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.Priority > b.Priority
	})
}

func (s *Scheduler) dispatch(ctx context.Context, t *Task, scheduledFor time.Time) {
	defer t.advance(scheduledFor)
	err := s.runWithRetry(ctx, t, scheduledFor)
	if err != nil && s.logger != nil {
		s.logger.WithError(apperrors.Scheduler(t.Name, err)).Error("scheduled task failed")
	}
}

// runWithRetry executes t.Handler once, retrying up to t.MaxRetries times
// on failure with exponential backoff and full jitter between attempts
// (base t.RetryDelay, doubling per attempt, capped at maxRetryBackoff). It
// records Prometheus outcome metrics for every attempt, and counts the whole
// run, retries included, as one execution in the task's own counters.
func (s *Scheduler) runWithRetry(ctx context.Context, t *Task, scheduledFor time.Time) error {
	var lastErr error
	var lastDur time.Duration
	attempts := t.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			t.recordRetry()
			if delay := backoffDelay(t.RetryDelay, attempt); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					t.recordRun(lastDur, ctx.Err())
					return ctx.Err()
				}
			}
		}

		start := time.Now()
		err := s.runOnce(ctx, t)
		d := time.Since(start)
		lastDur = d

		status := "ok"
		if err != nil {
			status = "error"
		}
		if s.metrics != nil {
			s.metrics.RecordSchedulerExecution(t.Name, status, d)
		}

		if err == nil {
			t.recordRun(d, nil)
			return nil
		}
		lastErr = err
	}
	t.recordRun(lastDur, lastErr)
	return lastErr
}

// backoffDelay returns a jittered exponential backoff delay for the given
// retry attempt (1-indexed: attempt 1 is the first retry). It picks
// uniformly from [0, min(base*2^(attempt-1), maxRetryBackoff)] so that
// concurrently retrying tasks don't all wake up in lockstep.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	upper := base
	for i := 1; i < attempt && upper < maxRetryBackoff; i++ {
		upper *= 2
	}
	if upper > maxRetryBackoff {
		upper = maxRetryBackoff
	}
	return time.Duration(rand.Int63n(int64(upper) + 1))
}

func (s *Scheduler) runOnce(ctx context.Context, t *Task) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	results, err := s.executor.Exec(runCtx, t.Query)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task handler panicked: %v", r)
			}
		}()
		done <- t.Handler(runCtx, results)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		if s.metrics != nil {
			s.metrics.RecordSchedulerTimeout(t.Name)
		}
		return runCtx.Err()
	}
}

// GetMetrics returns a snapshot of every registered task's execution
// counters.
func (s *Scheduler) GetMetrics() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.snapshot()
	}
	return out
}
