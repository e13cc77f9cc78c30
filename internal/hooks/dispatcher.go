// Package hooks implements the Entity Hook Dispatcher: a priority-ordered,
// predicate-filtered fan-out of lifecycle events with sync/async handling.
// A failing hook is wrapped as an apperrors.Hook error, logged through
// logrus, and never propagated back to the mutation that triggered it.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/obs/logging"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
)

// Handler processes one matched event. An error is caught and counted by
// the dispatcher; it never escapes to the caller of Publish/DispatchBatch.
type Handler func(ctx context.Context, event ecs.Event) error

// Hook is a registered handler with its dispatch metadata.
type Hook struct {
	Name      string
	Kind      ecs.EventKind
	Predicate Predicate
	Priority  int
	Async     bool
	Timeout   time.Duration
	Handler   Handler

	seq int
}

// Dispatcher holds the registration table and fans events out to matching
// hooks in priority order.
type Dispatcher struct {
	mu      sync.RWMutex
	hooks   []*Hook
	nextSeq int
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher(logger *logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{logger: logger, metrics: m}
}

// Register adds a hook to the table. Ties in Priority are broken by
// registration order.
func (d *Dispatcher) Register(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h.seq = d.nextSeq
	d.nextSeq++
	d.hooks = append(d.hooks, &h)
}

// matching returns the hooks registered for kind whose predicate matches
// active, sorted by priority descending then registration order ascending.
func (d *Dispatcher) matching(kind ecs.EventKind, active []string) []*Hook {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Hook
	for _, h := range d.hooks {
		if h.Kind != kind {
			continue
		}
		if h.Predicate.Matches(active) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Publish is the single-event dispatch path: it evaluates the predicate
// once per registered hook and runs matches in priority order. Async hooks
// are started without blocking the next hook's dispatch, but every async
// hook is joined before Publish returns.
func (d *Dispatcher) Publish(ctx context.Context, event ecs.Event) {
	matched := d.matching(event.Kind, event.Change.ActiveComponents)

	var wg sync.WaitGroup
	for _, h := range matched {
		h := h
		if h.Async {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.run(ctx, h, event)
			}()
			continue
		}
		d.run(ctx, h, event)
	}
	wg.Wait()
}

// DispatchBatch evaluates the registered hooks against each event in turn
// and runs the matches in the same priority order Publish would produce for
// that event individually. Events are not grouped by predicate; async hooks
// from every event are joined once, before DispatchBatch returns.
func (d *Dispatcher) DispatchBatch(ctx context.Context, events []ecs.Event) {
	var wg sync.WaitGroup
	for _, event := range events {
		matched := d.matching(event.Kind, event.Change.ActiveComponents)
		for _, h := range matched {
			h, event := h, event
			if h.Async {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d.run(ctx, h, event)
				}()
				continue
			}
			d.run(ctx, h, event)
		}
	}
	wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, h *Hook, event ecs.Event) {
	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if h.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	err := d.invoke(runCtx, h, event)
	status := "ok"
	if err != nil {
		status = "error"
		wrapped := apperrors.Hook(h.Name, err)
		if d.logger != nil {
			d.logger.WithError(wrapped).Error("hook handler failed")
		}
	}
	if d.metrics != nil {
		d.metrics.RecordHookDispatch(h.Name, status, time.Since(start))
	}
}

// invoke recovers a panicking handler and folds a context deadline into a
// failure, so neither ever escapes to the dispatcher's caller.
func (d *Dispatcher) invoke(ctx context.Context, h *Hook, event ecs.Event) (err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- apperrors.Hook(h.Name, errRecovered(r))
			}
		}()
		done <- h.Handler(ctx, event)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return "hook panicked" }

func errRecovered(v interface{}) error {
	if err, ok := v.(error); ok {
		return err
	}
	return panicError{v: v}
}
