// Package lifecycle implements a strictly monotonic application boot phase
// machine with per-phase subscribers: an explicit phase enum gated by a
// condition variable instead of a single ready/not-ready boolean.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
)

// Phase is one stage of the application boot sequence. Phases are ordered
// and transitions may only move forward.
type Phase int

const (
	DBInit Phase = iota
	DBReady
	ComponentsReady
	SystemRegistering
	SystemReady
	AppReady
)

func (p Phase) String() string {
	switch p {
	case DBInit:
		return "DB_INIT"
	case DBReady:
		return "DB_READY"
	case ComponentsReady:
		return "COMPONENTS_READY"
	case SystemRegistering:
		return "SYSTEM_REGISTERING"
	case SystemReady:
		return "SYSTEM_READY"
	case AppReady:
		return "APP_READY"
	default:
		return "UNKNOWN"
	}
}

// Subscriber is invoked exactly once per transition into the phase it
// subscribed to, in registration order. It may call Advance on the
// Coordinator it was given, but never to a phase at or before the one
// that triggered it.
type Subscriber func(c *Coordinator, phase Phase)

// Coordinator tracks the current boot phase and fans out transitions to
// per-phase subscribers.
type Coordinator struct {
	mu          sync.Mutex
	cond        *sync.Cond
	phase       Phase
	subscribers map[Phase][]Subscriber
	advancing   bool
}

// New creates a Coordinator at DBInit.
func New() *Coordinator {
	c := &Coordinator{phase: DBInit, subscribers: make(map[Phase][]Subscriber)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// On registers a subscriber for phase. If the coordinator has already
// reached or passed phase, the subscriber runs immediately (synchronously,
// on the calling goroutine) rather than being silently skipped.
func (c *Coordinator) On(phase Phase, sub Subscriber) {
	c.mu.Lock()
	already := c.phase >= phase
	if !already {
		c.subscribers[phase] = append(c.subscribers[phase], sub)
	}
	c.mu.Unlock()

	if already {
		sub(c, phase)
	}
}

// Advance moves the coordinator to phase, invoking every subscriber
// registered for it in registration order, then broadcasting to any
// WaitForReady/WaitFor callers. Advancing to a phase at or before the
// current one is a fatal programmer error: the phase machine is strictly
// monotonic.
func (c *Coordinator) Advance(phase Phase) {
	c.mu.Lock()
	if phase <= c.phase {
		c.mu.Unlock()
		panic(fmt.Sprintf("lifecycle: cannot regress from %s to %s", c.phase, phase))
	}
	c.phase = phase
	subs := c.subscribers[phase]
	delete(c.subscribers, phase)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(c, phase)
	}

	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitForReady blocks until the coordinator reaches AppReady or ctx is
// cancelled.
func (c *Coordinator) WaitForReady(ctx context.Context) error {
	return c.WaitFor(ctx, AppReady)
}

// WaitFor blocks until the coordinator reaches phase or ctx is cancelled.
func (c *Coordinator) WaitFor(ctx context.Context, phase Phase) error {
	done := make(chan struct{})
	go func() {
		c.mu.Lock()
		for c.phase < phase && ctx.Err() == nil {
			c.cond.Wait()
		}
		c.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Wake the waiting goroutine so it can observe ctx and exit.
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
		return ctx.Err()
	}
}
