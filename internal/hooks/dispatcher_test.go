package hooks_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/hooks"
)

func TestPublishRunsHooksInPriorityOrder(t *testing.T) {
	d := hooks.NewDispatcher(nil, nil)
	var order []string
	var mu sync.Mutex
	record := func(name string) hooks.Handler {
		return func(ctx context.Context, event ecs.Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	d.Register(hooks.Hook{Name: "low", Kind: ecs.EventCreated, Priority: 1, Handler: record("low")})
	d.Register(hooks.Hook{Name: "high", Kind: ecs.EventCreated, Priority: 10, Handler: record("high")})
	d.Register(hooks.Hook{Name: "mid", Kind: ecs.EventCreated, Priority: 5, Handler: record("mid")})

	d.Publish(context.Background(), ecs.Event{Kind: ecs.EventCreated})

	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestPublishFiltersByPredicate(t *testing.T) {
	d := hooks.NewDispatcher(nil, nil)
	var ran bool
	d.Register(hooks.Hook{
		Name:      "tagged-only",
		Kind:      ecs.EventUpdated,
		Predicate: hooks.Predicate{IncludeComponents: []string{"Tag"}},
		Handler:   func(ctx context.Context, event ecs.Event) error { ran = true; return nil },
	})

	d.Publish(context.Background(), ecs.Event{Kind: ecs.EventUpdated, Change: ecs.Change{ActiveComponents: []string{"Other"}}})
	assert.False(t, ran)

	d.Publish(context.Background(), ecs.Event{Kind: ecs.EventUpdated, Change: ecs.Change{ActiveComponents: []string{"Tag", "Other"}}})
	assert.True(t, ran)
}

func TestPublishContainsHandlerError(t *testing.T) {
	d := hooks.NewDispatcher(nil, nil)
	var secondRan bool
	d.Register(hooks.Hook{Name: "failing", Kind: ecs.EventCreated, Priority: 2,
		Handler: func(ctx context.Context, event ecs.Event) error { return errors.New("boom") }})
	d.Register(hooks.Hook{Name: "second", Kind: ecs.EventCreated, Priority: 1,
		Handler: func(ctx context.Context, event ecs.Event) error { secondRan = true; return nil }})

	assert.NotPanics(t, func() {
		d.Publish(context.Background(), ecs.Event{Kind: ecs.EventCreated})
	})
	assert.True(t, secondRan)
}

func TestPublishJoinsAsyncHooksBeforeReturning(t *testing.T) {
	d := hooks.NewDispatcher(nil, nil)
	var done bool
	d.Register(hooks.Hook{
		Name: "async", Kind: ecs.EventCreated, Async: true,
		Handler: func(ctx context.Context, event ecs.Event) error {
			time.Sleep(10 * time.Millisecond)
			done = true
			return nil
		},
	})

	d.Publish(context.Background(), ecs.Event{Kind: ecs.EventCreated})
	assert.True(t, done)
}

func TestDispatchBatchMatchesPublishPerEvent(t *testing.T) {
	d := hooks.NewDispatcher(nil, nil)
	var calls []string
	var mu sync.Mutex
	d.Register(hooks.Hook{
		Name: "tagged", Kind: ecs.EventUpdated,
		Predicate: hooks.Predicate{IncludeComponents: []string{"Tag"}},
		Handler: func(ctx context.Context, event ecs.Event) error {
			mu.Lock()
			calls = append(calls, event.Entity.ID.String())
			mu.Unlock()
			return nil
		},
	})

	e1 := ecs.Event{Kind: ecs.EventUpdated, Entity: ecs.Entity{ID: ecs.NewEntityID()}, Change: ecs.Change{ActiveComponents: []string{"Tag"}}}
	e2 := ecs.Event{Kind: ecs.EventUpdated, Entity: ecs.Entity{ID: ecs.NewEntityID()}, Change: ecs.Change{ActiveComponents: []string{"Other"}}}

	d.DispatchBatch(context.Background(), []ecs.Event{e1, e2})

	assert.Equal(t, []string{e1.Entity.ID.String()}, calls)
}
