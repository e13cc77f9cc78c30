// Package batch implements a generic coalescing loader that groups
// same-tick key lookups into a single backing call, avoiding the N+1 query
// pattern when the query engine and entity store hydrate included
// components or related entities.
package batch

import (
	"context"
	"sync"
	"time"
)

// FetchFunc resolves a set of distinct keys to their values in one round
// trip. Missing keys may be omitted from the result map.
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// defaultWindow is how long Load coalesces distinct keys before firing the
// batch's FetchFunc. Zero would still coalesce callers that are already
// runnable in the same scheduler tick, but a small positive window catches
// callers a few goroutine switches apart at the cost of that much added
// latency on the first caller.
const defaultWindow = 500 * time.Microsecond

// Loader coalesces Load calls issued within the same dispatch window into
// a single FetchFunc invocation — including calls for different keys, not
// just repeated calls for the same one. Callers either rely on automatic
// microbatching (Load) or use the explicit, request-scoped full-batch path
// (LoadMany), optionally seeded ahead of time via Prime.
type Loader[K comparable, V any] struct {
	fetch  FetchFunc[K, V]
	window time.Duration

	mu      sync.Mutex
	pending map[K][]chan result[V]
	batch   *pendingBatch[K]
	cache   map[K]V
}

// pendingBatch accumulates the distinct keys requested since the last
// dispatch; its timer fires once to flush every key collected so far into
// one FetchFunc call.
type pendingBatch[K comparable] struct {
	keys  []K
	timer *time.Timer
}

type result[V any] struct {
	value V
	err   error
}

// NewLoader constructs a Loader backed by fetch, using the default
// microbatch window.
func NewLoader[K comparable, V any](fetch FetchFunc[K, V]) *Loader[K, V] {
	return NewLoaderWithWindow(fetch, defaultWindow)
}

// NewLoaderWithWindow constructs a Loader whose Load microbatch window is
// window instead of the default.
func NewLoaderWithWindow[K comparable, V any](fetch FetchFunc[K, V], window time.Duration) *Loader[K, V] {
	return &Loader[K, V]{
		fetch:   fetch,
		window:  window,
		pending: make(map[K][]chan result[V]),
		cache:   make(map[K]V),
	}
}

// Prime seeds the loader's cache with an already-known value, short
// circuiting a future Load for that key within this loader's lifetime.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[key] = value
}

// LoadMany resolves all keys in exactly one call to fetch, deduplicating
// repeated keys and reusing any values already Primed. This is the
// explicit, request-scoped batching mode used by the Query Engine to fetch
// every include()d component for an entire result page in one round trip.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) (map[K]V, error) {
	l.mu.Lock()
	out := make(map[K]V, len(keys))
	var missing []K
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if v, ok := l.cache[k]; ok {
			out[k] = v
			continue
		}
		missing = append(missing, k)
	}
	l.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := l.fetch(ctx, missing)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	for k, v := range fetched {
		l.cache[k] = v
		out[k] = v
	}
	l.mu.Unlock()

	return out, nil
}

// Load resolves a single key, coalescing every Load call — for the same
// key or a different one — issued within the loader's microbatch window
// into one FetchFunc call covering the whole window's distinct keys. This
// is the microbatch mode: N goroutines each calling Load for their own key
// within the same tick share one round trip instead of N.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	if v, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return v, nil
	}

	ch := make(chan result[V], 1)
	_, alreadyQueued := l.pending[key]
	l.pending[key] = append(l.pending[key], ch)

	if l.batch == nil {
		l.batch = &pendingBatch[K]{}
		l.batch.timer = time.AfterFunc(l.window, func() { l.dispatchBatch(context.Background()) })
	}
	if !alreadyQueued {
		l.batch.keys = append(l.batch.keys, key)
	}
	l.mu.Unlock()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// dispatchBatch flushes whatever keys accumulated in the current window
// into a single fetch call and fans the results out to every waiter queued
// for any of them.
func (l *Loader[K, V]) dispatchBatch(ctx context.Context) {
	l.mu.Lock()
	b := l.batch
	l.batch = nil
	if b == nil || len(b.keys) == 0 {
		l.mu.Unlock()
		return
	}
	waiters := make(map[K][]chan result[V], len(b.keys))
	for _, k := range b.keys {
		waiters[k] = l.pending[k]
		delete(l.pending, k)
	}
	l.mu.Unlock()

	values, err := l.fetch(ctx, b.keys)

	l.mu.Lock()
	if err == nil {
		for _, k := range b.keys {
			l.cache[k] = values[k]
		}
	}
	l.mu.Unlock()

	for _, k := range b.keys {
		var r result[V]
		if err != nil {
			r = result[V]{err: err}
		} else {
			r = result[V]{value: values[k]}
		}
		for _, ch := range waiters[k] {
			ch <- r
		}
	}
}

// Clear discards the loader's cache and any Primed values, used between
// unrelated query executions that happen to share a Loader instance.
func (l *Loader[K, V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[K]V)
}
