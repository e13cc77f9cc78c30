package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yaaruu/bunsane-sub005/internal/config"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
)

// Strategy selects the write policy applied on invalidation.
type Strategy string

const (
	WriteInvalidate Strategy = "write-invalidate"
	WriteThrough    Strategy = "write-through"
)

// MultiLevel composes a Local and an optional Remote tier behind a fixed
// key convention (e:{id}, c:{entity_id}:{name}, q:{fingerprint}). Reads
// consult local then remote; misses populate both.
type MultiLevel struct {
	local    *Local
	remote   *Remote
	strategy Strategy
	ttl      config.CacheCategoryConfig
	metrics  *metrics.Metrics

	mu         sync.Mutex
	queryIndex map[string]map[string]struct{} // componentName -> set of query fingerprints
}

// WriteStrategy returns the configured write policy.
func (m *MultiLevel) WriteStrategy() Strategy {
	return m.strategy
}

// New builds a MultiLevel cache. remote may be nil to run local-only.
func New(local *Local, remote *Remote, strategy Strategy, ttl config.CacheCategoryConfig, m *metrics.Metrics) *MultiLevel {
	return &MultiLevel{
		local:      local,
		remote:     remote,
		strategy:   strategy,
		ttl:        ttl,
		metrics:    m,
		queryIndex: make(map[string]map[string]struct{}),
	}
}

func entityKey(id ecs.EntityID) string {
	return "e:" + id.String()
}

func componentKey(id ecs.EntityID, name string) string {
	return "c:" + id.String() + ":" + name
}

func queryKey(fingerprint string) string {
	return "q:" + fingerprint
}

// GetEntity reads entity JSON through local then remote.
func (m *MultiLevel) GetEntity(ctx context.Context, id ecs.EntityID) (ecs.Entity, bool) {
	var e ecs.Entity
	if ok := m.get(ctx, entityKey(id), &e); ok {
		return e, true
	}
	return ecs.Entity{}, false
}

// SetEntity populates both tiers with entity.
func (m *MultiLevel) SetEntity(ctx context.Context, e ecs.Entity) {
	m.set(ctx, entityKey(e.ID), e, m.ttl.TTL)
}

// GetComponent reads a component instance through local then remote.
func (m *MultiLevel) GetComponent(ctx context.Context, id ecs.EntityID, name string) (ecs.ComponentInstance, bool) {
	var c ecs.ComponentInstance
	if ok := m.get(ctx, componentKey(id, name), &c); ok {
		return c, true
	}
	return ecs.ComponentInstance{}, false
}

// SetComponent populates both tiers with a component instance.
func (m *MultiLevel) SetComponent(ctx context.Context, c ecs.ComponentInstance) {
	m.set(ctx, componentKey(c.EntityID, c.Name), c, m.ttl.TTL)
}

// GetQuery reads a cached query result set by fingerprint.
func (m *MultiLevel) GetQuery(ctx context.Context, fingerprint string, dest interface{}) bool {
	return m.get(ctx, queryKey(fingerprint), dest)
}

// SetQuery caches a query result set under fingerprint, recording which
// component names it depends on so a later write can invalidate it.
func (m *MultiLevel) SetQuery(ctx context.Context, fingerprint string, componentNames []string, value interface{}) {
	m.set(ctx, queryKey(fingerprint), value, m.ttl.TTL)

	m.mu.Lock()
	for _, name := range componentNames {
		if m.queryIndex[name] == nil {
			m.queryIndex[name] = make(map[string]struct{})
		}
		m.queryIndex[name][fingerprint] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *MultiLevel) get(ctx context.Context, key string, dest interface{}) bool {
	if v, ok := m.local.Get(key); ok {
		m.recordHit("local")
		return decodeInto(v, dest)
	}
	m.recordMiss("local")

	if m.remote == nil {
		return false
	}
	raw, ok := m.remote.Get(ctx, key)
	if !ok {
		m.recordMiss("remote")
		return false
	}
	m.recordHit("remote")

	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	m.local.Set(key, raw, m.ttl.TTL)
	return true
}

func (m *MultiLevel) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.local.Set(key, raw, ttl)
	if m.remote != nil {
		m.remote.Set(ctx, key, raw, ttl)
	}
}

// InvalidateEntity removes e:{id}; implements store.CacheInvalidator.
func (m *MultiLevel) InvalidateEntity(ctx context.Context, id ecs.EntityID) {
	m.invalidateKey(ctx, entityKey(id))
}

// WriteEntity is called after a committed create/update. Under
// write-invalidate it just drops e:{id} like InvalidateEntity; under
// write-through it re-populates e:{id} from the committed value instead of
// leaving it to the next read to re-fetch.
func (m *MultiLevel) WriteEntity(ctx context.Context, e ecs.Entity) {
	if m.strategy == WriteThrough {
		m.SetEntity(ctx, e)
		return
	}
	m.invalidateKey(ctx, entityKey(e.ID))
}

// WriteComponent is called after a committed create/update of a single
// component. It invalidates dependent query results the same way
// InvalidateComponent does. Under write-invalidate it then drops e:{id} and
// c:{id}:{name}; under write-through it re-populates c:{id}:{name} from the
// committed value and leaves e:{id} to WriteEntity.
func (m *MultiLevel) WriteComponent(ctx context.Context, c ecs.ComponentInstance) {
	m.mu.Lock()
	fingerprints := m.queryIndex[c.Name]
	delete(m.queryIndex, c.Name)
	m.mu.Unlock()
	for fp := range fingerprints {
		m.invalidateKey(ctx, queryKey(fp))
	}

	if m.strategy == WriteThrough {
		m.SetComponent(ctx, c)
		return
	}
	m.invalidateKey(ctx, entityKey(c.EntityID))
	m.invalidateKey(ctx, componentKey(c.EntityID, c.Name))
}

// InvalidateComponent removes e:{id}, c:{id}:{name}, and every q:* whose
// component set contains name. componentType may be empty, in which case
// only the entity key is touched.
func (m *MultiLevel) InvalidateComponent(ctx context.Context, componentType string, id ecs.EntityID) {
	m.invalidateKey(ctx, entityKey(id))
	if componentType == "" {
		return
	}
	m.invalidateKey(ctx, componentKey(id, componentType))

	m.mu.Lock()
	fingerprints := m.queryIndex[componentType]
	delete(m.queryIndex, componentType)
	m.mu.Unlock()

	for fp := range fingerprints {
		m.invalidateKey(ctx, queryKey(fp))
	}
}

func (m *MultiLevel) invalidateKey(ctx context.Context, key string) {
	m.local.Invalidate(key)
	if m.remote != nil {
		m.remote.Del(ctx, key)
	}
}

// Ping returns true only if every configured tier is reachable.
func (m *MultiLevel) Ping(ctx context.Context) bool {
	if m.remote == nil {
		return true
	}
	return m.remote.Ping(ctx) == nil
}

// Stats is a lightweight introspection surface for the metrics endpoint.
type Stats struct {
	LocalEntries int
}

// Stats returns the current cache statistics.
func (m *MultiLevel) Stats() Stats {
	return Stats{LocalEntries: m.local.Len()}
}

func (m *MultiLevel) recordHit(tier string) {
	if m.metrics != nil {
		m.metrics.RecordCacheHit(tier)
	}
}

func (m *MultiLevel) recordMiss(tier string) {
	if m.metrics != nil {
		m.metrics.RecordCacheMiss(tier)
	}
}

func decodeInto(raw interface{}, dest interface{}) bool {
	bytes, ok := raw.([]byte)
	if !ok {
		return false
	}
	return json.Unmarshal(bytes, dest) == nil
}
