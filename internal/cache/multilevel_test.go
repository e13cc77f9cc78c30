package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/cache"
	"github.com/yaaruu/bunsane-sub005/internal/config"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
)

func newMultiLevel() *cache.MultiLevel {
	return newMultiLevelWithStrategy(cache.WriteInvalidate)
}

func newMultiLevelWithStrategy(strategy cache.Strategy) *cache.MultiLevel {
	local := cache.NewLocal(cache.DefaultLocalConfig())
	return cache.New(local, nil, strategy, config.CacheCategoryConfig{TTL: time.Minute}, nil)
}

func TestSetGetEntityRoundtrip(t *testing.T) {
	m := newMultiLevel()
	id := ecs.NewEntityID()
	e := ecs.Entity{ID: id, CreatedAt: time.Now().UTC()}

	m.SetEntity(context.Background(), e)
	got, ok := m.GetEntity(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)
}

func TestInvalidateComponentRemovesEntityComponentAndQueryKeys(t *testing.T) {
	m := newMultiLevel()
	id := ecs.NewEntityID()

	m.SetEntity(context.Background(), ecs.Entity{ID: id})
	m.SetComponent(context.Background(), ecs.ComponentInstance{EntityID: id, Name: "User", Data: ecs.ComponentData{"age": 1}})
	m.SetQuery(context.Background(), "fp1", []string{"User"}, []string{"result"})

	var dest []string
	require.True(t, m.GetQuery(context.Background(), "fp1", &dest))

	m.InvalidateComponent(context.Background(), "User", id)

	_, ok := m.GetEntity(context.Background(), id)
	assert.False(t, ok)
	_, ok = m.GetComponent(context.Background(), id, "User")
	assert.False(t, ok)
	assert.False(t, m.GetQuery(context.Background(), "fp1", &dest))
}

func TestPingWithNoRemoteIsAlwaysHealthy(t *testing.T) {
	m := newMultiLevel()
	assert.True(t, m.Ping(context.Background()))
}

func TestWriteInvalidateDropsEntityAndComponentOnCommit(t *testing.T) {
	m := newMultiLevelWithStrategy(cache.WriteInvalidate)
	id := ecs.NewEntityID()
	m.SetEntity(context.Background(), ecs.Entity{ID: id})
	m.SetComponent(context.Background(), ecs.ComponentInstance{EntityID: id, Name: "User", Data: ecs.ComponentData{"age": 1}})

	m.WriteEntity(context.Background(), ecs.Entity{ID: id})
	m.WriteComponent(context.Background(), ecs.ComponentInstance{EntityID: id, Name: "User", Data: ecs.ComponentData{"age": 2}})

	_, ok := m.GetEntity(context.Background(), id)
	assert.False(t, ok)
	_, ok = m.GetComponent(context.Background(), id, "User")
	assert.False(t, ok)
}

func TestWriteThroughRepopulatesEntityAndComponentFromCommittedValue(t *testing.T) {
	m := newMultiLevelWithStrategy(cache.WriteThrough)
	id := ecs.NewEntityID()

	m.WriteEntity(context.Background(), ecs.Entity{ID: id})
	m.WriteComponent(context.Background(), ecs.ComponentInstance{EntityID: id, Name: "User", Data: ecs.ComponentData{"age": 30}})

	gotEntity, ok := m.GetEntity(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, id, gotEntity.ID)

	gotComponent, ok := m.GetComponent(context.Background(), id, "User")
	require.True(t, ok)
	assert.EqualValues(t, 30, gotComponent.Data["age"])
}

func TestWriteThroughDropsDependentQueryFingerprints(t *testing.T) {
	m := newMultiLevelWithStrategy(cache.WriteThrough)
	id := ecs.NewEntityID()
	m.SetQuery(context.Background(), "fp1", []string{"User"}, []string{"result"})

	var dest []string
	require.True(t, m.GetQuery(context.Background(), "fp1", &dest))

	m.WriteComponent(context.Background(), ecs.ComponentInstance{EntityID: id, Name: "User", Data: ecs.ComponentData{"age": 1}})

	assert.False(t, m.GetQuery(context.Background(), "fp1", &dest))
}
