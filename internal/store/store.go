// Package store implements the entity/component store: create, add, set,
// save, get, remove, and soft-delete operations over entities and their
// components, with single-transaction multi-write semantics and
// synchronous cache invalidation plus lifecycle event emission on commit.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

// CacheInvalidator is implemented by the cache layer. Invalidation and
// write-back are both best-effort: cache errors never fail a save().
//
// WriteEntity/WriteComponent are called after a commit with the
// just-committed value, for cache policies that want to re-populate
// rather than merely drop (write-through). InvalidateEntity/
// InvalidateComponent are called after a delete, where there is no
// committed value to re-populate with.
type CacheInvalidator interface {
	InvalidateEntity(ctx context.Context, id ecs.EntityID)
	InvalidateComponent(ctx context.Context, componentType string, id ecs.EntityID)
	WriteEntity(ctx context.Context, e ecs.Entity)
	WriteComponent(ctx context.Context, c ecs.ComponentInstance)
}

// HookPublisher is implemented by the entity hook dispatcher. Publish must
// contain its own handler failures; it never returns an error to the store.
type HookPublisher interface {
	Publish(ctx context.Context, event ecs.Event)
}

// Store is the entity/component store.
type Store struct {
	driver    *storage.Driver
	registry  *ecs.Registry
	cache     CacheInvalidator
	hooks     HookPublisher
	sequencer *ecs.Sequencer
	metrics   *metrics.Metrics
}

// New builds a Store. cache and hooks may be nil, in which case
// invalidation and event publication are skipped.
func New(driver *storage.Driver, registry *ecs.Registry, cache CacheInvalidator, hooks HookPublisher, m *metrics.Metrics) *Store {
	return &Store{
		driver:    driver,
		registry:  registry,
		cache:     cache,
		hooks:     hooks,
		sequencer: &ecs.Sequencer{},
		metrics:   m,
	}
}

// Create returns an in-memory Builder for a brand-new entity. Nothing is
// persisted until Save is called.
func (s *Store) Create() *Builder {
	return &Builder{store: s, id: ecs.NewEntityID(), isNew: true, staged: map[string]stagedComponent{}}
}

// Mutate returns a Builder for staging component changes against an
// existing entity.
func (s *Store) Mutate(id ecs.EntityID) *Builder {
	return &Builder{store: s, id: id, isNew: false, staged: map[string]stagedComponent{}}
}

// CreateArchetypeEntity implements ecs.ArchetypeCreator: it stages one Add
// per component type the archetype declares and saves them all through the
// same single-transaction path Builder.Save uses for any other multi-write
// create, failing validation if data is missing or extra for the
// archetype's declared set.
func (s *Store) CreateArchetypeEntity(ctx context.Context, archetype ecs.Archetype, data map[string]ecs.ComponentData) (ecs.Entity, error) {
	if len(data) != len(archetype.Components) {
		return ecs.Entity{}, apperrors.Validation("archetype fill data does not match archetype component set")
	}
	b := s.Create()
	for _, name := range archetype.Components {
		payload, ok := data[name]
		if !ok {
			return ecs.Entity{}, apperrors.Validation("archetype fill missing data for component " + name)
		}
		if _, err := b.Add(name, payload); err != nil {
			return ecs.Entity{}, err
		}
	}
	return b.Save(ctx)
}

// Get returns the active component data for id/componentType, reading
// directly from storage. It does not consult or populate the cache layer.
func (s *Store) Get(ctx context.Context, id ecs.EntityID, componentType string) (ecs.ComponentData, error) {
	ct, ok := s.registry.Get(componentType)
	if !ok {
		return nil, apperrors.Validation("unknown component type " + componentType)
	}

	var row componentRow
	sql := `SELECT id, entity_id, name, data, created_at, updated_at, deleted_at
		FROM "components_` + ct.PartitionName() + `"
		WHERE entity_id = $1 AND name = $2 AND deleted_at IS NULL`
	if err := s.driver.QueryRow(ctx, &row, sql, id.String(), ct.Name); err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			return nil, apperrors.NotFound(componentType, id.String())
		}
		return nil, err
	}

	data, err := decodeComponentData(row.Data)
	if err != nil {
		return nil, apperrors.Storage("decode_component", err)
	}
	return data, nil
}

// Remove soft-deletes the active instance of componentType on id. A
// subsequent Get returns NotFound; History still returns the row.
func (s *Store) Remove(ctx context.Context, id ecs.EntityID, componentType string) error {
	ct, ok := s.registry.Get(componentType)
	if !ok {
		return apperrors.Validation("unknown component type " + componentType)
	}

	err := s.driver.WithTx(ctx, func(tx *storage.Tx) error {
		sql := `UPDATE "components_` + ct.PartitionName() + `" SET deleted_at = now(), updated_at = now()
			WHERE entity_id = $1 AND name = $2 AND deleted_at IS NULL`
		if _, err := tx.Exec(ctx, sql, id.String(), ct.Name); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM entity_components WHERE entity_id = $1 AND component_name = $2`, id.String(), ct.Name)
		return err
	})
	if err != nil {
		return err
	}

	active, err := s.activeComponents(ctx, id)
	if err != nil {
		return err
	}

	s.invalidate(ctx, id, componentType)
	s.publish(ctx, ecs.EventUpdated, id, ecs.Change{Component: componentType, ActiveComponents: active})
	return nil
}

// SoftDelete marks the entity and every active component deleted. Historical
// rows remain queryable via History.
func (s *Store) SoftDelete(ctx context.Context, id ecs.EntityID) error {
	active, err := s.activeComponents(ctx, id)
	if err != nil {
		return err
	}

	err = s.driver.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE entities SET deleted_at = now(), updated_at = now() WHERE id = $1`, id.String()); err != nil {
			return err
		}
		for _, name := range active {
			ct, ok := s.registry.Get(name)
			if !ok {
				continue
			}
			sql := `UPDATE "components_` + ct.PartitionName() + `" SET deleted_at = now(), updated_at = now()
				WHERE entity_id = $1 AND name = $2 AND deleted_at IS NULL`
			if _, err := tx.Exec(ctx, sql, id.String(), ct.Name); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `DELETE FROM entity_components WHERE entity_id = $1`, id.String())
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id, "")
	for _, name := range active {
		s.invalidate(ctx, id, name)
	}
	s.publish(ctx, ecs.EventDeleted, id, ecs.Change{ActiveComponents: nil})
	return nil
}

// History returns every instance ever recorded for id/componentType
// (including soft-deleted rows), oldest first: the audit trail a
// soft-delete-only system implies.
func (s *Store) History(ctx context.Context, id ecs.EntityID, componentType string) ([]ecs.ComponentInstance, error) {
	ct, ok := s.registry.Get(componentType)
	if !ok {
		return nil, apperrors.Validation("unknown component type " + componentType)
	}

	var rows []componentRow
	sql := `SELECT id, entity_id, name, data, created_at, updated_at, deleted_at
		FROM "components_` + ct.PartitionName() + `"
		WHERE entity_id = $1 AND name = $2
		ORDER BY created_at ASC`
	if err := s.driver.Query(ctx, &rows, sql, id.String(), ct.Name); err != nil {
		return nil, err
	}

	out := make([]ecs.ComponentInstance, 0, len(rows))
	for _, r := range rows {
		data, err := decodeComponentData(r.Data)
		if err != nil {
			return nil, apperrors.Storage("decode_component", err)
		}
		cid, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		out = append(out, ecs.ComponentInstance{
			ID:        cid,
			EntityID:  id,
			Name:      r.Name,
			Data:      data,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			DeletedAt: r.DeletedAt,
		})
	}
	return out, nil
}

func (s *Store) activeComponents(ctx context.Context, id ecs.EntityID) ([]string, error) {
	var names []string
	err := s.driver.Query(ctx, &names, `SELECT component_name FROM entity_components WHERE entity_id = $1`, id.String())
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) invalidate(ctx context.Context, id ecs.EntityID, componentType string) {
	if s.cache == nil {
		return
	}
	if componentType == "" {
		s.cache.InvalidateEntity(ctx, id)
		return
	}
	s.cache.InvalidateComponent(ctx, componentType, id)
}

func (s *Store) writeEntity(ctx context.Context, e ecs.Entity) {
	if s.cache == nil {
		return
	}
	s.cache.WriteEntity(ctx, e)
}

func (s *Store) writeComponent(ctx context.Context, c ecs.ComponentInstance) {
	if s.cache == nil {
		return
	}
	s.cache.WriteComponent(ctx, c)
}

func (s *Store) publish(ctx context.Context, kind ecs.EventKind, id ecs.EntityID, change ecs.Change) {
	if s.hooks == nil {
		return
	}
	s.hooks.Publish(ctx, ecs.Event{
		Kind:     kind,
		Entity:   ecs.Entity{ID: id, UpdatedAt: time.Now()},
		Change:   change,
		Sequence: s.sequencer.Next(),
	})
}
