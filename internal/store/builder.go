package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

type stageMode int

const (
	stageAdd stageMode = iota
	stageSet
)

type stagedComponent struct {
	mode stageMode
	data ecs.ComponentData
}

// Builder stages component mutations for one entity before a single
// Save() commits them transactionally.
type Builder struct {
	store  *Store
	id     ecs.EntityID
	isNew  bool
	staged map[string]stagedComponent
}

// Add stages a new component instance. Add fails at Save time with
// AlreadyPresent if a non-deleted instance of componentType already exists,
// and immediately if componentType was already staged via Add on this
// Builder.
func (b *Builder) Add(componentType string, data ecs.ComponentData) (*Builder, error) {
	if existing, ok := b.staged[componentType]; ok && existing.mode == stageAdd {
		return nil, apperrors.AlreadyPresent(b.id.String(), componentType)
	}
	b.staged[componentType] = stagedComponent{mode: stageAdd, data: data}
	return b, nil
}

// Set stages an upsert of componentType, overwriting any prior staged
// mutation for the same type on this Builder.
func (b *Builder) Set(componentType string, data ecs.ComponentData) *Builder {
	b.staged[componentType] = stagedComponent{mode: stageSet, data: data}
	return b
}

// ID returns the entity id this builder will persist.
func (b *Builder) ID() ecs.EntityID {
	return b.id
}

// Save persists the entity row and every staged component write in one
// transaction. On success it emits exactly one lifecycle event (created
// for a brand-new entity, updated otherwise) and invalidates the cache for
// every touched component, synchronously, inside the commit handler. On
// failure no event is emitted and no cache entry is touched.
func (b *Builder) Save(ctx context.Context) (ecs.Entity, error) {
	s := b.store

	names := make([]string, 0, len(b.staged))
	for name := range b.staged {
		names = append(names, name)
	}
	sort.Strings(names)

	var entity ecs.Entity
	committed := make(map[string]ecs.ComponentInstance, len(names))
	err := s.driver.WithTx(ctx, func(tx *storage.Tx) error {
		now := time.Now()
		if b.isNew {
			if _, err := tx.Exec(ctx, `INSERT INTO entities (id, created_at, updated_at) VALUES ($1, $2, $2)`, b.id.String(), now); err != nil {
				return err
			}
			entity = ecs.Entity{ID: b.id, CreatedAt: now, UpdatedAt: now}
		} else {
			var row entityRow
			if err := tx.QueryRow(ctx, &row, `UPDATE entities SET updated_at = now() WHERE id = $1
				RETURNING id, created_at, updated_at, deleted_at`, b.id.String()); err != nil {
				return err
			}
			parsed, err := row.toEntity()
			if err != nil {
				return apperrors.Storage("parse_entity", err)
			}
			entity = parsed
		}

		for _, name := range names {
			staged := b.staged[name]
			ct, ok := s.registry.Get(name)
			if !ok {
				return apperrors.Validation("unknown component type " + name)
			}

			if err := ct.Validate(staged.data); err != nil {
				return apperrors.Validation(err.Error())
			}
			data := ct.ApplyDefaults(staged.data)

			if staged.mode == stageAdd {
				var existing string
				lookupErr := tx.QueryRow(ctx, &existing,
					`SELECT component_id::text FROM entity_components WHERE entity_id = $1 AND component_name = $2`,
					b.id.String(), name)
				if lookupErr == nil {
					return apperrors.AlreadyPresent(b.id.String(), name)
				} else if !apperrors.Is(lookupErr, apperrors.CodeNotFound) {
					return lookupErr
				}
			}

			payload, err := json.Marshal(data)
			if err != nil {
				return apperrors.Validation("marshal component data: " + err.Error())
			}

			componentID := uuid.New()
			partition := `"components_` + ct.PartitionName() + `"`
			insertSQL := `INSERT INTO ` + partition + ` (id, entity_id, name, data, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())`
			if _, err := tx.Exec(ctx, insertSQL, componentID, b.id.String(), ct.Name, payload); err != nil {
				return err
			}

			upsertSQL := `INSERT INTO entity_components (entity_id, component_name, component_id) VALUES ($1, $2, $3)
				ON CONFLICT (entity_id, component_name) DO UPDATE SET component_id = EXCLUDED.component_id`
			if _, err := tx.Exec(ctx, upsertSQL, b.id.String(), name, componentID); err != nil {
				return err
			}

			committed[name] = ecs.ComponentInstance{
				ID:        componentID,
				EntityID:  b.id,
				Name:      ct.Name,
				Data:      data,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}

		return nil
	})
	if err != nil {
		return ecs.Entity{}, err
	}

	active, err := s.activeComponents(ctx, b.id)
	if err != nil {
		return entity, err
	}

	for _, name := range names {
		s.writeComponent(ctx, committed[name])
	}
	s.writeEntity(ctx, entity)

	kind := ecs.EventUpdated
	if b.isNew {
		kind = ecs.EventCreated
	}
	s.publish(ctx, kind, b.id, ecs.Change{ActiveComponents: active})

	return entity, nil
}
