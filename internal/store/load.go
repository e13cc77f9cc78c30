package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/batch"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
)

// Loaded pairs an entity with any of the requested component types that
// were active on it.
type Loaded struct {
	Entity     ecs.Entity
	Components map[string]ecs.ComponentInstance
}

// LoadMultiple fetches every id in ids, preserving the requested order and
// omitting ids with no matching (or soft-deleted) entity row, then hydrates
// componentTypes for the returned entities. Regardless of len(ids), exactly
// one SQL statement targets the entities table and exactly one targets each
// distinct component-name partition in componentTypes — the same N+1
// avoidance the Query Engine's Batch Loader gives Executor.Exec.
func (s *Store) LoadMultiple(ctx context.Context, ids []ecs.EntityID, componentTypes []string) ([]Loaded, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	var rows []entityRow
	sql := `SELECT id, created_at, updated_at, deleted_at FROM entities WHERE id = ANY($1) AND deleted_at IS NULL`
	if err := s.driver.Query(ctx, &rows, sql, pq.Array(strIDs)); err != nil {
		return nil, err
	}

	byID := make(map[ecs.EntityID]ecs.Entity, len(rows))
	for _, r := range rows {
		e, err := r.toEntity()
		if err != nil {
			continue
		}
		byID[e.ID] = e
	}

	out := make([]Loaded, 0, len(ids))
	present := make([]ecs.EntityID, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, Loaded{Entity: e, Components: make(map[string]ecs.ComponentInstance)})
			present = append(present, id)
		}
	}

	for _, componentType := range componentTypes {
		fetched, err := s.loadComponentMany(ctx, componentType, present)
		if err != nil {
			return nil, err
		}
		for i := range out {
			if inst, ok := fetched[out[i].Entity.ID]; ok {
				out[i].Components[componentType] = inst
			}
		}
	}

	return out, nil
}

func (s *Store) loadComponentMany(ctx context.Context, componentType string, ids []ecs.EntityID) (map[ecs.EntityID]ecs.ComponentInstance, error) {
	ct, ok := s.registry.Get(componentType)
	if !ok {
		return nil, apperrors.Validation("unknown component type " + componentType)
	}

	fetch := func(ctx context.Context, keys []ecs.EntityID) (map[ecs.EntityID]ecs.ComponentInstance, error) {
		strIDs := make([]string, len(keys))
		for i, k := range keys {
			strIDs[i] = k.String()
		}

		var rows []componentRow
		sql := `SELECT id, entity_id, name, data, created_at, updated_at, deleted_at
			FROM "components_` + ct.PartitionName() + `"
			WHERE entity_id = ANY($1) AND name = $2 AND deleted_at IS NULL`
		if err := s.driver.Query(ctx, &rows, sql, pq.Array(strIDs), ct.Name); err != nil {
			return nil, err
		}

		out := make(map[ecs.EntityID]ecs.ComponentInstance, len(rows))
		for _, r := range rows {
			eid, err := ecs.ParseEntityID(r.EntityID)
			if err != nil {
				continue
			}
			data, err := decodeComponentData(r.Data)
			if err != nil {
				return nil, apperrors.Storage("decode_component", err)
			}
			cid, err := uuid.Parse(r.ID)
			if err != nil {
				continue
			}
			out[eid] = ecs.ComponentInstance{
				ID:        cid,
				EntityID:  eid,
				Name:      r.Name,
				Data:      data,
				CreatedAt: r.CreatedAt,
				UpdatedAt: r.UpdatedAt,
				DeletedAt: r.DeletedAt,
			}
		}
		return out, nil
	}

	loader := batch.NewLoader(fetch)
	return loader.LoadMany(ctx, ids)
}
