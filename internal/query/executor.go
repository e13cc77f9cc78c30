package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yaaruu/bunsane-sub005/internal/batch"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/obs/metrics"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

// Result pairs a matched entity with any components requested via
// Builder.Include, hydrated without per-entity follow-up queries.
type Result struct {
	Entity   ecs.Entity
	Includes map[string]ecs.ComponentInstance
}

// Executor compiles and runs Builders against a storage.Driver, using one
// Batch Loader invocation per include()d component to hydrate the whole
// result page in a single round trip.
type Executor struct {
	driver   *storage.Driver
	compiler *Compiler
	registry *ecs.Registry
	metrics  *metrics.Metrics
}

// NewExecutor builds an Executor bound to driver and registry.
func NewExecutor(driver *storage.Driver, registry *ecs.Registry, m *metrics.Metrics) *Executor {
	return &Executor{
		driver:   driver,
		compiler: NewCompiler(registry),
		registry: registry,
		metrics:  m,
	}
}

type entityRow struct {
	ID        string     `db:"id"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// Exec compiles b and runs it, hydrating every include()d component for
// the returned page in one query per component.
func (e *Executor) Exec(ctx context.Context, b *Builder) ([]Result, error) {
	start := time.Now()
	if b.ZeroLimit() {
		e.record("ok", start)
		return nil, nil
	}
	plan, err := e.compiler.Compile(b)
	if err != nil {
		e.record("error", start)
		return nil, err
	}

	var rows []entityRow
	if err := e.driver.Query(ctx, &rows, plan.SQL, plan.Args...); err != nil {
		e.record("error", start)
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	ids := make([]ecs.EntityID, 0, len(rows))
	for _, r := range rows {
		id, err := ecs.ParseEntityID(r.ID)
		if err != nil {
			e.record("error", start)
			return nil, err
		}
		ids = append(ids, id)
		results = append(results, Result{
			Entity: ecs.Entity{
				ID:        id,
				CreatedAt: r.CreatedAt,
				UpdatedAt: r.UpdatedAt,
				DeletedAt: r.DeletedAt,
			},
			Includes: make(map[string]ecs.ComponentInstance),
		})
	}

	for _, componentName := range plan.Includes {
		fetched, err := e.fetchComponent(ctx, componentName, ids)
		if err != nil {
			e.record("error", start)
			return nil, err
		}
		for i := range results {
			if inst, ok := fetched[results[i].Entity.ID]; ok {
				results[i].Includes[componentName] = inst
			}
		}
	}

	e.record("ok", start)
	return results, nil
}

type componentRow struct {
	ID        string     `db:"id"`
	EntityID  string     `db:"entity_id"`
	Name      string     `db:"name"`
	Data      []byte     `db:"data"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// fetchComponent loads the active instance of componentName for every id
// in one query, via a request-scoped Batch Loader.
func (e *Executor) fetchComponent(ctx context.Context, componentName string, ids []ecs.EntityID) (map[ecs.EntityID]ecs.ComponentInstance, error) {
	ct, ok := e.registry.Get(componentName)
	if !ok {
		return nil, nil
	}

	fetch := func(ctx context.Context, keys []ecs.EntityID) (map[ecs.EntityID]ecs.ComponentInstance, error) {
		strIDs := make([]string, len(keys))
		for i, k := range keys {
			strIDs[i] = k.String()
		}

		partition := "components_" + ct.PartitionName()
		sql := `SELECT id, entity_id, name, data, created_at, updated_at, deleted_at
			FROM "` + partition + `"
			WHERE entity_id = ANY($1) AND name = $2 AND deleted_at IS NULL`

		var rows []componentRow
		if err := e.driver.Query(ctx, &rows, sql, pq.Array(strIDs), ct.Name); err != nil {
			return nil, err
		}

		out := make(map[ecs.EntityID]ecs.ComponentInstance, len(rows))
		for _, r := range rows {
			eid, err := ecs.ParseEntityID(r.EntityID)
			if err != nil {
				continue
			}
			var data ecs.ComponentData
			if err := json.Unmarshal(r.Data, &data); err != nil {
				return nil, err
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

func (e *Executor) record(status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordQuery("query_engine", status, time.Since(start))
}
