package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/query"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

func TestExecutorHydratesIncludedComponentInOneRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	drv := storage.FromExisting(sqlxDB, nil)

	registry := userRegistry(t)
	require.NoError(t, registry.Register(ecs.ComponentType{
		Name:   "Profile",
		Fields: []ecs.FieldDef{{Name: "bio", Kind: ecs.FieldString}},
	}))

	entityID := ecs.NewEntityID()
	now := time.Now()

	mock.ExpectQuery("SELECT DISTINCT entities.id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at"}).
			AddRow(entityID.String(), now, now, nil))

	componentID := ecs.NewEntityID().String()
	mock.ExpectQuery(`SELECT id, entity_id, name, data, created_at, updated_at, deleted_at`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "name", "data", "created_at", "updated_at", "deleted_at"}).
			AddRow(componentID, entityID.String(), "Profile", []byte(`{"bio":"hi"}`), now, now, nil))

	exec := query.NewExecutor(drv, registry, nil)
	results, err := exec.Exec(context.Background(), query.New().With("User").Include("Profile"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entityID, results[0].Entity.ID)
	require.Contains(t, results[0].Includes, "Profile")
	assert.Equal(t, "hi", results[0].Includes["Profile"].Data["bio"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorTakeZeroShortCircuitsBeforeQueryingStorage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	drv := storage.FromExisting(sqlxDB, nil)

	exec := query.NewExecutor(drv, userRegistry(t), nil)
	results, err := exec.Exec(context.Background(), query.New().With("User").Take(0))
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.NoError(t, mock.ExpectationsWereMet())
}
