package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/store"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

func newLoadTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	drv := storage.FromExisting(sqlx.NewDb(db, "postgres"), nil)

	registry := ecs.NewRegistry()
	require.NoError(t, registry.Register(ecs.ComponentType{
		Name:   "User",
		Fields: []ecs.FieldDef{{Name: "age", Kind: ecs.FieldInt}},
	}))
	require.NoError(t, registry.Register(ecs.ComponentType{
		Name:   "Profile",
		Fields: []ecs.FieldDef{{Name: "displayName", Kind: ecs.FieldString}},
	}))

	s := store.New(drv, registry, nil, nil, nil)
	return s, mock
}

func TestLoadMultipleReturnsEmptyForNoIDs(t *testing.T) {
	s, _ := newLoadTestStore(t)
	out, err := s.LoadMultiple(context.Background(), nil, []string{"User"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLoadMultiplePreservesOrderAndOmitsAbsentIDs(t *testing.T) {
	s, mock := newLoadTestStore(t)

	a := ecs.NewEntityID()
	b := ecs.NewEntityID()
	missing := ecs.NewEntityID()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, created_at, updated_at, deleted_at FROM entities`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at"}).
			AddRow(b.String(), now, now, nil).
			AddRow(a.String(), now, now, nil))

	mock.ExpectQuery(`FROM "components_User"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "name", "data", "created_at", "updated_at", "deleted_at"}))

	out, err := s.LoadMultiple(context.Background(), []ecs.EntityID{a, missing, b}, []string{"User"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, a, out[0].Entity.ID)
	assert.Equal(t, b, out[1].Entity.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMultipleIssuesExactlyOneQueryPerPartition(t *testing.T) {
	s, mock := newLoadTestStore(t)

	a := ecs.NewEntityID()
	now := time.Now()

	mock.ExpectQuery(`SELECT id, created_at, updated_at, deleted_at FROM entities`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at"}).
			AddRow(a.String(), now, now, nil))

	componentID := ecs.NewEntityID()
	mock.ExpectQuery(`FROM "components_User"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "name", "data", "created_at", "updated_at", "deleted_at"}).
			AddRow(componentID.String(), a.String(), "User", []byte(`{"age": 30}`), now, now, nil))
	mock.ExpectQuery(`FROM "components_Profile"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entity_id", "name", "data", "created_at", "updated_at", "deleted_at"}))

	out, err := s.LoadMultiple(context.Background(), []ecs.EntityID{a}, []string{"User", "Profile"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Contains(t, out[0].Components, "User")
	assert.Equal(t, ecs.ComponentData{"age": float64(30)}, out[0].Components["User"].Data)
	assert.NotContains(t, out[0].Components, "Profile")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMultipleRejectsUnknownComponentType(t *testing.T) {
	s, mock := newLoadTestStore(t)

	a := ecs.NewEntityID()
	now := time.Now()
	mock.ExpectQuery(`SELECT id, created_at, updated_at, deleted_at FROM entities`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at"}).
			AddRow(a.String(), now, now, nil))

	_, err := s.LoadMultiple(context.Background(), []ecs.EntityID{a}, []string{"DoesNotExist"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}
