package store_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
	"github.com/yaaruu/bunsane-sub005/internal/store"
	"github.com/yaaruu/bunsane-sub005/internal/storage"
)

type recordingCache struct {
	invalidatedEntities   []ecs.EntityID
	invalidatedComponents []string
	writtenEntities       []ecs.Entity
	writtenComponents     []ecs.ComponentInstance
}

func (c *recordingCache) InvalidateEntity(ctx context.Context, id ecs.EntityID) {
	c.invalidatedEntities = append(c.invalidatedEntities, id)
}

func (c *recordingCache) InvalidateComponent(ctx context.Context, componentType string, id ecs.EntityID) {
	c.invalidatedComponents = append(c.invalidatedComponents, componentType)
}

func (c *recordingCache) WriteEntity(ctx context.Context, e ecs.Entity) {
	c.writtenEntities = append(c.writtenEntities, e)
}

func (c *recordingCache) WriteComponent(ctx context.Context, comp ecs.ComponentInstance) {
	c.writtenComponents = append(c.writtenComponents, comp)
}

type recordingHooks struct {
	events []ecs.Event
}

func (h *recordingHooks) Publish(ctx context.Context, event ecs.Event) {
	h.events = append(h.events, event)
}

func newTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, *recordingCache, *recordingHooks) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	drv := storage.FromExisting(sqlxDB, nil)

	registry := ecs.NewRegistry()
	require.NoError(t, registry.Register(ecs.ComponentType{
		Name:   "User",
		Fields: []ecs.FieldDef{{Name: "age", Kind: ecs.FieldInt}},
	}))
	require.NoError(t, registry.Register(ecs.ComponentType{
		Name:   "Profile",
		Fields: []ecs.FieldDef{{Name: "displayName", Kind: ecs.FieldString}},
	}))

	cache := &recordingCache{}
	hooks := &recordingHooks{}
	s := store.New(drv, registry, cache, hooks, nil)
	return s, mock, cache, hooks
}

func TestCreateAddSaveEmitsCreatedEvent(t *testing.T) {
	s, mock, cache, hooks := newTestStore(t)

	b, err := s.Create().Add("User", ecs.ComponentData{"age": 30})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT component_id::text FROM entity_components").
		WillReturnRows(sqlmock.NewRows([]string{"component_id"}))
	mock.ExpectExec(`INSERT INTO "components_User"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entity_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT component_name FROM entity_components").
		WillReturnRows(sqlmock.NewRows([]string{"component_name"}).AddRow("User"))

	_, err = b.Save(context.Background())
	require.NoError(t, err)

	require.Len(t, hooks.events, 1)
	assert.Equal(t, ecs.EventCreated, hooks.events[0].Kind)
	require.Len(t, cache.writtenComponents, 1)
	assert.Equal(t, "User", cache.writtenComponents[0].Name)
	require.Len(t, cache.writtenEntities, 1)
}

func TestArchetypeFillCreateEntityWritesEveryDeclaredComponentInOneTransaction(t *testing.T) {
	s, mock, _, hooks := newTestStore(t)

	archetype := ecs.Archetype{Name: "Account", Components: []string{"Profile", "User"}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entities").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT component_id::text FROM entity_components").
		WillReturnRows(sqlmock.NewRows([]string{"component_id"}))
	mock.ExpectExec(`INSERT INTO "components_Profile"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entity_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT component_id::text FROM entity_components").
		WillReturnRows(sqlmock.NewRows([]string{"component_id"}))
	mock.ExpectExec(`INSERT INTO "components_User"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entity_components").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT component_name FROM entity_components").
		WillReturnRows(sqlmock.NewRows([]string{"component_name"}).AddRow("Profile").AddRow("User"))

	entity, err := archetype.Fill(map[string]ecs.ComponentData{
		"Profile": {"displayName": "ada"},
		"User":    {"age": 30},
	}).CreateEntity(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, entity.ID.IsZero())
	require.Len(t, hooks.events, 1)
	assert.Equal(t, ecs.EventCreated, hooks.events[0].Kind)
}

func TestArchetypeFillCreateEntityRejectsIncompleteData(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	archetype := ecs.Archetype{Name: "Account", Components: []string{"Profile", "User"}}

	_, err := archetype.Fill(map[string]ecs.ComponentData{
		"Profile": {"displayName": "ada"},
	}).CreateEntity(context.Background(), s)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestAddFailsWhenAlreadyStagedInBuilder(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	b := s.Create()
	_, err := b.Add("User", ecs.ComponentData{"age": 1})
	require.NoError(t, err)

	_, err = b.Add("User", ecs.ComponentData{"age": 2})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeAlreadyPresent))
}
