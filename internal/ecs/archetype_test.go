package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yaaruu/bunsane-sub005/internal/ecs"
)

func TestArchetypeMatchesSetEqual(t *testing.T) {
	a := ecs.Archetype{Name: "TaggedUser", Components: []string{"UserTag", "Name", "Email"}}

	assert.True(t, a.Matches([]string{"UserTag", "Name", "Email"}))
	assert.True(t, a.Matches([]string{"Email", "UserTag", "Name"}), "order must not matter")
	assert.False(t, a.Matches([]string{"UserTag", "Name", "Email", "Address"}), "extra component breaks membership")
	assert.False(t, a.Matches([]string{"UserTag", "Name"}), "missing component breaks membership")
}

func TestRegistrySealPreventsRegistration(t *testing.T) {
	r := ecs.NewRegistry()
	require := func(err error) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require(r.Register(ecs.ComponentType{Name: "User", Fields: []ecs.FieldDef{fieldDef()}}))
	r.Seal()

	err := r.Register(ecs.ComponentType{Name: "Other"})
	assert.Error(t, err)

	ct, ok := r.Get("User")
	assert.True(t, ok)
	assert.Equal(t, "User", ct.Name)
}

func fieldDef() ecs.FieldDef {
	return ecs.FieldDef{Name: "age", Kind: ecs.FieldInt, Nullable: true}
}
