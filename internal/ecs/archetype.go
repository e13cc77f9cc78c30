package ecs

import (
	"context"
	"sort"
)

// Archetype declares a canonical, ordered set of component types. Membership
// is set-equality, not subset: an entity with extra components is not a
// member, so hook targeting and grouping stay unambiguous.
type Archetype struct {
	Name       string
	Components []string
}

// set returns the archetype's component names as a lookup set.
func (a Archetype) set() map[string]struct{} {
	out := make(map[string]struct{}, len(a.Components))
	for _, c := range a.Components {
		out[c] = struct{}{}
	}
	return out
}

// Matches reports whether activeComponents (the set of an entity's active
// component names) is exactly equal to the archetype's declared set.
func (a Archetype) Matches(activeComponents []string) bool {
	if len(activeComponents) != len(a.Components) {
		return false
	}
	want := a.set()
	for _, c := range activeComponents {
		if _, ok := want[c]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the archetype's component names in a stable, deterministic
// order — used by the query fingerprint and by Studio-style grouping.
func (a Archetype) Sorted() []string {
	out := append([]string(nil), a.Components...)
	sort.Strings(out)
	return out
}

// ArchetypeCreator is implemented by the entity store. CreateArchetypeEntity
// must construct, in a single transaction, an entity plus one active
// instance per component type declared by archetype.
type ArchetypeCreator interface {
	CreateArchetypeEntity(ctx context.Context, archetype Archetype, data map[string]ComponentData) (Entity, error)
}

// ArchetypeFill pairs an archetype with the per-component data to create an
// entity from, built via Archetype.Fill.
type ArchetypeFill struct {
	archetype Archetype
	data      map[string]ComponentData
}

// Fill stages data for a subsequent CreateEntity call, one entry per
// component type the archetype declares.
func (a Archetype) Fill(data map[string]ComponentData) ArchetypeFill {
	return ArchetypeFill{archetype: a, data: data}
}

// CreateEntity delegates to creator to build the entity and every
// component instance the archetype declares, transactionally.
func (f ArchetypeFill) CreateEntity(ctx context.Context, creator ArchetypeCreator) (Entity, error) {
	return creator.CreateArchetypeEntity(ctx, f.archetype, f.data)
}
