// Package ecs defines the core entity-component-system vocabulary: entity
// identity, component type registration, and archetype membership. It holds
// no persistence logic of its own; internal/storage and internal/store build
// on top of these types.
package ecs

import (
	"time"

	"github.com/google/uuid"
)

// EntityID is a stable, opaque 128-bit entity identifier.
type EntityID uuid.UUID

// NewEntityID allocates a fresh random entity identifier.
func NewEntityID() EntityID {
	return EntityID(uuid.New())
}

// String renders the canonical dashed representation.
func (id EntityID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value (never a valid allocated id).
func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

// ParseEntityID parses the canonical dashed representation produced by String.
func ParseEntityID(s string) (EntityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EntityID{}, err
	}
	return EntityID(u), nil
}

// Entity is an identity-only record: it carries no data of its own, only
// lifecycle timestamps.
type Entity struct {
	ID        EntityID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted reports whether the entity has been soft-deleted.
func (e Entity) IsDeleted() bool {
	return e.DeletedAt != nil
}

// FieldKind enumerates the primitive kinds a component field may hold.
type FieldKind string

const (
	FieldString    FieldKind = "string"
	FieldInt       FieldKind = "int"
	FieldFloat     FieldKind = "float"
	FieldBool      FieldKind = "bool"
	FieldTimestamp FieldKind = "timestamp"
	FieldJSON      FieldKind = "json"
)

// FieldDef describes a single field of a component type's schema.
type FieldDef struct {
	Name     string
	Kind     FieldKind
	Default  interface{}
	Nullable bool
}

// ComponentData is the free-form payload of a component instance, keyed by
// field name. It is validated against the owning ComponentType's field list
// before being persisted.
type ComponentData map[string]interface{}

// Clone returns a shallow copy safe for independent mutation of top-level keys.
func (d ComponentData) Clone() ComponentData {
	out := make(ComponentData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ComponentInstance is an entity-scoped typed record.
type ComponentInstance struct {
	ID        uuid.UUID
	EntityID  EntityID
	Name      string
	Data      ComponentData
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted reports whether this component instance has been soft-deleted.
func (c ComponentInstance) IsDeleted() bool {
	return c.DeletedAt != nil
}
