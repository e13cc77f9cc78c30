package ecs

import "fmt"

// ComponentType is the canonical, immutable schema registration for a named
// component: its ordered field list and the partition identifier used by the
// Storage Driver.
type ComponentType struct {
	Name      string
	Fields    []FieldDef
	Partition string // defaults to Name when empty
}

// PartitionName returns the partition identifier, defaulting to the
// component's own name.
func (c ComponentType) PartitionName() string {
	if c.Partition != "" {
		return c.Partition
	}
	return c.Name
}

// Field looks up a field definition by name.
func (c ComponentType) Field(name string) (FieldDef, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Validate checks that data satisfies the component type's field kinds and
// nullability, returning a *ValidationError (via the caller) on mismatch.
// Unknown keys in data are rejected: the schema is the sole source of truth
// for a component's shape.
func (c ComponentType) Validate(data ComponentData) error {
	for _, f := range c.Fields {
		v, present := data[f.Name]
		if !present || v == nil {
			if !f.Nullable && f.Default == nil {
				return fmt.Errorf("field %q is required", f.Name)
			}
			continue
		}
		if err := validateKind(f.Kind, v); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	for k := range data {
		if _, ok := c.Field(k); !ok {
			return fmt.Errorf("unknown field %q for component %q", k, c.Name)
		}
	}
	return nil
}

// ApplyDefaults fills in any missing nullable/defaulted fields and returns a
// new ComponentData ready for persistence.
func (c ComponentType) ApplyDefaults(data ComponentData) ComponentData {
	out := data.Clone()
	for _, f := range c.Fields {
		if _, present := out[f.Name]; !present && f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

func validateKind(kind FieldKind, v interface{}) error {
	switch kind {
	case FieldString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case FieldInt:
		switch v.(type) {
		case int, int32, int64, float64:
		default:
			return fmt.Errorf("expected int, got %T", v)
		}
	case FieldFloat:
		switch v.(type) {
		case float32, float64, int, int64:
		default:
			return fmt.Errorf("expected float, got %T", v)
		}
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case FieldTimestamp:
		switch v.(type) {
		case string:
		default:
			return fmt.Errorf("expected RFC3339 timestamp string, got %T", v)
		}
	case FieldJSON:
		// free-form escape hatch; anything goes.
	default:
		return fmt.Errorf("unknown field kind %q", kind)
	}
	return nil
}
