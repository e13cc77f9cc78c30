package query

import (
	"fmt"
	"strings"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/ecs"
)

// Plan is a compiled SQL statement ready for execution, plus the component
// names that must be batch-loaded afterward for include().
type Plan struct {
	SQL      string
	Args     []interface{}
	Includes []string
}

// Compiler validates a Builder's clauses against the Component Registry and
// produces a single SQL statement joining the entities table against the
// component's partition table once per with() clause, with that clause's
// filters in the join condition.
type Compiler struct {
	registry *ecs.Registry
}

// NewCompiler builds a Compiler bound to registry.
func NewCompiler(registry *ecs.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Compile validates and translates b into a Plan. Unknown components or
// fields, or an operator invalid for the field's kind, yield a
// QueryCompileError.
func (c *Compiler) Compile(b *Builder) (*Plan, error) {
	var args []interface{}
	argN := 0
	bind := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	var joins []string
	for i, wc := range b.withClauses {
		ct, ok := c.registry.Get(wc.Component)
		if !ok {
			return nil, apperrors.QueryCompile(fmt.Sprintf("unknown component %q", wc.Component))
		}

		var predicates []string
		for _, f := range wc.Filters {
			fd, ok := ct.Field(f.Field)
			if !ok {
				return nil, apperrors.QueryCompile(fmt.Sprintf("unknown field %q on component %q", f.Field, wc.Component))
			}
			pred, err := compileFilter(fd, f, bind)
			if err != nil {
				return nil, err
			}
			predicates = append(predicates, pred)
		}

		alias := fmt.Sprintf("c%d", i)
		partition := quoteIdent("components_" + ct.PartitionName())
		where := fmt.Sprintf("%s.name = %s AND %s.deleted_at IS NULL", alias, bind(ct.Name), alias)
		if len(predicates) > 0 {
			where += " AND " + strings.Join(predicates, " AND ")
		}
		joins = append(joins, fmt.Sprintf(
			"JOIN %s %s ON %s.entity_id = entities.id AND %s",
			partition, alias, alias, where,
		))
	}

	var orderParts []string
	for i, sk := range b.sorts {
		ct, ok := c.registry.Get(sk.Component)
		if !ok {
			return nil, apperrors.QueryCompile(fmt.Sprintf("unknown component %q in sort", sk.Component))
		}
		if _, ok := ct.Field(sk.Field); !ok {
			return nil, apperrors.QueryCompile(fmt.Sprintf("unknown field %q on component %q in sort", sk.Field, sk.Component))
		}
		sortAlias := fmt.Sprintf("sort%d", i)
		partition := quoteIdent("components_" + ct.PartitionName())
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN %s %s ON %s.entity_id = entities.id AND %s.name = %s AND %s.deleted_at IS NULL",
			partition, sortAlias, sortAlias, sortAlias, bind(ct.Name), sortAlias,
		))
		nulls := "NULLS LAST"
		if sk.NullsFirst {
			nulls = "NULLS FIRST"
		}
		dir := "ASC"
		if sk.Dir == Desc {
			dir = "DESC"
		}
		orderParts = append(orderParts, fmt.Sprintf("(%s.data->>'%s') %s %s", sortAlias, sk.Field, dir, nulls))
	}
	orderParts = append(orderParts, "entities.id ASC")

	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT entities.id, entities.created_at, entities.updated_at, entities.deleted_at FROM entities")
	for _, j := range joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	sb.WriteString(" WHERE ")
	if b.includeDeleted {
		sb.WriteString("TRUE")
	} else {
		sb.WriteString("entities.deleted_at IS NULL")
	}
	if archetype, ok := b.Archetype(); ok {
		names := archetype.Sorted()
		placeholders := make([]string, len(names))
		for i, n := range names {
			placeholders[i] = bind(n)
		}
		sb.WriteString(fmt.Sprintf(
			" AND (SELECT COUNT(*) FROM entity_components ec WHERE ec.entity_id = entities.id) = %s",
			bind(len(names)),
		))
		sb.WriteString(fmt.Sprintf(
			" AND NOT EXISTS (SELECT 1 FROM entity_components ec2 WHERE ec2.entity_id = entities.id AND ec2.component_name NOT IN (%s))",
			strings.Join(placeholders, ", "),
		))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orderParts, ", "))

	if b.limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %s", bind(b.limit)))
	}
	if b.offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %s", bind(b.offset)))
	}

	for _, inc := range b.includes {
		if _, ok := c.registry.Get(inc); !ok {
			return nil, apperrors.QueryCompile(fmt.Sprintf("unknown include component %q", inc))
		}
	}

	return &Plan{SQL: sb.String(), Args: args, Includes: append([]string(nil), b.includes...)}, nil
}

func compileFilter(fd ecs.FieldDef, f Filter, bind func(interface{}) string) (string, error) {
	path := fmt.Sprintf("data->>'%s'", f.Field)
	switch f.Op {
	case OpEQ:
		return fmt.Sprintf("%s = %s", path, bind(f.Value)), nil
	case OpNEQ:
		return fmt.Sprintf("%s != %s", path, bind(f.Value)), nil
	case OpLT:
		return fmt.Sprintf("%s < %s", path, bind(f.Value)), nil
	case OpLTE:
		return fmt.Sprintf("%s <= %s", path, bind(f.Value)), nil
	case OpGT:
		return fmt.Sprintf("%s > %s", path, bind(f.Value)), nil
	case OpGTE:
		return fmt.Sprintf("%s >= %s", path, bind(f.Value)), nil
	case OpIN:
		return fmt.Sprintf("%s = ANY(%s)", path, bind(f.Value)), nil
	case OpNotIN:
		return fmt.Sprintf("%s != ALL(%s)", path, bind(f.Value)), nil
	case OpLike:
		return fmt.Sprintf("%s LIKE %s", path, bind(f.Value)), nil
	case OpContains:
		if fd.Kind != ecs.FieldJSON {
			return "", apperrors.QueryCompile(fmt.Sprintf("CONTAINS is only valid for json fields, field %q is %s", f.Field, fd.Kind))
		}
		return fmt.Sprintf("data->'%s' @> %s::jsonb", f.Field, bind(f.Value)), nil
	case OpExists:
		return fmt.Sprintf("data ? '%s'", f.Field), nil
	default:
		return "", apperrors.QueryCompile(fmt.Sprintf("unsupported operator %q", f.Op))
	}
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
