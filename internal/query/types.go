// Package query implements the query engine: a typed builder, a
// compiler targeting per-component JSON partitions, and an executor that
// hydrates include()d components through the Batch Loader instead of
// issuing per-entity follow-up queries.
package query

// Op is a filter comparison operator.
type Op string

const (
	OpEQ       Op = "EQ"
	OpNEQ      Op = "NEQ"
	OpLT       Op = "LT"
	OpLTE      Op = "LTE"
	OpGT       Op = "GT"
	OpGTE      Op = "GTE"
	OpIN       Op = "IN"
	OpNotIN    Op = "NOT_IN"
	OpLike     Op = "LIKE"
	OpContains Op = "CONTAINS"
	OpExists   Op = "EXISTS"
)

// Dir is a sort direction.
type Dir string

const (
	Asc  Dir = "ASC"
	Desc Dir = "DESC"
)

// Filter is a single (field, op, value) predicate evaluated against a
// component instance's JSON data.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// WithClause requires the entity to have a non-deleted instance of
// Component whose data satisfies every Filter.
type WithClause struct {
	Component string
	Filters   []Filter
}

// SortKey orders results by a field within a component's data. Multiple
// SortKeys break ties in declaration order; entity.id is always the final
// implicit tie-breaker.
type SortKey struct {
	Component  string
	Field      string
	Dir        Dir
	NullsFirst bool
}
