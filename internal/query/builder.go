package query

import "github.com/yaaruu/bunsane-sub005/internal/ecs"

// Builder accumulates component predicates and sort/paginate clauses
// before being handed to the Compiler. Zero value is a valid empty query
// ("with nothing") that matches all non-deleted entities.
type Builder struct {
	withClauses    []WithClause
	sorts          []SortKey
	limit          int
	limitSet       bool
	offset         int
	includes       []string
	includeDeleted bool
	archetype      *ecs.Archetype
}

// New starts an empty query builder.
func New() *Builder {
	return &Builder{}
}

// With requires the entity to carry componentType satisfying filters.
// Multiple With calls are conjunctive.
func (b *Builder) With(componentType string, filters ...Filter) *Builder {
	b.withClauses = append(b.withClauses, WithClause{Component: componentType, Filters: filters})
	return b
}

// SortBy appends one sort key; later SortBy calls break ties left by
// earlier ones.
func (b *Builder) SortBy(componentType, field string, dir Dir, nullsFirst bool) *Builder {
	b.sorts = append(b.sorts, SortKey{Component: componentType, Field: field, Dir: dir, NullsFirst: nullsFirst})
	return b
}

// OrderBy replaces the sort key list wholesale.
func (b *Builder) OrderBy(keys []SortKey) *Builder {
	b.sorts = append([]SortKey(nil), keys...)
	return b
}

// Take sets the result page size. Take(0) is a valid, deliberate "return
// nothing" page size, distinct from never calling Take at all (which means
// unlimited) — ZeroLimit reports that distinction to the Executor.
func (b *Builder) Take(n int) *Builder {
	b.limit = n
	b.limitSet = true
	return b
}

// ZeroLimit reports whether Take(0) was called explicitly.
func (b *Builder) ZeroLimit() bool {
	return b.limitSet && b.limit == 0
}

// Offset sets the number of leading results to skip.
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Include pre-fetches componentType for each result entity via the Batch
// Loader, avoiding per-entity follow-up queries.
func (b *Builder) Include(componentType string) *Builder {
	b.includes = append(b.includes, componentType)
	return b
}

// IncludeDeleted allows soft-deleted entities into the result set.
func (b *Builder) IncludeDeleted() *Builder {
	b.includeDeleted = true
	return b
}

// WithArchetype restricts the result set to entities whose active component
// set is exactly equal to archetype's declared set (Archetype.Matches
// semantics pushed into SQL, not filtered after the fact) and feeds
// archetype membership into the query's cache fingerprint.
func (b *Builder) WithArchetype(archetype ecs.Archetype) *Builder {
	b.archetype = &archetype
	return b
}

// Archetype returns the archetype-scope filter set via WithArchetype, or
// false if none was set.
func (b *Builder) Archetype() (ecs.Archetype, bool) {
	if b.archetype == nil {
		return ecs.Archetype{}, false
	}
	return *b.archetype, true
}
