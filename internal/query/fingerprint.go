package query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonical is the deterministic JSON-serializable shape of a Builder, used
// to derive a stable cache key regardless of clause insertion order where
// order is not semantically meaningful (filters within a with clause).
type canonical struct {
	With           []canonicalWith `json:"with"`
	Sorts          []SortKey       `json:"sorts"`
	Limit          int             `json:"limit"`
	Offset         int             `json:"offset"`
	Includes       []string        `json:"includes"`
	IncludeDeleted bool            `json:"include_deleted"`
	Archetype      []string        `json:"archetype,omitempty"`
}

type canonicalWith struct {
	Component string   `json:"component"`
	Filters   []Filter `json:"filters"`
}

// Fingerprint returns a stable hex-encoded SHA-256 digest over b's
// canonical JSON form, used as the cache key for query results. Two
// Builders with semantically identical clauses (same with/sort/paginate
// content, same archetype scope if any) produce the same fingerprint
// regardless of filter ordering within a single with() clause.
func Fingerprint(b *Builder) string {
	c := canonical{
		Sorts:          b.sorts,
		Limit:          b.limit,
		Offset:         b.offset,
		Includes:       append([]string(nil), b.includes...),
		IncludeDeleted: b.includeDeleted,
	}
	sort.Strings(c.Includes)

	if archetype, ok := b.Archetype(); ok {
		c.Archetype = archetype.Sorted()
	}

	for _, wc := range b.withClauses {
		filters := append([]Filter(nil), wc.Filters...)
		sort.Slice(filters, func(i, j int) bool {
			if filters[i].Field != filters[j].Field {
				return filters[i].Field < filters[j].Field
			}
			return filters[i].Op < filters[j].Op
		})
		c.With = append(c.With, canonicalWith{Component: wc.Component, Filters: filters})
	}
	sort.Slice(c.With, func(i, j int) bool { return c.With[i].Component < c.With[j].Component })

	raw, err := json.Marshal(c)
	if err != nil {
		// Builder fields are all JSON-marshalable primitives; a failure here
		// indicates a programmer error introducing a non-serializable value.
		panic("query: fingerprint marshal: " + err.Error())
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
