package hooks

import "github.com/yaaruu/bunsane-sub005/internal/ecs"

// Predicate is a hook's component target predicate. A zero Predicate
// matches every event.
type Predicate struct {
	IncludeComponents []string
	// MatchAnyIncluded selects OR semantics across IncludeComponents.
	// Zero value is false: AND semantics (every listed component must be
	// active) without requiring callers to set anything.
	MatchAnyIncluded  bool
	ExcludeComponents []string
	Archetype         *ecs.Archetype
	Archetypes        []ecs.Archetype
}

// Matches reports whether active, the entity's active component-name set
// after the triggering change, satisfies p.
func (p Predicate) Matches(active []string) bool {
	set := make(map[string]struct{}, len(active))
	for _, c := range active {
		set[c] = struct{}{}
	}

	if len(p.IncludeComponents) > 0 {
		if !matchIncluded(set, p.IncludeComponents, !p.MatchAnyIncluded) {
			return false
		}
	}

	for _, c := range p.ExcludeComponents {
		if _, ok := set[c]; ok {
			return false
		}
	}

	if p.Archetype != nil && !p.Archetype.Matches(active) {
		return false
	}

	if len(p.Archetypes) > 0 {
		matched := false
		for _, a := range p.Archetypes {
			if a.Matches(active) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func matchIncluded(set map[string]struct{}, required []string, requireAll bool) bool {
	if requireAll {
		for _, c := range required {
			if _, ok := set[c]; !ok {
				return false
			}
		}
		return true
	}
	for _, c := range required {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}
