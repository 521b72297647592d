package xhub

import (
	"path"
	"strings"
)

// ExclusionConfig lists domains and entities whose events are dropped
// before routing. Entries may contain glob metacharacters.
type ExclusionConfig struct {
	Domains  []string `yaml:"domains"`
	Entities []string `yaml:"entities"`
}

// ExclusionFilter answers whether an entity-bearing event is excluded from
// dispatch. Exact entries and glob patterns are kept apart so the common
// case stays a set lookup.
type ExclusionFilter struct {
	domains     map[string]struct{}
	domainGlobs []string

	entities    map[string]struct{}
	entityGlobs []string
}

// NewExclusionFilter builds a filter from cfg.
func NewExclusionFilter(cfg ExclusionConfig) *ExclusionFilter {
	f := &ExclusionFilter{
		domains:  make(map[string]struct{}),
		entities: make(map[string]struct{}),
	}
	for _, d := range cfg.Domains {
		if hasGlobMeta(d) {
			f.domainGlobs = append(f.domainGlobs, d)
		} else {
			f.domains[d] = struct{}{}
		}
	}
	for _, e := range cfg.Entities {
		if hasGlobMeta(e) {
			f.entityGlobs = append(f.entityGlobs, e)
		} else {
			f.entities[e] = struct{}{}
		}
	}
	return f
}

// Excludes reports whether id's domain or entity is excluded.
func (f *ExclusionFilter) Excludes(id EntityID) bool {
	if id.IsZero() {
		return false
	}
	if _, ok := f.domains[id.Domain]; ok {
		return true
	}
	for _, g := range f.domainGlobs {
		if matchPattern(g, id.Domain) {
			return true
		}
	}
	entity := id.String()
	if _, ok := f.entities[entity]; ok {
		return true
	}
	for _, g := range f.entityGlobs {
		if matchPattern(g, entity) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no entries at all.
func (f *ExclusionFilter) Empty() bool {
	return len(f.domains) == 0 && len(f.domainGlobs) == 0 &&
		len(f.entities) == 0 && len(f.entityGlobs) == 0
}

// hasGlobMeta reports whether s contains glob metacharacters and therefore
// routes/filters via pattern matching instead of exact lookup.
func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// matchPattern matches name against a glob pattern; malformed patterns
// match nothing.
func matchPattern(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
