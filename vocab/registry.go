package vocab

import "sort"

// typeRegistry maps qualified type URIs to their specs. The vocabulary is
// closed; registration happens in init functions within this package.
type typeRegistry struct {
	byURI map[string]*TypeSpec
}

var registry = &typeRegistry{byURI: make(map[string]*TypeSpec)}

func register(spec *TypeSpec) *TypeSpec {
	if _, dup := registry.byURI[spec.URI]; dup {
		panic("vocab: duplicate type registration " + spec.URI)
	}
	registry.byURI[spec.URI] = spec
	return spec
}

func (r *typeRegistry) lookup(uri string) *TypeSpec {
	if uri == "" {
		return nil
	}
	return r.byURI[uri]
}

// Super returns the spec of the type this one extends, or nil at the root.
// Walking Super from any spec terminates at Object.
func (t *TypeSpec) Super() *TypeSpec {
	return registry.lookup(t.Extends)
}

// mostSpecific picks, from the @type tags of an expanded document, the
// deepest registered type that is a subtype of the requested base. Falls
// back to the base itself when no tag is known.
func (r *typeRegistry) mostSpecific(typeTags []string, base *TypeSpec) *TypeSpec {
	best := base
	bestDepth := -1
	// Deterministic iteration over tags keeps dispatch stable when a
	// document carries several known types.
	tags := append([]string(nil), typeTags...)
	sort.Strings(tags)
	for _, tag := range tags {
		spec := r.lookup(tag)
		if spec == nil || !spec.isSubtypeOf(base.URI) {
			continue
		}
		if d := spec.depth(); d > bestDepth {
			best, bestDepth = spec, d
		}
	}
	return best
}
