// Package vocab models the Activity Vocabulary: typed entities that
// round-trip through JSON-LD in compact and expanded form, with lazy
// dereferencing of linked remote objects.
//
// Each type carries a declarative TypeSpec listing its qualified URI, its
// supertype, and its property specs; the codec interprets these tables so
// every type shares one encode/decode path.
package vocab

import "strings"

// Namespace URIs used across the vocabulary tables.
const (
	nsAS     = "https://www.w3.org/ns/activitystreams#"
	nsXSD    = "http://www.w3.org/2001/XMLSchema#"
	nsSec    = "https://w3id.org/security#"
	nsToot   = "http://joinmastodon.org/ns#"
	nsSchema = "http://schema.org#"
)

// Public is the special collection URI addressing every actor.
const Public = nsAS + "Public"

// Container describes how a property's values are laid out in JSON-LD.
type Container int

const (
	// ContainerNone holds values as a plain set.
	ContainerNone Container = iota
	// ContainerList preserves order with an @list wrapper.
	ContainerList
	// ContainerGraph wraps each element in @graph.
	ContainerGraph
)

// Range markers for scalar property values. Entity ranges are named by the
// entity type's qualified URI instead.
const (
	rangeString     = nsXSD + "string"
	rangeLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
	rangeBoolean    = nsXSD + "boolean"
	rangeInteger    = nsXSD + "integer"
	rangeNonNegInt  = nsXSD + "nonNegativeInteger"
	rangeFloat      = nsXSD + "float"
	rangeDateTime   = nsXSD + "dateTime"
	rangeDuration   = nsXSD + "duration"
	rangeAnyURI     = nsXSD + "anyURI"
	rangeUnits      = nsAS + "units" // bare-string unit names or a URL
	rangeMultibase  = nsSec + "multibase"
)

// PropertySpec declares one property of a vocabulary type.
type PropertySpec struct {
	// Singular and Plural accessor names; Plural is empty for strictly
	// functional properties.
	Singular string
	Plural   string
	// CompactName is the key used in compact JSON-LD.
	CompactName string
	// URI is the qualified property URI used in expanded JSON-LD.
	URI string
	// Range lists the admissible value type URIs (scalar ranges above, or
	// entity type URIs).
	Range []string
	// Functional properties hold at most one value.
	Functional bool
	Container  Container
	// RedundantURIs are alias property URIs written and accepted for
	// interop with specific fediverse implementations.
	RedundantURIs []string
	// EmbedContext forces nested objects under this property to carry
	// their own @context when compacted.
	EmbedContext bool
}

func (p *PropertySpec) hasRange(uri string) bool {
	for _, r := range p.Range {
		if r == uri {
			return true
		}
	}
	return false
}

func (p *PropertySpec) scalar() bool {
	for _, r := range p.Range {
		if strings.HasPrefix(r, nsXSD) || r == rangeLangString || r == rangeUnits || r == rangeMultibase {
			return true
		}
	}
	return false
}

// TypeSpec declares one vocabulary type.
type TypeSpec struct {
	// Name is the compact type tag ("Person", "Create", ...).
	Name string
	// URI is the qualified type URI.
	URI string
	// Extends names the supertype URI; empty for Object and Link.
	Extends string
	// DefaultContext is the @context emitted in compact form.
	DefaultContext any
	// Properties declared directly on this type. Inherited properties are
	// resolved through the registry.
	Properties []PropertySpec

	// New constructs an empty instance of the type.
	New func() Entity
}

// propByURI finds a property spec (including redundant aliases) in the
// spec chain of t, walking supertypes through the registry.
func (t *TypeSpec) propByURI(uri string) *PropertySpec {
	for spec := t; spec != nil; spec = registry.lookup(spec.Extends) {
		for i := range spec.Properties {
			p := &spec.Properties[i]
			if p.URI == uri {
				return p
			}
			for _, alias := range p.RedundantURIs {
				if alias == uri {
					return p
				}
			}
		}
	}
	return nil
}

// propByName finds a property spec by singular or plural accessor name.
func (t *TypeSpec) propByName(name string) *PropertySpec {
	for spec := t; spec != nil; spec = registry.lookup(spec.Extends) {
		for i := range spec.Properties {
			p := &spec.Properties[i]
			if p.Singular == name || (p.Plural != "" && p.Plural == name) {
				return p
			}
		}
	}
	return nil
}

// allProps walks the full property chain, most-derived first.
func (t *TypeSpec) allProps() []*PropertySpec {
	var out []*PropertySpec
	for spec := t; spec != nil; spec = registry.lookup(spec.Extends) {
		for i := range spec.Properties {
			out = append(out, &spec.Properties[i])
		}
	}
	return out
}

// isSubtypeOf reports whether t equals or descends from the type named by
// uri.
func (t *TypeSpec) isSubtypeOf(uri string) bool {
	for spec := t; spec != nil; spec = registry.lookup(spec.Extends) {
		if spec.URI == uri {
			return true
		}
	}
	return false
}

// depth is the inheritance distance from the root, used to pick the most
// specific dispatch target.
func (t *TypeSpec) depth() int {
	d := 0
	for spec := registry.lookup(t.Extends); spec != nil; spec = registry.lookup(spec.Extends) {
		d++
	}
	return d
}
