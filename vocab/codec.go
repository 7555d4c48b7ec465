package vocab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// maxDepth caps codec recursion to defend against pathological nesting.
const maxDepth = 64

var processor = ld.NewJsonLdProcessor()

func ldOptions(loader ld.DocumentLoader) *ld.JsonLdOptions {
	opts := ld.NewJsonLdOptions("")
	opts.ProcessingMode = ld.JsonLd_1_1
	opts.DocumentLoader = NewOfflineLoader(loader)
	return opts
}

// ─── Decode ───

// DecodeOption configures FromJSONLD.
type DecodeOption func(*decodeOpts)

// WithDocumentLoader sets the loader used for lazy dereference of linked
// objects.
func WithDocumentLoader(l DocumentLoader) DecodeOption {
	return func(o *decodeOpts) { o.loader = l }
}

// WithContextLoader sets the loader used to resolve @context URLs. The
// embedded offline contexts are always consulted first.
func WithContextLoader(l DocumentLoader) DecodeOption {
	return func(o *decodeOpts) { o.contextLoader = l }
}

// SuppressFetchErrors downgrades lazy-dereference failures to nil results.
func SuppressFetchErrors() DecodeOption {
	return func(o *decodeOpts) { o.suppressError = true }
}

// FromJSONLD decodes a JSON-LD document into the most specific registered
// vocabulary type. doc may be a decoded map, raw JSON bytes, or a
// json.RawMessage; nil is a type error.
func FromJSONLD(ctx context.Context, doc any, opts ...DecodeOption) (Entity, error) {
	return FromJSONLDAs(ctx, doc, specObject, opts...)
}

// FromJSONLDAs decodes requiring the result to be the given type or one of
// its subtypes.
func FromJSONLDAs(ctx context.Context, doc any, base *TypeSpec, opts ...DecodeOption) (Entity, error) {
	if doc == nil {
		return nil, fmt.Errorf("vocab: cannot decode nil document")
	}
	var o decodeOpts
	for _, opt := range opts {
		opt(&o)
	}

	var input any
	switch d := doc.(type) {
	case []byte:
		if err := json.Unmarshal(d, &input); err != nil {
			return nil, fmt.Errorf("vocab: invalid JSON: %w", err)
		}
	case json.RawMessage:
		if err := json.Unmarshal(d, &input); err != nil {
			return nil, fmt.Errorf("vocab: invalid JSON: %w", err)
		}
	default:
		input = doc
	}
	if input == nil {
		return nil, fmt.Errorf("vocab: cannot decode nil document")
	}

	expanded, err := processor.Expand(input, ldOptions(o.contextLoader))
	if err != nil {
		return nil, fmt.Errorf("vocab: expand: %w", err)
	}
	if len(expanded) == 0 {
		return nil, fmt.Errorf("vocab: document expanded to nothing")
	}
	node, ok := expanded[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("vocab: unexpected expansion shape %T", expanded[0])
	}

	e, err := decodeNode(node, base, o, 0)
	if err != nil {
		return nil, err
	}
	if orig, ok := input.(map[string]any); ok {
		e.core().original = orig
	}
	return e, nil
}

func typeTags(node map[string]any) []string {
	var tags []string
	switch t := node["@type"].(type) {
	case string:
		tags = append(tags, t)
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	return tags
}

func decodeNode(node map[string]any, base *TypeSpec, o decodeOpts, depth int) (Entity, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("vocab: document nesting exceeds %d levels", maxDepth)
	}

	tags := typeTags(node)
	// Unknown type tags fall back to base, so foreign extension types still
	// round-trip through the cached document.
	spec := registry.mostSpecific(tags, base)

	e := spec.New()
	c := e.core()
	c.spec = spec
	c.opts = o
	c.props = make(map[string][]Value)

	if id, ok := node["@id"].(string); ok && id != "" {
		u, err := coerceURL(id)
		if err != nil {
			return nil, fmt.Errorf("vocab: bad @id %q: %w", id, err)
		}
		c.id = u
	}

	for _, p := range spec.allProps() {
		uris := append([]string{p.URI}, p.RedundantURIs...)
		for _, uri := range uris {
			raw, ok := node[uri]
			if !ok {
				continue
			}
			vals, err := decodeItems(raw, p, o, depth)
			if err != nil {
				return nil, fmt.Errorf("vocab: %s.%s: %w", spec.Name, p.Singular, err)
			}
			if len(c.props[p.URI]) == 0 {
				c.props[p.URI] = vals
			}
		}
	}
	return e, nil
}

func decodeItems(raw any, p *PropertySpec, o decodeOpts, depth int) ([]Value, error) {
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	var out []Value
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			// Expanded form always wraps values; tolerate bare scalars.
			out = append(out, Value{Scalar: item})
			continue
		}
		// @list wrapping flattens into the ordered value list.
		if list, ok := m["@list"].([]any); ok {
			nested, err := decodeItems(list, p, o, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		if graph, ok := m["@graph"].([]any); ok {
			nested, err := decodeItems(graph, p, o, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		if v, ok := decodeScalar(m); ok {
			out = append(out, v)
			continue
		}
		// A bare {"@id": ...} node stays a URL reference for lazy fetch.
		if id, ok := m["@id"].(string); ok && len(m) == 1 {
			u, err := coerceURL(id)
			if err != nil {
				return nil, err
			}
			out = append(out, RefValue(u))
			continue
		}
		// Untyped nested nodes fall back to the property's declared entity
		// range (endpoints and key nodes often omit @type).
		base := specObject
		for _, r := range p.Range {
			if s := registry.lookup(r); s != nil {
				base = s
				break
			}
		}
		e, err := decodeNode(m, base, o, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, ObjValue(e))
	}
	return out, nil
}

// fetchEntity loads and decodes a remote document for lazy dereference.
func fetchEntity(ctx context.Context, u interface{ String() string }, o decodeOpts) (Entity, error) {
	remote, err := o.loader.LoadDocument(u.String())
	if err != nil {
		return nil, fmt.Errorf("vocab: fetch %s: %w", u.String(), err)
	}
	return FromJSONLD(ctx, remote.Document,
		WithDocumentLoader(o.loader), WithContextLoader(o.contextLoader),
		func(d *decodeOpts) { d.suppressError = o.suppressError })
}

// ─── Encode ───

// Format selects the JSON-LD output form.
type Format int

const (
	// FormatDefault returns the cached original document when present,
	// otherwise compacts.
	FormatDefault Format = iota
	// FormatCompact always compacts against the type's default context or
	// a caller-supplied one.
	FormatCompact
	// FormatExpand returns the expanded form.
	FormatExpand
)

// EncodeOption configures ToJSONLD.
type EncodeOption func(*encodeOpts)

type encodeOpts struct {
	format        Format
	context       any
	contextLoader DocumentLoader
}

// WithFormat selects the output form.
func WithFormat(f Format) EncodeOption {
	return func(o *encodeOpts) { o.format = f }
}

// WithContext compacts against the given @context instead of the type's
// default.
func WithContext(ctx any) EncodeOption {
	return func(o *encodeOpts) { o.context = ctx }
}

// WithEncodeContextLoader sets the loader resolving context URLs during
// compaction.
func WithEncodeContextLoader(l DocumentLoader) EncodeOption {
	return func(o *encodeOpts) { o.contextLoader = l }
}

// ToJSONLD encodes the entity. With no options and a cached original
// document, the original is returned verbatim so unknown fields survive.
func (o *Object) ToJSONLD(ctx context.Context, opts ...EncodeOption) (any, error) {
	var eo encodeOpts
	for _, opt := range opts {
		opt(&eo)
	}
	if eo.format == FormatDefault && o.original != nil {
		return o.original, nil
	}

	expanded, err := o.expand(0)
	if err != nil {
		return nil, err
	}
	if eo.format == FormatExpand {
		return []any{expanded}, nil
	}

	jsonCtx := eo.context
	if jsonCtx == nil {
		jsonCtx = o.spec.DefaultContext
	}
	compacted, err := processor.Compact(expanded, map[string]any{"@context": jsonCtx}, ldOptions(eo.contextLoader))
	if err != nil {
		return nil, fmt.Errorf("vocab: compact: %w", err)
	}
	o.embedNestedContexts(compacted)
	return compacted, nil
}

func (o *Object) expand(depth int) (map[string]any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("vocab: entity nesting exceeds %d levels", maxDepth)
	}
	node := make(map[string]any)
	if o.id != nil {
		node["@id"] = o.id.String()
	}
	node["@type"] = []any{o.spec.URI}

	written := make(map[string]bool)
	for _, p := range o.spec.allProps() {
		// Most-derived spec wins when a subtype redeclares a property URI
		// (OrderedCollection's ordered items over Collection's items).
		if written[p.URI] {
			continue
		}
		vals := o.props[p.URI]
		if len(vals) == 0 {
			continue
		}
		written[p.URI] = true
		encoded := make([]any, 0, len(vals))
		for _, v := range vals {
			ev, err := encodeValue(p, v, depth)
			if err != nil {
				return nil, fmt.Errorf("vocab: %s.%s: %w", o.spec.Name, p.Singular, err)
			}
			if p.Container == ContainerGraph {
				ev = map[string]any{"@graph": []any{ev}}
			}
			encoded = append(encoded, ev)
		}
		var out []any
		if p.Container == ContainerList {
			out = []any{map[string]any{"@list": encoded}}
		} else {
			out = encoded
		}
		node[p.URI] = out
		// Functional redundant properties are written under every alias.
		if p.Functional {
			for _, alias := range p.RedundantURIs {
				node[alias] = out
			}
		}
	}
	return node, nil
}

func encodeValue(p *PropertySpec, v Value, depth int) (any, error) {
	switch {
	case v.Obj != nil:
		return v.Obj.core().expand(depth + 1)
	case v.Ref != nil:
		return map[string]any{"@id": v.Ref.String()}, nil
	default:
		return encodeScalar(p, v)
	}
}

// embedNestedContexts post-processes a compacted document, copying the
// nested type's default @context onto objects under embedContext-flagged
// properties.
func (o *Object) embedNestedContexts(compacted map[string]any) {
	for _, p := range o.spec.allProps() {
		if !p.EmbedContext {
			continue
		}
		raw, ok := compacted[p.CompactName]
		if !ok {
			continue
		}
		vals := o.props[p.URI]
		nested := func(m map[string]any, i int) {
			if _, has := m["@context"]; has {
				return
			}
			if i < len(vals) && vals[i].Obj != nil {
				m["@context"] = vals[i].Obj.Spec().DefaultContext
			}
		}
		switch t := raw.(type) {
		case map[string]any:
			nested(t, 0)
		case []any:
			for i, item := range t {
				if m, ok := item.(map[string]any); ok {
					nested(m, i)
				}
			}
		}
	}
}

// Expansion of an arbitrary document, for semantic comparisons.
func Expand(doc any, loader DocumentLoader) ([]any, error) {
	expanded, err := processor.Expand(doc, ldOptions(loader))
	if err != nil {
		return nil, fmt.Errorf("vocab: expand: %w", err)
	}
	return expanded, nil
}
