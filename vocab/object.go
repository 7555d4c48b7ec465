package vocab

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Entity is implemented by every vocabulary type.
type Entity interface {
	// ID returns the entity's identity URL, or nil.
	ID() *url.URL
	// Spec returns the entity's type spec.
	Spec() *TypeSpec
	// ToJSONLD encodes the entity; see Object.ToJSONLD.
	ToJSONLD(ctx context.Context, opts ...EncodeOption) (any, error)
	// Get returns the raw values stored under an accessor name.
	Get(name string) []Value
	// Clone returns a copy with changes applied; see Object.Clone.
	Clone(changes Props) (Entity, error)

	core() *Object
}

// Props supplies property values to constructors and Clone, keyed by the
// singular or plural accessor name. Accepted value kinds: Entity, *url.URL,
// string, LangString, bool, int64, uint64, float64, time.Time, Value, and
// slices of any of these for plural names.
type Props map[string]any

// Object is the root vocabulary type and the shared core every other type
// embeds. Entities are immutable after construction except for lazy
// dereference memoization and Clone.
type Object struct {
	id       *url.URL
	spec     *TypeSpec
	props    map[string][]Value
	original map[string]any

	opts decodeOpts
	mu   sync.Mutex
}

func (o *Object) core() *Object   { return o }
func (o *Object) ID() *url.URL    { return o.id }
func (o *Object) Spec() *TypeSpec { return o.spec }

// decodeOpts carries the loaders an entity was decoded with, so lazy
// dereference can reuse them.
type decodeOpts struct {
	loader        DocumentLoader
	contextLoader DocumentLoader
	suppressError bool
}

// initCore fills in the shared core. Typed constructors call this through
// newEntity.
func (o *Object) initCore(spec *TypeSpec, props Props) error {
	o.spec = spec
	o.props = make(map[string][]Value)
	seen := make(map[string]string) // property URI -> accessor name used

	for name, raw := range props {
		if name == "id" {
			u, err := coerceURL(raw)
			if err != nil {
				return fmt.Errorf("vocab: %s id: %w", spec.Name, err)
			}
			o.id = u
			continue
		}
		p := spec.propByName(name)
		if p == nil {
			return fmt.Errorf("vocab: %s has no property %q", spec.Name, name)
		}
		if prev, dup := seen[p.URI]; dup {
			return fmt.Errorf("vocab: %s: both %q and %q supplied for one property", spec.Name, prev, name)
		}
		seen[p.URI] = name

		plural := p.Plural != "" && name == p.Plural
		vals, err := coerceValues(p, raw, plural)
		if err != nil {
			return fmt.Errorf("vocab: %s.%s: %w", spec.Name, name, err)
		}
		if p.Functional && len(vals) > 1 {
			return fmt.Errorf("vocab: %s.%s is functional, got %d values", spec.Name, name, len(vals))
		}
		o.props[p.URI] = vals
	}
	return nil
}

func newEntity(spec *TypeSpec, props Props) (Entity, error) {
	e := spec.New()
	if err := e.core().initCore(spec, props); err != nil {
		return nil, err
	}
	return e, nil
}

func coerceURL(raw any) (*url.URL, error) {
	switch v := raw.(type) {
	case *url.URL:
		return v, nil
	case string:
		u, err := url.Parse(v)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, fmt.Errorf("expected URL, got %T", raw)
	}
}

func coerceValues(p *PropertySpec, raw any, plural bool) ([]Value, error) {
	if raw == nil {
		return nil, nil
	}
	if !plural {
		v, err := coerceValue(p, raw)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	}
	var items []any
	switch s := raw.(type) {
	case []any:
		items = s
	case []Value:
		out := make([]Value, len(s))
		copy(out, s)
		return out, nil
	case []Entity:
		for _, e := range s {
			items = append(items, e)
		}
	case []*url.URL:
		for _, u := range s {
			items = append(items, u)
		}
	case []string:
		for _, v := range s {
			items = append(items, v)
		}
	default:
		// A bare value for a plural name is a single-element list.
		items = []any{raw}
	}
	out := make([]Value, 0, len(items))
	for _, item := range items {
		v, err := coerceValue(p, item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func coerceValue(p *PropertySpec, raw any) (Value, error) {
	switch v := raw.(type) {
	case Value:
		return v, nil
	case Entity:
		if err := checkEntityRange(p, v); err != nil {
			return Value{}, err
		}
		return ObjValue(v), nil
	case *url.URL:
		return RefValue(v), nil
	case string, LangString, bool, int64, uint64, float64, time.Time:
		if !p.scalar() {
			return Value{}, fmt.Errorf("expected one of %v, got %T", p.Range, raw)
		}
		return Value{Scalar: raw}, nil
	case int:
		if !p.scalar() {
			return Value{}, fmt.Errorf("expected one of %v, got %T", p.Range, raw)
		}
		return Value{Scalar: int64(v)}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value %T", raw)
	}
}

// checkEntityRange validates a supplied entity against the property's
// declared type union.
func checkEntityRange(p *PropertySpec, e Entity) error {
	for _, r := range p.Range {
		if e.Spec().isSubtypeOf(r) {
			return nil
		}
	}
	return fmt.Errorf("value of type %s not in range %v", e.Spec().Name, p.Range)
}

// ─── Accessor helpers ───

// values returns the stored values for an accessor name.
func (o *Object) values(name string) []Value {
	p := o.spec.propByName(name)
	if p == nil {
		return nil
	}
	return o.props[p.URI]
}

func (o *Object) strProp(name string) string {
	for _, v := range o.values(name) {
		if s, ok := v.String(); ok {
			return s
		}
	}
	return ""
}

func (o *Object) strProps(name string) []string {
	var out []string
	for _, v := range o.values(name) {
		if s, ok := v.String(); ok {
			out = append(out, s)
		}
	}
	return out
}

func (o *Object) floatProp(name string) (float64, bool) {
	for _, v := range o.values(name) {
		if f, ok := v.Float(); ok {
			return f, true
		}
	}
	return 0, false
}

func (o *Object) uintProp(name string) (uint64, bool) {
	for _, v := range o.values(name) {
		if n, ok := v.Int(); ok && n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

func (o *Object) boolProp(name string) (bool, bool) {
	for _, v := range o.values(name) {
		if b, ok := v.Bool(); ok {
			return b, true
		}
	}
	return false, false
}

func (o *Object) timeProp(name string) (time.Time, bool) {
	for _, v := range o.values(name) {
		if t, ok := v.Time(); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// urlProp returns the first value's URL without fetching.
func (o *Object) urlProp(name string) *url.URL {
	for _, v := range o.values(name) {
		if u := v.URL(); u != nil {
			return u
		}
	}
	return nil
}

func (o *Object) urlProps(name string) []*url.URL {
	var out []*url.URL
	for _, v := range o.values(name) {
		if u := v.URL(); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// entityProp returns the first already-materialized entity value without
// fetching.
func (o *Object) entityProp(name string) Entity {
	for _, v := range o.values(name) {
		if v.Obj != nil {
			return v.Obj
		}
	}
	return nil
}

// ─── Lazy dereference ───

// getEntity resolves the i-th value of a property to an entity, fetching
// through the stored document loader when only a URL reference is held.
// Resolved entities replace the reference in place.
func (o *Object) getEntity(ctx context.Context, name string, i int) (Entity, error) {
	p := o.spec.propByName(name)
	if p == nil {
		return nil, fmt.Errorf("vocab: %s has no property %q", o.spec.Name, name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	vals := o.props[p.URI]
	if i >= len(vals) {
		return nil, nil
	}
	v := vals[i]
	if v.Obj != nil {
		return v.Obj, nil
	}
	if v.Ref == nil {
		return nil, nil
	}
	if o.opts.loader == nil {
		err := fmt.Errorf("vocab: no document loader to resolve %s", v.Ref)
		if o.opts.suppressError {
			return nil, nil
		}
		return nil, err
	}

	e, err := fetchEntity(ctx, v.Ref, o.opts)
	if err != nil {
		if o.opts.suppressError {
			return nil, nil
		}
		return nil, err
	}
	vals[i].Obj = e
	return e, nil
}

// getEntities resolves every value of a property, dropping unresolvable
// references when errors are suppressed.
func (o *Object) getEntities(ctx context.Context, name string) ([]Entity, error) {
	p := o.spec.propByName(name)
	if p == nil {
		return nil, fmt.Errorf("vocab: %s has no property %q", o.spec.Name, name)
	}
	n := len(o.props[p.URI])
	var out []Entity
	for i := 0; i < n; i++ {
		e, err := o.getEntity(ctx, name, i)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// ─── Clone ───

// Clone returns a copy with the given changes applied. A nil change value
// removes the property. Clone is the only mutation path; validation matches
// the constructors.
func (o *Object) Clone(changes Props) (Entity, error) {
	e := o.spec.New()
	c := e.core()
	c.spec = o.spec
	c.id = o.id
	c.opts = o.opts
	c.props = make(map[string][]Value, len(o.props))
	for uri, vals := range o.props {
		c.props[uri] = append([]Value(nil), vals...)
	}
	// The cached document describes the pre-clone state; drop it.
	c.original = nil

	seen := make(map[string]string)
	for name, raw := range changes {
		if name == "id" {
			if raw == nil {
				c.id = nil
				continue
			}
			u, err := coerceURL(raw)
			if err != nil {
				return nil, fmt.Errorf("vocab: clone id: %w", err)
			}
			c.id = u
			continue
		}
		p := o.spec.propByName(name)
		if p == nil {
			return nil, fmt.Errorf("vocab: %s has no property %q", o.spec.Name, name)
		}
		if prev, dup := seen[p.URI]; dup {
			return nil, fmt.Errorf("vocab: clone: both %q and %q supplied for one property", prev, name)
		}
		seen[p.URI] = name

		if raw == nil {
			delete(c.props, p.URI)
			continue
		}
		plural := p.Plural != "" && name == p.Plural
		vals, err := coerceValues(p, raw, plural)
		if err != nil {
			return nil, fmt.Errorf("vocab: clone %s: %w", name, err)
		}
		if p.Functional && len(vals) > 1 {
			return nil, fmt.Errorf("vocab: %s is functional, got %d values", name, len(vals))
		}
		c.props[p.URI] = vals
	}
	return e, nil
}
