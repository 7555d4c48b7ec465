package vocab

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// LangString is a language-tagged string value.
type LangString struct {
	Lang  string
	Value string
}

// Value is one property value: a not-yet-fetched URL reference, a nested
// entity, or a scalar (string, LangString, bool, int64, uint64, float64,
// time.Time, or a duration string).
type Value struct {
	Ref    *url.URL
	Obj    Entity
	Scalar any
}

// RefValue wraps a URL reference.
func RefValue(u *url.URL) Value { return Value{Ref: u} }

// ObjValue wraps a nested entity.
func ObjValue(e Entity) Value { return Value{Obj: e} }

// String returns the scalar as a string when possible.
func (v Value) String() (string, bool) {
	switch s := v.Scalar.(type) {
	case string:
		return s, true
	case LangString:
		return s.Value, true
	}
	return "", false
}

// Float returns the scalar as a float64, converting integer scalars.
func (v Value) Float() (float64, bool) {
	switch n := v.Scalar.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Int returns the scalar as an int64, converting unsigned and whole floats.
func (v Value) Int() (int64, bool) {
	switch n := v.Scalar.(type) {
	case int64:
		return n, true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

// Bool returns the scalar as a bool.
func (v Value) Bool() (bool, bool) {
	b, ok := v.Scalar.(bool)
	return b, ok
}

// Time returns the scalar as a time.Time.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.Scalar.(time.Time)
	return t, ok
}

// URL returns the reference URL, or the id of a resolved entity.
func (v Value) URL() *url.URL {
	if v.Ref != nil {
		return v.Ref
	}
	if v.Obj != nil {
		return v.Obj.ID()
	}
	return nil
}

// encodeScalar renders a scalar value as an expanded JSON-LD value node.
func encodeScalar(p *PropertySpec, v Value) (map[string]any, error) {
	switch s := v.Scalar.(type) {
	case string:
		for _, r := range p.Range {
			switch r {
			case rangeDuration:
				return map[string]any{"@value": s, "@type": rangeDuration}, nil
			case rangeAnyURI:
				return map[string]any{"@value": s, "@type": rangeAnyURI}, nil
			case rangeMultibase:
				return map[string]any{"@value": s, "@type": rangeMultibase}, nil
			}
		}
		return map[string]any{"@value": s}, nil
	case LangString:
		if s.Lang == "" {
			return map[string]any{"@value": s.Value}, nil
		}
		return map[string]any{"@value": s.Value, "@language": s.Lang}, nil
	case bool:
		return map[string]any{"@value": s, "@type": rangeBoolean}, nil
	case int64:
		// The declared range decides the XSD type; a nonNegativeInteger
		// property tagged xsd:integer would not term-compact.
		if s >= 0 && p.hasRange(rangeNonNegInt) && !p.hasRange(rangeInteger) {
			return map[string]any{"@value": s, "@type": rangeNonNegInt}, nil
		}
		return map[string]any{"@value": s, "@type": rangeInteger}, nil
	case uint64:
		if p.hasRange(rangeInteger) && !p.hasRange(rangeNonNegInt) {
			return map[string]any{"@value": s, "@type": rangeInteger}, nil
		}
		return map[string]any{"@value": s, "@type": rangeNonNegInt}, nil
	case float64:
		return map[string]any{"@value": s, "@type": rangeFloat}, nil
	case time.Time:
		return map[string]any{"@value": s.UTC().Format(time.RFC3339), "@type": rangeDateTime}, nil
	default:
		return nil, fmt.Errorf("vocab: property %q cannot encode scalar %T", p.Singular, v.Scalar)
	}
}

// decodeScalar reads an expanded @value node back into a scalar Value.
func decodeScalar(node map[string]any) (Value, bool) {
	raw, ok := node["@value"]
	if !ok {
		return Value{}, false
	}
	typ, _ := node["@type"].(string)
	lang, _ := node["@language"].(string)

	switch typ {
	case rangeBoolean:
		if b, ok := raw.(bool); ok {
			return Value{Scalar: b}, true
		}
	case rangeInteger:
		if f, ok := toFloat(raw); ok {
			return Value{Scalar: int64(f)}, true
		}
	case rangeNonNegInt:
		if f, ok := toFloat(raw); ok && f >= 0 {
			return Value{Scalar: uint64(f)}, true
		}
	case rangeFloat, nsXSD + "double", nsXSD + "decimal":
		if f, ok := toFloat(raw); ok {
			return Value{Scalar: f}, true
		}
	case rangeDateTime:
		if s, ok := raw.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return Value{Scalar: t}, true
			}
		}
	}

	// Untyped values: JSON numbers and booleans survive, strings keep any
	// language tag.
	switch s := raw.(type) {
	case string:
		if lang != "" {
			return Value{Scalar: LangString{Lang: lang, Value: s}}, true
		}
		return Value{Scalar: s}, true
	case bool:
		return Value{Scalar: s}, true
	case float64:
		return Value{Scalar: s}, true
	}
	return Value{}, false
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
