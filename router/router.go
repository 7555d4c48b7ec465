// Package router implements URI-template path matching and building for the
// federation endpoints (actor, inbox, outbox, collections, objects).
// Templates use chi-style variable segments: "/users/{handle}/inbox".
package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Match is the result of resolving a request path against the registered
// templates.
type Match struct {
	Template string
	Vars     map[string]string
}

// Router maps templates to paths and back. Registration is not safe for
// concurrent use with matching; register everything up front.
type Router struct {
	mu        sync.RWMutex
	templates map[string][]segment
}

type segment struct {
	literal string
	varName string // non-empty for "{name}" segments
}

// New creates an empty router.
func New() *Router {
	return &Router{templates: make(map[string][]segment)}
}

// Add registers a template. Registering the same template twice, or a second
// template whose shape collides with an existing one, is an error.
func (r *Router) Add(template string) error {
	segs, err := parseTemplate(template)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for existing, existingSegs := range r.templates {
		if collides(segs, existingSegs) {
			return fmt.Errorf("router: template %q collides with %q", template, existing)
		}
	}
	r.templates[template] = segs
	return nil
}

// Has reports whether the exact template is registered.
func (r *Router) Has(template string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[template]
	return ok
}

// Route matches a request path against the registered templates.
func (r *Router) Route(path string) (Match, bool) {
	parts := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Deterministic order so overlap resolution is stable.
	templates := make([]string, 0, len(r.templates))
	for t := range r.templates {
		templates = append(templates, t)
	}
	sort.Strings(templates)

	for _, template := range templates {
		segs := r.templates[template]
		if vars, ok := matchSegments(segs, parts); ok {
			return Match{Template: template, Vars: vars}, true
		}
	}
	return Match{}, false
}

// Build produces a concrete path from a registered template and its
// variable values.
func (r *Router) Build(template string, vars map[string]string) (string, error) {
	r.mu.RLock()
	segs, ok := r.templates[template]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("router: unknown template %q", template)
	}

	var b strings.Builder
	for _, seg := range segs {
		b.WriteByte('/')
		if seg.varName == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := vars[seg.varName]
		if !ok {
			return "", fmt.Errorf("router: missing variable %q for template %q", seg.varName, template)
		}
		b.WriteString(v)
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}

func parseTemplate(template string) ([]segment, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, fmt.Errorf("router: template %q must start with /", template)
	}
	parts := splitPath(template)
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			name := p[1 : len(p)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, fmt.Errorf("router: invalid variable segment %q in %q", p, template)
			}
			segs = append(segs, segment{varName: name})
			continue
		}
		if strings.ContainsAny(p, "{}") {
			// At most one variable per position, and it must span the segment.
			return nil, fmt.Errorf("router: partial variable segment %q in %q", p, template)
		}
		segs = append(segs, segment{literal: p})
	}
	return segs, nil
}

// collides reports whether two templates can match the same path.
func collides(a, b []segment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].varName != "" || b[i].varName != "" {
			continue // a variable matches anything
		}
		if a[i].literal != b[i].literal {
			return false
		}
	}
	return true
}

func matchSegments(segs []segment, parts []string) (map[string]string, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}
	vars := make(map[string]string)
	for i, seg := range segs {
		if seg.varName != "" {
			if parts[i] == "" {
				return nil, false
			}
			vars[seg.varName] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return vars, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
