// Package variables holds workflow-scoped key-value state and implements
// {{name}} template substitution over it.
package variables

import (
	"strings"
	"sync"

	"github.com/pagerun/pagerun/pkg/schema"
)

// Manager holds the mutable variable state of one workflow run. A run owns
// exactly one Manager; independent runs never share one. The mutex only
// guards against observers (MCP status queries, tests) reading while the
// single engine goroutine writes.
type Manager struct {
	mu   sync.RWMutex
	vars map[string]schema.Value
}

// NewManager creates a Manager, optionally seeded with workflow-level
// variables.
func NewManager(seed map[string]schema.Value) *Manager {
	m := &Manager{vars: make(map[string]schema.Value, len(seed))}
	for k, v := range seed {
		m.vars[k] = v
	}
	return m
}

// Set stores a variable, silently overwriting any previous value.
func (m *Manager) Set(name string, value schema.Value) {
	m.mu.Lock()
	m.vars[name] = value
	m.mu.Unlock()
}

// BulkSet stores every entry of the mapping. This is the injection boundary
// callers use to hand credentials or parameters to a run.
func (m *Manager) BulkSet(vars map[string]schema.Value) {
	m.mu.Lock()
	for k, v := range vars {
		m.vars[k] = v
	}
	m.mu.Unlock()
}

// Get returns the variable's value, or def when the name is unset.
func (m *Manager) Get(name string, def schema.Value) schema.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vars[name]; ok {
		return v
	}
	return def
}

// Lookup returns the variable's value and whether it is set.
func (m *Manager) Lookup(name string) (schema.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[name]
	return v, ok
}

// List returns a copy of the current variable mapping.
func (m *Manager) List() map[string]schema.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]schema.Value, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}

// Snapshot returns plain Go values for expression engines.
func (m *Manager) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.vars))
	for k, v := range m.vars {
		out[k] = v.Interface()
	}
	return out
}

// PushScope applies step-local overrides and returns a restore function
// that puts the shadowed values back (and removes names that were unset).
// Overrides shadow workflow-level values only for the duration of the scope.
func (m *Manager) PushScope(overrides map[string]schema.Value) (restore func()) {
	if len(overrides) == 0 {
		return func() {}
	}

	m.mu.Lock()
	shadowed := make(map[string]schema.Value, len(overrides))
	absent := make([]string, 0, len(overrides))
	for k, v := range overrides {
		if prev, ok := m.vars[k]; ok {
			shadowed[k] = prev
		} else {
			absent = append(absent, k)
		}
		m.vars[k] = v
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		for k, v := range shadowed {
			m.vars[k] = v
		}
		for _, k := range absent {
			delete(m.vars, k)
		}
		m.mu.Unlock()
	}
}

// Substitute replaces each {{name}} token with the string form of the named
// variable. Unresolved tokens are left verbatim: substitution is a
// best-effort rendering pass, never a failure point, so partially-bound
// templates survive until something later binds them.
func (m *Manager) Substitute(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))

	i := 0
	for i < len(text) {
		open := strings.Index(text[i:], "{{")
		if open == -1 {
			out.WriteString(text[i:])
			break
		}
		out.WriteString(text[i : i+open])
		start := i + open

		close := strings.Index(text[start+2:], "}}")
		if close == -1 {
			// Unterminated token: emit the rest verbatim.
			out.WriteString(text[start:])
			break
		}
		end := start + 2 + close

		name := strings.TrimSpace(text[start+2 : end])
		if v, ok := m.Lookup(name); ok && name != "" {
			out.WriteString(v.Text())
		} else {
			out.WriteString(text[start : end+2])
		}
		i = end + 2
	}

	return out.String()
}

// SubstituteValue renders templates inside a Value: strings are substituted,
// lists and maps recursively, other kinds pass through unchanged.
func (m *Manager) SubstituteValue(v schema.Value) schema.Value {
	switch v.Kind() {
	case schema.KindString:
		return schema.StringValue(m.Substitute(v.Str()))
	case schema.KindList:
		items := v.List()
		out := make([]schema.Value, len(items))
		for i, it := range items {
			out[i] = m.SubstituteValue(it)
		}
		return schema.ListValue(out...)
	case schema.KindMap:
		src := v.Map()
		out := make(map[string]schema.Value, len(src))
		for k, mv := range src {
			out[k] = m.SubstituteValue(mv)
		}
		return schema.MapValue(out)
	default:
		return v
	}
}

// Resolve substitutes templates in a string and, when the whole string was a
// single {{name}} token, returns the variable's typed value instead of its
// string form. This keeps numbers and lists typed through condition
// evaluation.
func (m *Manager) Resolve(v schema.Value) schema.Value {
	if v.Kind() != schema.KindString {
		return m.SubstituteValue(v)
	}
	s := strings.TrimSpace(v.Str())
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		inner := strings.TrimSpace(s[2 : len(s)-2])
		if inner != "" && !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			if val, ok := m.Lookup(inner); ok {
				return val
			}
		}
	}
	return schema.StringValue(m.Substitute(v.Str()))
}
