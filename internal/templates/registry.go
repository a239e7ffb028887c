package templates

import (
	"fmt"
	"log/slog"
	"sort"
)

// Registry holds discovered templates in memory, indexed by name.
// It is filled at startup and read-only afterwards.
type Registry struct {
	templates map[string]*Manifest
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Manifest),
	}
}

// Register adds a template. Names must be unique.
func (r *Registry) Register(m *Manifest) error {
	if _, exists := r.templates[m.Name]; exists {
		return fmt.Errorf("template already registered: %s", m.Name)
	}
	r.templates[m.Name] = m
	return nil
}

// Get retrieves a template by name.
func (r *Registry) Get(name string) (*Manifest, bool) {
	m, ok := r.templates[name]
	return m, ok
}

// List returns all templates sorted by name.
func (r *Registry) List() []*Manifest {
	out := make([]*Manifest, 0, len(r.templates))
	for _, m := range r.templates {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// ByType returns the templates of one type sorted by name.
func (r *Registry) ByType(templateType string) []*Manifest {
	var out []*Manifest
	for _, m := range r.List() {
		if m.Type == templateType {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of registered templates.
func (r *Registry) Count() int {
	return len(r.templates)
}

// LoadRegistry discovers templates in dir and registers them. Duplicate names
// are logged and skipped; an empty directory yields an empty registry.
func LoadRegistry(dir string) (*Registry, error) {
	discovered, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	for _, m := range discovered {
		if err := registry.Register(m); err != nil {
			slog.Warn("Duplicate template name, skipping", "template", m.Name, "file", m.Path)
			continue
		}
	}

	return registry, nil
}
