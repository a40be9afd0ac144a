package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Handler is the bound implementation of one registered operation. The
// context carries the run's deadline/cancellation; args is the fully
// resolved input tree for the invocation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ParamSpec is an explicit, declared parameter descriptor attached at
// registration time. Tool schemas and input validation derive from these
// rather than from free-text signature parsing.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string | number | integer | boolean | object | array
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Module is one registry entry: an invocable operation keyed by
// category.module.function, with its description and declared parameters.
// Entries are immutable once the registry is built.
type Module struct {
	Category    string
	Name        string
	Function    string
	Description string
	Params      []ParamSpec
	Handler     Handler
}

// Path returns the three-part dotted path the module is registered under.
func (m *Module) Path() string {
	return fmt.Sprintf("%s.%s.%s", m.Category, m.Name, m.Function)
}

// Signature renders the declared parameters as a human-readable signature,
// used in logs and validation messages.
func (m *Module) Signature() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		part := fmt.Sprintf("%s %s", p.Name, p.Type)
		if !p.Required {
			part += "?"
		}
		parts[i] = part
	}
	return fmt.Sprintf("%s(%s)", m.Path(), strings.Join(parts, ", "))
}

// Registry is the static catalog of invocable operations. It is populated
// through a RegistryBuilder before the engine starts and never mutated
// afterwards, so unlimited concurrent reads are safe without locking.
type Registry struct {
	modules map[string]*Module
}

// RegistryBuilder accumulates module registrations and validates them once
// at Build time.
type RegistryBuilder struct {
	modules []*Module
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// Register adds a module entry. Registration order is irrelevant; duplicate
// paths are rejected at Build.
func (b *RegistryBuilder) Register(m Module) *RegistryBuilder {
	b.modules = append(b.modules, &m)
	return b
}

// Build validates every registration and freezes the catalog.
func (b *RegistryBuilder) Build() (*Registry, error) {
	modules := make(map[string]*Module, len(b.modules))
	for _, m := range b.modules {
		if m.Handler == nil {
			return nil, fmt.Errorf("module %s registered without a handler", m.Path())
		}
		if !modulePathPattern.MatchString(m.Path()) {
			return nil, fmt.Errorf("invalid module path %q (want category.module.function, lowercase category/module)", m.Path())
		}
		if _, exists := modules[m.Path()]; exists {
			return nil, fmt.Errorf("duplicate module registration: %s", m.Path())
		}
		for _, p := range m.Params {
			switch p.Type {
			case "string", "number", "integer", "boolean", "object", "array":
			default:
				return nil, fmt.Errorf("module %s: parameter %s has unknown type %q", m.Path(), p.Name, p.Type)
			}
		}
		modules[m.Path()] = m
	}
	return &Registry{modules: modules}, nil
}

// Lookup returns the module bound to path, or a ModuleNotFoundError.
func (r *Registry) Lookup(path string) (*Module, error) {
	m, ok := r.modules[path]
	if !ok {
		return nil, &ModuleNotFoundError{Path: path}
	}
	return m, nil
}

// Validate reports whether path names a registered module. Callers use it
// to vet a workflow definition before accepting it.
func (r *Registry) Validate(path string) error {
	_, err := r.Lookup(path)
	return err
}

// List returns every registered module in deterministic path order.
func (r *Registry) List() []*Module {
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// ListCategory returns every module in the given category, in path order.
func (r *Registry) ListCategory(category string) []*Module {
	out := make([]*Module, 0)
	for _, m := range r.modules {
		if m.Category == category {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.modules) }
