package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"flowgrid/runtime"
)

// NameSep separates path parts in generated tool names. Dots are not valid
// in provider tool names, so category.module.function becomes
// category__module__function.
const NameSep = "__"

// Tool is an agent-callable projection of one registry entry: a descriptor
// the model sees plus a dynamically bound invoker. Tools are regenerated per
// agent invocation from the active filter and never persisted.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Invoke      func(ctx context.Context, args map[string]any) (any, error)
}

// Schema returns the provider-facing descriptor for the tool.
func (t Tool) Schema() ToolSchema {
	return ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// Filter selects which registry entries are projected into tools: an
// explicit name list, an explicit category list, or everything. MaxTools
// bounds the descriptor count to keep prompts small; zero means unbounded.
type Filter struct {
	Names      []string
	Categories []string
	All        bool
	MaxTools   int
}

// Generator projects registry entries into tools, binding each invoker to
// the registry and merging the originating category's credentials at call
// time.
type Generator struct {
	registry    *runtime.Registry
	credentials runtime.CredentialProvider
}

func NewGenerator(registry *runtime.Registry, credentials runtime.CredentialProvider) *Generator {
	return &Generator{registry: registry, credentials: credentials}
}

// Generate builds the tool set for one agent invocation.
func (g *Generator) Generate(filter Filter) ([]Tool, error) {
	var modules []*runtime.Module
	switch {
	case len(filter.Names) > 0:
		for _, path := range filter.Names {
			m, err := g.registry.Lookup(path)
			if err != nil {
				return nil, err
			}
			modules = append(modules, m)
		}
	case len(filter.Categories) > 0:
		for _, category := range filter.Categories {
			modules = append(modules, g.registry.ListCategory(category)...)
		}
	case filter.All:
		modules = g.registry.List()
	default:
		return nil, fmt.Errorf("tool filter selects nothing: set Names, Categories or All")
	}

	if filter.MaxTools > 0 && len(modules) > filter.MaxTools {
		modules = modules[:filter.MaxTools]
	}

	tools := make([]Tool, 0, len(modules))
	for _, m := range modules {
		tools = append(tools, g.bind(m))
	}
	return tools, nil
}

func (g *Generator) bind(m *runtime.Module) Tool {
	path := m.Path()
	category := m.Category
	return Tool{
		Name:        ToolName(path),
		Description: m.Description,
		Parameters:  BuildParamsSchema(m.Params),
		Invoke: func(ctx context.Context, args map[string]any) (any, error) {
			// Resolve through the registry at call time; the descriptor
			// never caches the handler.
			module, err := g.registry.Lookup(path)
			if err != nil {
				return nil, err
			}
			merged := args
			if g.credentials != nil {
				if values, ok := g.credentials.Resolve(category); ok {
					merged = make(map[string]any, len(args)+len(values))
					for k, v := range values {
						merged[k] = v
					}
					for k, v := range args {
						merged[k] = v
					}
				}
			}
			return module.Handler(ctx, merged)
		},
	}
}

// ToolName converts a module path to a provider-safe tool name.
func ToolName(path string) string {
	return strings.ReplaceAll(path, ".", NameSep)
}

// ModulePath converts a generated tool name back to its module path.
func ModulePath(toolName string) string {
	return strings.ReplaceAll(toolName, NameSep, ".")
}
