package agent

import (
	"context"
	"testing"

	"flowgrid/runtime"
)

func generatorRegistry(t *testing.T) *runtime.Registry {
	t.Helper()
	b := runtime.NewRegistryBuilder()
	echo := func(ctx context.Context, args map[string]any) (any, error) {
		return args, nil
	}
	b.Register(runtime.Module{
		Category: "text", Name: "string", Function: "uppercase",
		Description: "Upper case a string",
		Params:      []runtime.ParamSpec{{Name: "value", Type: "string", Required: true}},
		Handler:     echo,
	})
	b.Register(runtime.Module{Category: "text", Name: "string", Function: "trim", Handler: echo})
	b.Register(runtime.Module{Category: "web", Name: "http", Function: "request", Handler: echo})
	r, err := b.Build()
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return r
}

func toolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	return names
}

func TestToolNameRoundTrip(t *testing.T) {
	path := "text.string.uppercase"
	name := ToolName(path)
	if name != "text__string__uppercase" {
		t.Errorf("tool name: got %q", name)
	}
	if back := ModulePath(name); back != path {
		t.Errorf("round trip: got %q, want %q", back, path)
	}
}

func TestGenerateFilters(t *testing.T) {
	g := NewGenerator(generatorRegistry(t), nil)

	tests := []struct {
		name     string
		filter   Filter
		expected []string
		wantErr  bool
	}{
		{
			name:     "by names",
			filter:   Filter{Names: []string{"web.http.request"}},
			expected: []string{"web__http__request"},
		},
		{
			name:     "by category",
			filter:   Filter{Categories: []string{"text"}},
			expected: []string{"text__string__trim", "text__string__uppercase"},
		},
		{
			name:     "all",
			filter:   Filter{All: true},
			expected: []string{"text__string__trim", "text__string__uppercase", "web__http__request"},
		},
		{
			name:     "max tools caps the set",
			filter:   Filter{All: true, MaxTools: 2},
			expected: []string{"text__string__trim", "text__string__uppercase"},
		},
		{
			name:    "unknown name",
			filter:  Filter{Names: []string{"no.such.module"}},
			wantErr: true,
		},
		{
			name:    "empty filter",
			filter:  Filter{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, err := g.Generate(tt.filter)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := toolNames(tools)
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("tool %d: got %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestBindMergesCategoryCredentials(t *testing.T) {
	creds := runtime.StaticCredentials{
		"web": {"api_key": "k-123", "url": "from-creds"},
	}
	g := NewGenerator(generatorRegistry(t), creds)

	tools, err := g.Generate(Filter{Names: []string{"web.http.request"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := tools[0].Invoke(context.Background(), map[string]any{"url": "from-args"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	merged := out.(map[string]any)
	if merged["api_key"] != "k-123" {
		t.Errorf("api_key: got %v", merged["api_key"])
	}
	// Model-supplied arguments win over credential values.
	if merged["url"] != "from-args" {
		t.Errorf("url: got %v", merged["url"])
	}
}

func TestBindWithoutCredentials(t *testing.T) {
	g := NewGenerator(generatorRegistry(t), nil)
	tools, err := g.Generate(Filter{Names: []string{"text.string.uppercase"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := tools[0].Invoke(context.Background(), map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]any)["value"] != "hi" {
		t.Errorf("got %v", out)
	}
}
