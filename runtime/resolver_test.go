package runtime

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

func testExecution(outputs map[string]any) *Execution {
	exec := NewExecution("wf", map[string]any{
		"name": "hi",
		"user": map[string]any{"id": float64(42)},
	}, map[string]any{
		"github": map[string]any{"token": "secret"},
	})
	for k, v := range outputs {
		exec.SetOutput(k, v)
	}
	return exec
}

func TestResolveStringWholeTemplate(t *testing.T) {
	exec := testExecution(map[string]any{
		"count":  float64(3),
		"flag":   true,
		"record": map[string]any{"id": "abc"},
		"items":  []any{"a", "b"},
	})
	r := NewResolver()

	tests := []struct {
		name     string
		expr     string
		expected any
	}{
		{
			name:     "string from trigger",
			expr:     "{{trigger.name}}",
			expected: "hi",
		},
		{
			name:     "number keeps its type",
			expr:     "{{count}}",
			expected: float64(3),
		},
		{
			name:     "boolean keeps its type",
			expr:     "{{flag}}",
			expected: true,
		},
		{
			name:     "object keeps its type",
			expr:     "{{record}}",
			expected: map[string]any{"id": "abc"},
		},
		{
			name:     "array index",
			expr:     "{{items[1]}}",
			expected: "b",
		},
		{
			name:     "credential namespace",
			expr:     "{{credential.github.token}}",
			expected: "secret",
		},
		{
			name:     "user alias for credential",
			expr:     "{{user.github.token}}",
			expected: "secret",
		},
		{
			name:     "whitespace inside braces",
			expr:     "{{ trigger.name }}",
			expected: "hi",
		},
		{
			name:     "nested trigger property",
			expr:     "{{trigger.user.id}}",
			expected: float64(42),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.ResolveString(exec, "step", tt.expr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("got %v (%T), want %v (%T)", result, result, tt.expected, tt.expected)
			}
		})
	}
}

func TestResolveStringInterpolation(t *testing.T) {
	exec := testExecution(map[string]any{
		"count":  float64(3),
		"record": map[string]any{"id": "abc"},
	})
	r := NewResolver()

	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{
			name:     "text around template",
			expr:     "hello {{trigger.name}}!",
			expected: "hello hi!",
		},
		{
			name:     "two templates",
			expr:     "{{trigger.name}}-{{count}}",
			expected: "hi-3",
		},
		{
			name:     "object renders as JSON",
			expr:     "payload: {{record}}",
			expected: `payload: {"id":"abc"}`,
		},
		{
			name:     "no templates pass through",
			expr:     "plain text",
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.ResolveString(exec, "step", tt.expr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("got %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestResolveDeepPath(t *testing.T) {
	exec := testExecution(map[string]any{
		"x": map[string]any{
			"y": []any{
				map[string]any{"z": float64(1)},
			},
		},
	})
	r := NewResolver()

	result, err := r.ResolveString(exec, "step", "{{x.y[0].z}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != float64(1) {
		t.Errorf("got %v, want 1", result)
	}
}

func TestResolveStringErrors(t *testing.T) {
	exec := testExecution(map[string]any{
		"x": map[string]any{"y": []any{"only"}},
	})
	r := NewResolver()

	tests := []struct {
		name    string
		expr    string
		segment string
	}{
		{
			name:    "unknown output",
			expr:    "{{missing}}",
			segment: "missing",
		},
		{
			name:    "missing property",
			expr:    "{{x.nope}}",
			segment: "nope",
		},
		{
			name:    "index out of range",
			expr:    "{{x.y[5]}}",
			segment: "[5]",
		},
		{
			name:    "index into non-array",
			expr:    "{{x[0]}}",
			segment: "[0]",
		},
		{
			name:    "property of scalar",
			expr:    "{{x.y[0].z}}",
			segment: "z",
		},
		{
			name:    "malformed expression",
			expr:    "{{x..y}}",
			segment: "x..y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolveString(exec, "step", tt.expr)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var resolution *ResolutionError
			if !errors.As(err, &resolution) {
				t.Fatalf("expected ResolutionError, got %T: %v", err, err)
			}
			if resolution.Segment != tt.segment {
				t.Errorf("segment: got %q, want %q", resolution.Segment, tt.segment)
			}
			if resolution.StepID != "step" {
				t.Errorf("step id: got %q, want %q", resolution.StepID, "step")
			}
		})
	}
}

func TestResolveTree(t *testing.T) {
	exec := testExecution(map[string]any{"count": float64(3)})
	r := NewResolver()

	tree := map[string]any{
		"scalar": float64(7),
		"ref":    "{{count}}",
		"nested": map[string]any{
			"greeting": "hi {{trigger.name}}",
		},
		"list": []any{"{{count}}", "literal"},
	}

	resolved, err := r.ResolveTree(exec, "step", tree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]any{
		"scalar": float64(7),
		"ref":    float64(3),
		"nested": map[string]any{
			"greeting": "hi hi",
		},
		"list": []any{float64(3), "literal"},
	}
	if !reflect.DeepEqual(resolved, expected) {
		t.Errorf("got %#v, want %#v", resolved, expected)
	}

	// The source tree must not be mutated.
	if tree["ref"] != "{{count}}" {
		t.Error("input tree was mutated")
	}
}

func TestCollectRefs(t *testing.T) {
	tree := map[string]any{
		"a": "{{first.value}}",
		"b": []any{"{{second}}", "{{trigger.name}}"},
		"c": map[string]any{
			"d": "{{credential.github.token}} and {{user.x}} and {{first}}",
		},
	}

	refs := CollectRefs(tree)
	sort.Strings(refs)
	expected := []string{"first", "second"}
	if !reflect.DeepEqual(refs, expected) {
		t.Errorf("got %v, want %v", refs, expected)
	}
}
