// Package text registers the text.string.* modules: pure string transforms
// used by automations and available to the agent.
package text

import (
	"context"
	"fmt"
	"strings"

	"flowgrid/runtime"
)

// Register adds the string transform modules to the registry builder.
func Register(b *runtime.RegistryBuilder) {
	b.Register(runtime.Module{
		Category:    "text",
		Name:        "string",
		Function:    "uppercase",
		Description: "Convert a string to upper case",
		Params: []runtime.ParamSpec{
			{Name: "value", Type: "string", Description: "String to convert", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			value, err := stringArg(args, "value")
			if err != nil {
				return nil, err
			}
			return strings.ToUpper(value), nil
		},
	})

	b.Register(runtime.Module{
		Category:    "text",
		Name:        "string",
		Function:    "lowercase",
		Description: "Convert a string to lower case",
		Params: []runtime.ParamSpec{
			{Name: "value", Type: "string", Description: "String to convert", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			value, err := stringArg(args, "value")
			if err != nil {
				return nil, err
			}
			return strings.ToLower(value), nil
		},
	})

	b.Register(runtime.Module{
		Category:    "text",
		Name:        "string",
		Function:    "trim",
		Description: "Trim leading and trailing whitespace from a string",
		Params: []runtime.ParamSpec{
			{Name: "value", Type: "string", Description: "String to trim", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			value, err := stringArg(args, "value")
			if err != nil {
				return nil, err
			}
			return strings.TrimSpace(value), nil
		},
	})

	b.Register(runtime.Module{
		Category:    "text",
		Name:        "string",
		Function:    "join",
		Description: "Join a list of values into one string with a separator",
		Params: []runtime.ParamSpec{
			{Name: "values", Type: "array", Description: "Values to join", Required: true},
			{Name: "separator", Type: "string", Description: "Separator between values"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			values, ok := args["values"].([]any)
			if !ok {
				return nil, fmt.Errorf("argument 'values' must be an array, got %T", args["values"])
			}
			separator, _ := args["separator"].(string)
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = fmt.Sprintf("%v", v)
			}
			return strings.Join(parts, separator), nil
		},
	})
}

func stringArg(args map[string]any, name string) (string, error) {
	value, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("argument '%s' must be a string, got %T", name, args[name])
	}
	return value, nil
}
