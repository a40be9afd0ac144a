// Package mathx registers the math.calc.* modules: arithmetic operations
// and a calculator that evaluates whole expressions. The calculator is the
// canonical tool for agent prompts like "compute 2+2".
package mathx

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"flowgrid/runtime"
)

// Register adds the calculator modules to the registry builder.
func Register(b *runtime.RegistryBuilder) {
	b.Register(runtime.Module{
		Category:    "math",
		Name:        "calc",
		Function:    "evaluate",
		Description: "Evaluate an arithmetic expression, e.g. \"2+2\" or \"(3*4)/2\"",
		Params: []runtime.ParamSpec{
			{Name: "expression", Type: "string", Description: "Arithmetic expression to evaluate", Required: true},
		},
		Handler: evaluate,
	})

	for name, op := range binaryOps {
		name, op := name, op
		b.Register(runtime.Module{
			Category:    "math",
			Name:        "calc",
			Function:    name,
			Description: fmt.Sprintf("Compute a %s b", name),
			Params: []runtime.ParamSpec{
				{Name: "a", Type: "number", Required: true},
				{Name: "b", Type: "number", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				a, err := numberArg(args, "a")
				if err != nil {
					return nil, err
				}
				b, err := numberArg(args, "b")
				if err != nil {
					return nil, err
				}
				return op(a, b)
			},
		})
	}
}

var binaryOps = map[string]func(a, b float64) (any, error){
	"add":      func(a, b float64) (any, error) { return a + b, nil },
	"subtract": func(a, b float64) (any, error) { return a - b, nil },
	"multiply": func(a, b float64) (any, error) { return a * b, nil },
	"divide": func(a, b float64) (any, error) {
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return a / b, nil
	},
}

func evaluate(ctx context.Context, args map[string]any) (any, error) {
	expression, ok := args["expression"].(string)
	if !ok {
		return nil, fmt.Errorf("argument 'expression' must be a string, got %T", args["expression"])
	}
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, nil)
	if err != nil {
		return nil, fmt.Errorf("error evaluating %q: %w", expression, err)
	}
	return result, nil
}

func numberArg(args map[string]any, name string) (float64, error) {
	switch v := args[name].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("argument '%s' must be a number, got %T", name, args[name])
	}
}
