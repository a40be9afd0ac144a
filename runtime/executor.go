package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StepExecutor executes a single workflow step: module lookup, input
// resolution, optional condition gate, invocation. It never writes to the
// Execution; publishing the output is the orchestrator's job so that waves
// keep a single writer.
type StepExecutor struct {
	l        *slog.Logger
	registry *Registry
	resolver *Resolver
}

func NewStepExecutor(l *slog.Logger, registry *Registry, resolver *Resolver) *StepExecutor {
	return &StepExecutor{
		l:        l,
		registry: registry,
		resolver: resolver,
	}
}

// Execute runs one step against the run context. skipped reports that the
// step's condition evaluated to false; the step then completes without
// producing an output. Failures are wrapped with the step id and module
// path; the executor never retries — resilience is the concern of the
// operation itself.
func (e *StepExecutor) Execute(ctx context.Context, exec *Execution, step Step) (output any, skipped bool, err error) {
	ctx, span := tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.module", step.Module),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	module, err := e.registry.Lookup(step.Module)
	if err != nil {
		return nil, false, err
	}

	if step.Condition != "" {
		met, err := e.evalCondition(exec, step)
		if err != nil {
			// Wrapped so the run result can name the failing step.
			return nil, false, &InvocationError{StepID: step.ID, Module: step.Module, Err: err}
		}
		if !met {
			e.l.InfoContext(exec, "skipping step, condition not met", "run", exec.ID, "step", step.ID)
			return nil, true, nil
		}
	}

	args, err := e.resolver.ResolveTree(exec, step.ID, step.Inputs)
	if err != nil {
		return nil, false, err
	}

	e.l.InfoContext(exec, "invoking module", "run", exec.ID, "step", step.ID, "module", module.Path())
	result, err := module.Handler(ctx, args)
	if err != nil {
		return nil, false, &InvocationError{StepID: step.ID, Module: step.Module, Err: err}
	}
	return result, false, nil
}

// evalCondition evaluates a step's condition expression. Template references
// inside the condition are resolved first and bound as generated variables,
// so conditions can test prior outputs and trigger data with the same
// {{...}} syntax as inputs.
func (e *StepExecutor) evalCondition(exec *Execution, step Step) (bool, error) {
	env := map[string]any{
		"trigger":    exec.Trigger(),
		"credential": exec.Credentials(),
	}
	for name, value := range exec.Outputs() {
		env[name] = value
	}

	cond := step.Condition
	matches := templatePattern.FindAllStringSubmatchIndex(cond, -1)
	if len(matches) > 0 {
		var rewritten []byte
		last := 0
		for i, m := range matches {
			value, err := e.resolver.resolveReference(exec, step.ID, cond[m[2]:m[3]])
			if err != nil {
				return false, err
			}
			name := fmt.Sprintf("_v%d", i)
			env[name] = value
			rewritten = append(rewritten, cond[last:m[0]]...)
			rewritten = append(rewritten, name...)
			last = m[1]
		}
		rewritten = append(rewritten, cond[last:]...)
		cond = string(rewritten)
	}

	program, err := expr.Compile(cond, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("error compiling condition %q: %w", step.Condition, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("error evaluating condition %q: %w", step.Condition, err)
	}
	met, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, expected boolean", step.Condition, result)
	}
	return met, nil
}
