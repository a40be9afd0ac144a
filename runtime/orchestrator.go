package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// RunState is the orchestrator's lifecycle for one run.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// RunResult is the outward-facing outcome of a run. On failure ErrorStep
// names the first failing step; outputs already written by earlier waves are
// kept in the Execution for diagnostics but are never exposed as a
// successful result.
type RunResult struct {
	Success   bool   `json:"success"`
	Output    any    `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorStep string `json:"errorStep,omitempty"`
}

// Orchestrator drives a workflow run wave by wave: every ready step in a
// wave is dispatched concurrently, the wave drains, its outputs are
// published, and readiness is recomputed. It is stateless across runs and
// safe for concurrent use.
type Orchestrator struct {
	l        *slog.Logger
	registry *Registry
	resolver *Resolver
	executor *StepExecutor
}

func NewOrchestrator(l *slog.Logger, registry *Registry) *Orchestrator {
	resolver := NewResolver()
	return &Orchestrator{
		l:        l,
		registry: registry,
		resolver: resolver,
		executor: NewStepExecutor(l, registry, resolver),
	}
}

type waveResult struct {
	step    Step
	output  any
	skipped bool
	err     error
}

// Run executes the workflow to completion or first failure. The graph and
// every module path are validated before a single step is invoked; an
// invalid graph never partially executes.
func (o *Orchestrator) Run(ctx context.Context, wf *Workflow, exec *Execution) error {
	state := StateIdle

	var unknown []StepIssue
	for _, s := range wf.Config.Steps {
		if err := o.registry.Validate(s.Module); err != nil {
			unknown = append(unknown, StepIssue{StepID: s.ID, Missing: []string{s.Module}})
		}
	}
	if len(unknown) > 0 {
		return &ConfigurationError{WorkflowID: wf.Key(), Reason: "unknown module", Unresolved: unknown}
	}

	graph := BuildGraph(wf.Config.Steps)
	if err := graph.Validate(wf.Key()); err != nil {
		return err
	}

	state = StateRunning
	o.l.InfoContext(exec, "run started", "run", exec.ID, "workflow", wf.Key(), "steps", len(wf.Config.Steps))

	for graph.Remaining() > 0 {
		// Cancellation is cooperative: checked at wave boundaries only.
		if err := ctx.Err(); err != nil {
			state = StateFailed
			o.l.InfoContext(exec, "run cancelled", "run", exec.ID, "state", state)
			return fmt.Errorf("run cancelled: %w", err)
		}

		ready := graph.Ready()
		if len(ready) == 0 {
			// Validate catches this before execution; kept as a guard so a
			// scheduling bug can never hang the loop.
			state = StateFailed
			return graph.Validate(wf.Key())
		}

		results := make([]waveResult, len(ready))
		var wave errgroup.Group
		for i, s := range ready {
			i, s := i, s
			wave.Go(func() error {
				output, skipped, err := o.executor.Execute(ctx, exec, s)
				results[i] = waveResult{step: s, output: output, skipped: skipped, err: err}
				return err
			})
		}
		// Wait drains the whole wave and carries the first failure.
		waveErr := wave.Wait()

		// Publish the wave's outputs. The orchestrator is the sole writer
		// between waves; successful outputs are kept even when a sibling
		// failed, for diagnostics.
		for _, r := range results {
			if r.err != nil {
				continue
			}
			graph.MarkCompleted(r.step.ID)
			if !r.skipped && r.step.OutputAs != "" {
				exec.SetOutput(r.step.OutputAs, r.output)
			}
		}

		if waveErr != nil {
			state = StateFailed
			o.l.ErrorContext(exec, "run failed", "run", exec.ID, "state", state, "error", waveErr)
			return waveErr
		}
	}

	state = StateCompleted
	o.l.InfoContext(exec, "run completed", "run", exec.ID, "state", state)
	return nil
}

// Execute runs the workflow and folds the outcome into a RunResult,
// resolving the declared return-value expression against the completed
// context. Resolution is a pure read, so re-resolving a finished run yields
// the same value.
func (o *Orchestrator) Execute(ctx context.Context, wf *Workflow, exec *Execution) RunResult {
	ctx, span := tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", wf.Key()),
		attribute.String("run.id", exec.ID),
	))
	defer span.End()

	var result RunResult
	if err := o.Run(ctx, wf, exec); err != nil {
		span.RecordError(err)
		result = RunResult{Success: false, Error: err.Error(), ErrorStep: failingStep(err)}
	} else if output, err := o.ReturnValue(wf, exec); err != nil {
		span.RecordError(err)
		result = RunResult{Success: false, Error: err.Error(), ErrorStep: failingStep(err)}
	} else {
		result = RunResult{Success: true, Output: output}
	}

	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	runCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", result.Success)))
	return result
}

// ReturnValue resolves the workflow's declared return-value expression
// against a finished run context.
func (o *Orchestrator) ReturnValue(wf *Workflow, exec *Execution) (any, error) {
	if wf.Config.ReturnValue == "" {
		return nil, nil
	}
	return o.resolver.ResolveString(exec, "returnValue", wf.Config.ReturnValue)
}

func failingStep(err error) string {
	var invocation *InvocationError
	if errors.As(err, &invocation) {
		return invocation.StepID
	}
	var resolution *ResolutionError
	if errors.As(err, &resolution) {
		return resolution.StepID
	}
	return ""
}
