package runtime

import (
	"fmt"
	"strings"
)

// StepIssue describes one step that could not be scheduled: the names it
// still requires and which of those no step in the workflow provides.
type StepIssue struct {
	StepID  string   `json:"step"`
	Missing []string `json:"missing"`
}

func (i StepIssue) String() string {
	return fmt.Sprintf("%s (missing: %s)", i.StepID, strings.Join(i.Missing, ", "))
}

// ConfigurationError reports an invalid workflow graph: a dependency cycle,
// a reference to an output no step provides, or an unknown module path.
// It is always raised before any step is invoked.
type ConfigurationError struct {
	WorkflowID string
	Reason     string
	Unresolved []StepIssue
}

func (e *ConfigurationError) Error() string {
	if len(e.Unresolved) == 0 {
		return fmt.Sprintf("workflow %s: %s", e.WorkflowID, e.Reason)
	}
	issues := make([]string, len(e.Unresolved))
	for i, u := range e.Unresolved {
		issues[i] = u.String()
	}
	return fmt.Sprintf("workflow %s: %s: %s", e.WorkflowID, e.Reason, strings.Join(issues, "; "))
}

// ResolutionError reports a template expression that could not be resolved
// against the run context. Segment names the first unresolvable part of the
// property chain so the failure is never silently swallowed into an empty
// value.
type ResolutionError struct {
	StepID     string
	Expression string
	Segment    string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("step %s: cannot resolve {{%s}} at %q: %s", e.StepID, e.Expression, e.Segment, e.Reason)
}

// InvocationError wraps a module operation failure with the step that
// invoked it. The orchestrator treats it as terminal for the run.
type InvocationError struct {
	StepID string
	Module string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.StepID, e.Module, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError reports a lookup for a module path that is not in the
// registry.
type ModuleNotFoundError struct {
	Path string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module not found: %s", e.Path)
}
