package runtime

import "sort"

// Graph is the derived producer→consumer dependency graph of one workflow.
// An edge A→B exists when B's input tree references A's output name. It is
// rebuilt for every run and never persisted.
type Graph struct {
	steps []Step

	// requires maps step id to the output names its inputs reference.
	requires map[string]map[string]bool
	// provides maps output name to the step id that declares it.
	provides map[string]string

	completed map[string]bool
	provided  map[string]bool
}

// BuildGraph scans every step's input tree for template references and
// derives the dependency sets. Leading identifiers in the trigger/credential
// namespaces are satisfied before the run starts and contribute no edges.
func BuildGraph(steps []Step) *Graph {
	g := &Graph{
		steps:     steps,
		requires:  make(map[string]map[string]bool, len(steps)),
		provides:  make(map[string]string, len(steps)),
		completed: make(map[string]bool, len(steps)),
		provided:  make(map[string]bool),
	}

	for _, s := range steps {
		req := make(map[string]bool)
		for _, name := range CollectRefs(s.Inputs) {
			req[name] = true
		}
		if s.Condition != "" {
			for _, name := range CollectRefs(s.Condition) {
				req[name] = true
			}
		}
		g.requires[s.ID] = req
		if s.OutputAs != "" {
			g.provides[s.OutputAs] = s.ID
		}
	}
	return g
}

// Validate simulates the wave schedule without invoking anything. If at any
// point no unresolved step is ready while unresolved steps remain (a cycle,
// or a reference to an output no step provides), it returns a
// ConfigurationError listing every still-unresolvable step. Runs must fail
// here before a single step executes.
func (g *Graph) Validate(workflowID string) error {
	provided := make(map[string]bool)
	done := make(map[string]bool, len(g.steps))

	remaining := len(g.steps)
	for remaining > 0 {
		progressed := false
		for _, s := range g.steps {
			if done[s.ID] || !g.satisfied(s.ID, provided) {
				continue
			}
			done[s.ID] = true
			if s.OutputAs != "" {
				provided[s.OutputAs] = true
			}
			remaining--
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if remaining == 0 {
		return nil
	}

	var unresolved []StepIssue
	for _, s := range g.steps {
		if done[s.ID] {
			continue
		}
		missing := make([]string, 0)
		for name := range g.requires[s.ID] {
			if !provided[name] {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		unresolved = append(unresolved, StepIssue{StepID: s.ID, Missing: missing})
	}
	return &ConfigurationError{
		WorkflowID: workflowID,
		Reason:     "unschedulable steps (dependency cycle or reference to an output no step provides)",
		Unresolved: unresolved,
	}
}

// Ready returns every unresolved step whose requires set is fully provided
// by already-completed steps. Steps in one ready set form a wave and carry
// no ordering guarantee between each other.
func (g *Graph) Ready() []Step {
	var ready []Step
	for _, s := range g.steps {
		if g.completed[s.ID] {
			continue
		}
		if g.satisfied(s.ID, g.provided) {
			ready = append(ready, s)
		}
	}
	return ready
}

// MarkCompleted records a step as finished. Its output name (if any)
// becomes visible to dependents from the next wave on.
func (g *Graph) MarkCompleted(stepID string) {
	g.completed[stepID] = true
	for _, s := range g.steps {
		if s.ID == stepID && s.OutputAs != "" {
			g.provided[s.OutputAs] = true
		}
	}
}

// Remaining returns the number of steps that have not completed.
func (g *Graph) Remaining() int {
	return len(g.steps) - len(g.completed)
}

// Requires returns the sorted requires set of a step.
func (g *Graph) Requires(stepID string) []string {
	out := make([]string, 0, len(g.requires[stepID]))
	for name := range g.requires[stepID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) satisfied(stepID string, provided map[string]bool) bool {
	for name := range g.requires[stepID] {
		if !provided[name] {
			return false
		}
	}
	return true
}
