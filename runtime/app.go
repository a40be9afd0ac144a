package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// App ties the engine together: the module registry, the imported workflow
// definitions, the credential provider and the orchestrator. It replaces
// ambient singletons with one explicitly constructed object that is passed
// to the server, scheduler and CLI.
type App struct {
	l            *slog.Logger
	registry     *Registry
	credentials  CredentialProvider
	orchestrator *Orchestrator

	mu        sync.RWMutex
	workflows map[string]*Workflow
}

func NewApp(l *slog.Logger, registry *Registry, credentials CredentialProvider) *App {
	return &App{
		l:            l,
		registry:     registry,
		credentials:  credentials,
		orchestrator: NewOrchestrator(l, registry),
		workflows:    make(map[string]*Workflow),
	}
}

// RegisterWorkflow imports a definition after validating it structurally and
// against the registry.
func (a *App) RegisterWorkflow(w *Workflow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	for _, s := range w.Config.Steps {
		if err := a.registry.Validate(s.Module); err != nil {
			return fmt.Errorf("workflow %s: step %s: %w", w.Key(), s.ID, err)
		}
	}
	a.mu.Lock()
	a.workflows[w.Key()] = w
	a.mu.Unlock()
	return nil
}

// LoadDir imports every workflow definition in dir.
func (a *App) LoadDir(dir string) error {
	workflows, err := LoadWorkflowDir(dir)
	if err != nil {
		return err
	}
	for _, w := range workflows {
		if err := a.RegisterWorkflow(w); err != nil {
			return err
		}
	}
	a.l.Info("workflows loaded", "dir", dir, "count", len(workflows))
	return nil
}

// Workflow returns a snapshot of a registered definition by id. Updates made
// after the call are not reflected in the returned value.
func (a *App) Workflow(id string) (Workflow, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok := a.workflows[id]
	if !ok {
		return Workflow{}, false
	}
	return *w, true
}

// Workflows returns a snapshot of all registered definitions keyed by id.
func (a *App) Workflows() map[string]Workflow {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Workflow, len(a.workflows))
	for id, w := range a.workflows {
		out[id] = *w
	}
	return out
}

// UpdateTrigger replaces the trigger of a registered workflow. In-flight runs
// keep the snapshot they started with.
func (a *App) UpdateTrigger(id string, t Trigger) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.workflows[id]
	if !ok {
		return fmt.Errorf("unknown workflow: %s", id)
	}
	w.UpdateTrigger(t)
	return nil
}

// BindCredentials replaces the required-credential list of a registered
// workflow. In-flight runs keep the snapshot they started with.
func (a *App) BindCredentials(id string, platforms []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.workflows[id]
	if !ok {
		return fmt.Errorf("unknown workflow: %s", id)
	}
	w.BindCredentials(platforms)
	return nil
}

// Registry exposes the module catalog (read-only).
func (a *App) Registry() *Registry { return a.registry }

// Logger exposes the app logger for components constructed around the app.
func (a *App) Logger() *slog.Logger { return a.l }

// Credentials exposes the credential provider boundary.
func (a *App) Credentials() CredentialProvider { return a.credentials }

// Run executes a registered workflow with the given trigger payload. Each
// call owns a fresh Execution; concurrent runs of the same workflow never
// share state.
func (a *App) Run(ctx context.Context, workflowID string, trigger map[string]any) RunResult {
	w, ok := a.Workflow(workflowID)
	if !ok {
		return RunResult{Success: false, Error: fmt.Sprintf("unknown workflow: %s", workflowID)}
	}
	creds := FetchCredentials(a.credentials, w.Metadata.RequiresCredentials)
	exec := NewExecution(w.Key(), trigger, creds)
	return a.orchestrator.Execute(ctx, &w, exec)
}

// ValidateWorkflow checks a definition without executing it: structure,
// module paths, and graph schedulability.
func (a *App) ValidateWorkflow(w *Workflow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	var unknown []StepIssue
	for _, s := range w.Config.Steps {
		if err := a.registry.Validate(s.Module); err != nil {
			unknown = append(unknown, StepIssue{StepID: s.ID, Missing: []string{s.Module}})
		}
	}
	if len(unknown) > 0 {
		return &ConfigurationError{WorkflowID: w.Key(), Reason: "unknown module", Unresolved: unknown}
	}
	return BuildGraph(w.Config.Steps).Validate(w.Key())
}
