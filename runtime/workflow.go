package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow is a declared automation: an ordered step list plus the trigger
// and return configuration. It is created on import and mutated only through
// the explicit update methods; the executor never writes to it.
type Workflow struct {
	Version     string         `yaml:"version" json:"version"`
	ID          string         `yaml:"id,omitempty" json:"id,omitempty"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Trigger     *Trigger       `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Config      WorkflowConfig `yaml:"config" json:"config"`
	Metadata    Metadata       `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

type WorkflowConfig struct {
	Steps         []Step `yaml:"steps" json:"steps"`
	ReturnValue   string `yaml:"returnValue,omitempty" json:"returnValue,omitempty"`
	OutputDisplay string `yaml:"outputDisplay,omitempty" json:"outputDisplay,omitempty"`
}

// Step declares one unit of work: the module path to invoke, an input tree
// whose string leaves may contain {{...}} template expressions, and the name
// its output is published under.
type Step struct {
	ID        string         `yaml:"id" json:"id"`
	Module    string         `yaml:"module" json:"module"`
	Inputs    map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	OutputAs  string         `yaml:"outputAs,omitempty" json:"outputAs,omitempty"`
	Condition string         `yaml:"condition,omitempty" json:"condition,omitempty"`
}

type Trigger struct {
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

type Metadata struct {
	RequiresCredentials []string `yaml:"requiresCredentials,omitempty" json:"requiresCredentials,omitempty"`
}

// Trigger types understood by the server and scheduler.
const (
	TriggerManual   = "manual"
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
	TriggerChat     = "chat"
)

var modulePathPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*\.[a-zA-Z][a-zA-Z0-9_]*$`)

// Key returns the identifier the workflow is registered under. Definitions
// may declare an explicit id; otherwise the name is used.
func (w *Workflow) Key() string {
	if w.ID != "" {
		return w.ID
	}
	return w.Name
}

// Validate checks the structural invariants of a definition: a name, unique
// step ids, and well-formed module paths. Graph validity (cycles, unprovided
// references) is the orchestrator's concern and is checked against the
// registry at run start.
func (w *Workflow) Validate() error {
	if w.Key() == "" {
		return fmt.Errorf("workflow has no id or name")
	}
	if len(w.Config.Steps) == 0 {
		return fmt.Errorf("workflow %s declares no steps", w.Key())
	}

	seen := make(map[string]bool, len(w.Config.Steps))
	for _, s := range w.Config.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %s: step with empty id", w.Key())
		}
		if seen[s.ID] {
			return fmt.Errorf("workflow %s: duplicate step id %q", w.Key(), s.ID)
		}
		seen[s.ID] = true
		if !modulePathPattern.MatchString(s.Module) {
			return fmt.Errorf("workflow %s: step %s: invalid module path %q (want category.module.function)", w.Key(), s.ID, s.Module)
		}
	}
	return nil
}

// UpdateTrigger replaces the trigger descriptor wholesale. Workflows shared
// through an App are only mutated under the App's lock; use App.UpdateTrigger
// there.
func (w *Workflow) UpdateTrigger(t Trigger) {
	w.Trigger = &Trigger{Type: t.Type, Config: t.Config}
}

// BindCredentials replaces the required-credential list wholesale. Workflows
// shared through an App are only mutated under the App's lock; use
// App.BindCredentials there.
func (w *Workflow) BindCredentials(platforms []string) {
	w.Metadata.RequiresCredentials = append([]string(nil), platforms...)
}

// LoadWorkflow reads a single definition from a YAML or JSON file,
// substitutes ${VAR} environment references in its input trees, and
// validates it.
func LoadWorkflow(path string) (*Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading workflow file: %w", err)
	}

	var w Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &w)
	default:
		err = yaml.Unmarshal(raw, &w)
	}
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling workflow %s: %w", path, err)
	}

	for i, s := range w.Config.Steps {
		w.Config.Steps[i].Inputs = resolveEnvVars(s.Inputs)
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// LoadWorkflowDir loads every *.yaml, *.yml and *.json definition in dir.
func LoadWorkflowDir(dir string) ([]*Workflow, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		matched, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		files = append(files, matched...)
	}

	workflows := make([]*Workflow, 0, len(files))
	for _, f := range files {
		w, err := LoadWorkflow(f)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, nil
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax.
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

func resolveEnvVars(tree map[string]any) map[string]any {
	if tree == nil {
		return nil
	}
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		out[k] = resolveEnvValue(v)
	}
	return out
}

func resolveEnvValue(value any) any {
	switch v := value.(type) {
	case string:
		matches := envVarPattern.FindStringSubmatch(v)
		if matches == nil {
			return v
		}
		if envValue, exists := os.LookupEnv(matches[1]); exists {
			return envValue
		}
		if matches[2] != "" {
			return strings.TrimPrefix(matches[2], ":")
		}
		return v
	case map[string]any:
		return resolveEnvVars(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveEnvValue(item)
		}
		return out
	default:
		return value
	}
}
