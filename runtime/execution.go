package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// Execution is the mutable context of exactly one workflow run: the outputs
// produced so far plus the read-only trigger and credential namespaces.
// Concurrent runs of the same workflow never share an Execution; each run
// owns its own instance, which is what makes concurrent steps safe.
//
// Between waves the orchestrator is the sole writer of the output map:
// goroutines inside a wave only read, and writes happen after the wave has
// drained, so no synchronization is needed.
type Execution struct {
	ID         string
	WorkflowID string

	trigger     map[string]any
	credentials map[string]any
	outputs     map[string]any

	ctx context.Context // real context carrying deadline/cancellation
}

// NewExecution seeds a run context from the trigger payload and the
// credential values fetched at run start. Both maps are treated as read-only
// for the lifetime of the run.
func NewExecution(workflowID string, trigger, credentials map[string]any) *Execution {
	if trigger == nil {
		trigger = map[string]any{}
	}
	if credentials == nil {
		credentials = map[string]any{}
	}
	return &Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		trigger:     trigger,
		credentials: credentials,
		outputs:     make(map[string]any),
		ctx:         context.Background(),
	}
}

// context.Context implementation delegates to the embedded ctx so that real
// timeouts and cancellations propagate through slog and module calls.

func (e *Execution) Deadline() (deadline time.Time, ok bool) { return e.ctx.Deadline() }
func (e *Execution) Done() <-chan struct{}                   { return e.ctx.Done() }
func (e *Execution) Err() error                              { return e.ctx.Err() }

func (e *Execution) Value(key any) any {
	k, ok := key.(string)
	if !ok {
		return e.ctx.Value(key)
	}
	if v, ok := e.outputs[k]; ok {
		return v
	}
	return e.ctx.Value(key)
}

// WithContext returns a shallow copy of the Execution with a new embedded
// context. Mirrors the http.Request.WithContext pattern.
func (e *Execution) WithContext(ctx context.Context) *Execution {
	copied := *e
	copied.ctx = ctx
	return &copied
}

// Output returns the value a completed step published under name.
func (e *Execution) Output(name string) (any, bool) {
	v, ok := e.outputs[name]
	return v, ok
}

// SetOutput publishes a step result. Only the orchestrator calls this, and
// only between waves.
func (e *Execution) SetOutput(name string, value any) {
	e.outputs[name] = value
}

// Trigger returns the read-only trigger payload namespace.
func (e *Execution) Trigger() map[string]any { return e.trigger }

// Credentials returns the read-only credential namespace.
func (e *Execution) Credentials() map[string]any { return e.credentials }

// Outputs returns the full output map. Callers must treat it as read-only;
// it is exposed so the return-value expression can be re-resolved against a
// finished run.
func (e *Execution) Outputs() map[string]any { return e.outputs }
