package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flowgrid/runtime"
)

// StopReason states why the reasoning loop terminated.
type StopReason string

const (
	// StopFinished means the model produced a final answer.
	StopFinished StopReason = "finished"
	// StopBudgetExceeded means the step budget ran out before a final
	// answer. This is a defined terminal state, not an error: whatever
	// partial text exists is returned.
	StopBudgetExceeded StopReason = "step_budget_exceeded"
)

// Config controls one agent. Defaults apply on New.
type Config struct {
	System      string  `json:"system"`
	MaxSteps    int     `json:"max_steps" default:"8" validate:"gte=1"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens" default:"1024"`
}

// ToolCallRecord is the trace of one dispatched tool call.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// Result is the agent's outcome. Text is always populated with the final or
// partial answer, even when some tool calls failed along the way.
type Result struct {
	Text       string           `json:"text"`
	ToolCalls  []ToolCallRecord `json:"toolCalls"`
	Usage      Usage            `json:"usage"`
	StopReason StopReason       `json:"stopReason"`
}

// Agent is a model-driven reasoning loop over a generated tool set. The
// loop moves Reasoning → ToolDispatch → Reasoning until the model answers
// without tool calls or the step budget is exhausted.
type Agent struct {
	l        *slog.Logger
	provider Provider
	tools    []Tool
	byName   map[string]Tool
	cfg      Config
}

func New(l *slog.Logger, provider Provider, tools []Tool, cfg Config) (*Agent, error) {
	if err := runtime.InitializeConfig(&cfg, nil); err != nil {
		return nil, err
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Agent{
		l:        l,
		provider: provider,
		tools:    tools,
		byName:   byName,
		cfg:      cfg,
	}, nil
}

// Run drives the loop to a terminal state. A provider failure is terminal;
// a tool failure is not — it is fed back into the history so the model can
// adapt.
func (a *Agent) Run(ctx context.Context, prompt string) (Result, error) {
	result := Result{StopReason: StopBudgetExceeded}
	messages := []Message{{Role: RoleUser, Content: prompt}}

	for step := 0; step < a.cfg.MaxSteps; step++ {
		// Cancellation is checked at each Reasoning transition; in-flight
		// calls are never forcibly interrupted.
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("agent cancelled: %w", err)
		}

		resp, err := a.provider.Chat(ctx, a.request(messages))
		if err != nil {
			return result, fmt.Errorf("provider %s: %w", a.provider.ID(), err)
		}
		result.Usage.Add(resp.Usage)
		if resp.Content != "" {
			result.Text = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			result.StopReason = StopFinished
			return result, nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			record := a.dispatch(ctx, call)
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, toolMessage(record))
		}
	}

	a.l.InfoContext(ctx, "agent step budget exhausted", "provider", a.provider.ID(), "steps", a.cfg.MaxSteps)
	return result, nil
}

func (a *Agent) request(messages []Message) ChatRequest {
	schemas := make([]ToolSchema, len(a.tools))
	for i, t := range a.tools {
		schemas[i] = t.Schema()
	}
	return ChatRequest{
		System:      a.cfg.System,
		Messages:    messages,
		Tools:       schemas,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}
}

// dispatch executes one requested tool call. Every failure mode — unknown
// tool, invalid arguments, invocation error — is captured in the record
// instead of aborting the loop.
func (a *Agent) dispatch(ctx context.Context, call ToolCall) ToolCallRecord {
	record := ToolCallRecord{ID: call.ID, Name: call.Name, Args: call.Args}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	start := time.Now()
	defer func() {
		record.LatencyMs = time.Since(start).Milliseconds()
	}()

	tool, ok := a.byName[call.Name]
	if !ok {
		record.Error = fmt.Sprintf("unknown tool: %s", call.Name)
		return record
	}

	if err := ValidateArgs(tool.Parameters, call.Args); err != nil {
		record.Error = err.Error()
		return record
	}

	var args map[string]any
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			record.Error = fmt.Sprintf("malformed tool arguments: %v", err)
			return record
		}
	}

	result, err := tool.Invoke(ctx, args)
	if err != nil {
		a.l.WarnContext(ctx, "tool call failed", "tool", call.Name, "error", err)
		record.Error = err.Error()
		return record
	}
	record.Result = result
	return record
}

// toolMessage renders a dispatch record as the tool-result message appended
// to the history.
func toolMessage(record ToolCallRecord) Message {
	var content string
	if record.Error != "" {
		raw, _ := json.Marshal(map[string]string{"error": record.Error})
		content = string(raw)
	} else if raw, err := json.Marshal(record.Result); err == nil {
		content = string(raw)
	} else {
		content = fmt.Sprintf("%v", record.Result)
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: record.ID,
		Name:       record.Name,
	}
}
