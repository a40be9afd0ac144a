package agent

import (
	"context"
	"fmt"
)

// EventType discriminates the streaming event union.
type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventToolCall   EventType = "tool-call"
	EventToolResult EventType = "tool-result"
	EventFinish     EventType = "finish"
)

// Event is one item of an agent's streamed trace. Exactly the fields for
// its type are set; Result and Err only appear on the final finish event.
// The trace is consumed by the caller for progress display and is not
// persisted by the engine.
type Event struct {
	Type       EventType       `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	ToolCall   *ToolCall       `json:"toolCall,omitempty"`
	ToolResult *ToolCallRecord `json:"toolResult,omitempty"`
	Result     *Result         `json:"result,omitempty"`
	Err        error           `json:"-"`
}

// RunStream behaves exactly like Run but emits each text delta and step
// event incrementally instead of buffering until the loop finishes. The
// channel is closed after the finish event.
func (a *Agent) RunStream(ctx context.Context, prompt string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		a.streamLoop(ctx, prompt, events)
	}()
	return events
}

func (a *Agent) streamLoop(ctx context.Context, prompt string, events chan<- Event) {
	result := Result{StopReason: StopBudgetExceeded}
	messages := []Message{{Role: RoleUser, Content: prompt}}

	for step := 0; step < a.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			a.finish(ctx, events, result, fmt.Errorf("agent cancelled: %w", err))
			return
		}

		stream, err := a.provider.ChatStream(ctx, a.request(messages))
		if err != nil {
			a.finish(ctx, events, result, fmt.Errorf("provider %s: %w", a.provider.ID(), err))
			return
		}

		var content string
		var toolCalls []ToolCall
		for chunk := range stream {
			if chunk.Err != nil {
				a.finish(ctx, events, result, chunk.Err)
				return
			}
			if chunk.Delta != "" {
				content += chunk.Delta
				if !send(ctx, events, Event{Type: EventTextDelta, Delta: chunk.Delta}) {
					return
				}
			}
			if len(chunk.ToolCalls) > 0 {
				toolCalls = chunk.ToolCalls
			}
			if chunk.Usage != nil {
				result.Usage.Add(*chunk.Usage)
			}
		}
		if content != "" {
			result.Text = content
		}

		if len(toolCalls) == 0 {
			result.StopReason = StopFinished
			a.finish(ctx, events, result, nil)
			return
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls})
		for _, call := range toolCalls {
			call := call
			if !send(ctx, events, Event{Type: EventToolCall, ToolCall: &call}) {
				return
			}
			record := a.dispatch(ctx, call)
			result.ToolCalls = append(result.ToolCalls, record)
			if !send(ctx, events, Event{Type: EventToolResult, ToolResult: &record}) {
				return
			}
			messages = append(messages, toolMessage(record))
		}
	}

	a.finish(ctx, events, result, nil)
}

func (a *Agent) finish(ctx context.Context, events chan<- Event, result Result, err error) {
	send(ctx, events, Event{Type: EventFinish, Result: &result, Err: err})
}

func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
