package agent

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewOpenAIConfig(t *testing.T) {
	p, err := NewOpenAI(OpenAIConfig{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.cfg.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url default: %q", p.cfg.BaseURL)
	}
	if p.cfg.Timeout != 120*time.Second {
		t.Errorf("timeout default: %v", p.cfg.Timeout)
	}

	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Error("expected validation error without model")
	}
}

func sseScanner(lines ...string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func TestConsumeStream(t *testing.T) {
	scanner := sseScanner(
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"calc","arguments":"{\"a\""}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":1}"}}]},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	)

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		(&OpenAI{}).consumeStream(context.Background(), scanner, chunks)
	}()

	var got []StreamChunk
	for c := range chunks {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		got = append(got, c)
	}
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(got), got)
	}
	if got[0].Delta != "Hel" || got[1].Delta != "lo" || got[1].Content != "Hello" {
		t.Errorf("delta chunks: %+v", got[:2])
	}

	final := got[2]
	if final.Content != "Hello" {
		t.Errorf("final content: %q", final.Content)
	}
	if final.FinishReason == nil || *final.FinishReason != "tool_calls" {
		t.Errorf("finish reason: %v", final.FinishReason)
	}
	if len(final.ToolCalls) != 1 {
		t.Fatalf("tool calls: %+v", final.ToolCalls)
	}
	call := final.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "calc" || string(call.Args) != `{"a":1}` {
		t.Errorf("assembled call: %+v", call)
	}
}

func TestConsumeStreamMalformedEvent(t *testing.T) {
	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		(&OpenAI{}).consumeStream(context.Background(), sseScanner(`data: {not json`), chunks)
	}()

	c, ok := <-chunks
	if !ok || c.Err == nil {
		t.Fatalf("expected error chunk, got %+v (ok=%v)", c, ok)
	}
	if _, open := <-chunks; open {
		t.Error("expected channel closed after error chunk")
	}
}

// The consumer may abandon the channel mid-stream. With the context cancelled
// and nobody reading, the producer must return instead of blocking on a full
// channel.
func TestConsumeStreamStopsWhenCancelled(t *testing.T) {
	lines := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		lines = append(lines, `data: {"choices":[{"delta":{"content":"x"}}]}`)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks := make(chan StreamChunk, 16)
	done := make(chan struct{})
	go func() {
		(&OpenAI{}).consumeStream(ctx, sseScanner(lines...), chunks)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumeStream still running after cancellation")
	}
}
