package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"flowgrid/runtime"
)

// OpenAIConfig configures the OpenAI-compatible chat provider. Any endpoint
// speaking the /chat/completions dialect works (OpenAI, local inference
// servers, gateways).
type OpenAIConfig struct {
	BaseURL string        `json:"base_url" default:"https://api.openai.com/v1" validate:"url_format"`
	APIKey  string        `json:"api_key"`
	Model   string        `json:"model" validate:"required"`
	Timeout time.Duration `json:"timeout" default:"120s"`
}

// OpenAI is a Provider over the OpenAI-compatible chat completions API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *resty.Client
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if err := runtime.InitializeConfig(&cfg, nil); err != nil {
		return nil, err
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &OpenAI{cfg: cfg, client: client}, nil
}

func (p *OpenAI) ID() string { return "openai:" + p.cfg.Model }

// Wire types for the chat completions dialect.

type oaToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Tools       []oaTool    `json:"tools,omitempty"`
	Temperature float32     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type oaResponse struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAI) buildRequest(req ChatRequest, stream bool) oaRequest {
	messages := make([]oaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, oaMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			otc := oaToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = string(tc.Args)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		messages = append(messages, om)
	}

	tools := make([]oaTool, len(req.Tools))
	for i, t := range req.Tools {
		tools[i].Type = "function"
		tools[i].Function.Name = t.Name
		tools[i].Function.Description = t.Description
		tools[i].Function.Parameters = t.Parameters
	}

	return oaRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func (p *OpenAI) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var parsed oaResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(p.buildRequest(req, false)).
		SetResult(&parsed).
		SetError(&parsed).
		Post("/chat/completions")
	if err != nil {
		return ChatResponse{}, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.IsError() {
		if parsed.Error != nil {
			return ChatResponse{}, fmt.Errorf("chat request failed: %s (%s)", parsed.Error.Message, parsed.Error.Type)
		}
		return ChatResponse{}, fmt.Errorf("chat request failed: %s", resp.Status())
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("chat response has no choices")
	}

	choice := parsed.Choices[0]
	out := ChatResponse{
		Content: choice.Message.Content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// ChatStream consumes the SSE response of a streamed completion and adapts
// it to StreamChunks. Tool call fragments are accumulated by index and
// emitted on the final chunk.
func (p *OpenAI) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(p.buildRequest(req, true)).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("chat stream request failed: %w", err)
	}
	if resp.IsError() {
		resp.RawBody().Close()
		return nil, fmt.Errorf("chat stream request failed: %s", resp.Status())
	}

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		defer resp.RawBody().Close()
		p.consumeStream(ctx, bufio.NewScanner(resp.RawBody()), chunks)
	}()
	return chunks, nil
}

type oaStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// consumeStream parses SSE lines into StreamChunks. Every send races ctx so
// the goroutine exits when the consumer stops reading and cancels, instead of
// blocking on the channel forever.
func (p *OpenAI) consumeStream(ctx context.Context, scanner *bufio.Scanner, chunks chan<- StreamChunk) {
	emit := func(c StreamChunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var content string
	var finish *string
	pending := make(map[int]*ToolCall)
	order := make([]int, 0)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var event oaStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			emit(StreamChunk{Err: fmt.Errorf("malformed stream event: %w", err)})
			return
		}
		if len(event.Choices) == 0 {
			continue
		}
		choice := event.Choices[0]

		if choice.Delta.Content != "" {
			content += choice.Delta.Content
			if !emit(StreamChunk{Delta: choice.Delta.Content, Content: content}) {
				return
			}
		}
		for _, frag := range choice.Delta.ToolCalls {
			call, ok := pending[frag.Index]
			if !ok {
				call = &ToolCall{}
				pending[frag.Index] = call
				order = append(order, frag.Index)
			}
			if frag.ID != "" {
				call.ID = frag.ID
			}
			if frag.Function.Name != "" {
				call.Name = frag.Function.Name
			}
			call.Args = append(call.Args, frag.Function.Arguments...)
		}
		if choice.FinishReason != nil {
			finish = choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		emit(StreamChunk{Err: fmt.Errorf("stream read failed: %w", err)})
		return
	}

	final := StreamChunk{Content: content, FinishReason: finish}
	for _, idx := range order {
		final.ToolCalls = append(final.ToolCalls, *pending[idx])
	}
	emit(final)
}
