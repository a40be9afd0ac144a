// Package web registers the web.http.* modules: outbound HTTP requests
// executed with a shared resty client. Retry and timeout behavior live in
// the client configuration; the engine only observes success or failure.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"flowgrid/runtime"
)

// Config holds the HTTP pack configuration with declarative tags.
type Config struct {
	Timeout     time.Duration `json:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `json:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `json:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `json:"debug" default:"false"`
}

// RequestInput is the typed input for web.http.request.
type RequestInput struct {
	URL         string            `json:"url" validate:"required,url"`
	Method      string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers     map[string]string `json:"headers"`
	QueryParams map[string]string `json:"query"`
	Body        map[string]any    `json:"body"`
}

// RequestOutput is the typed output for web.http.request.
type RequestOutput struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	IsError    bool   `json:"isError"`
	Body       any    `json:"body"`
}

type Pack struct {
	client *resty.Client
}

func New(rawConfig map[string]any) (*Pack, error) {
	var cfg Config
	if err := runtime.InitializeConfig(&cfg, rawConfig); err != nil {
		return nil, fmt.Errorf("web pack config: %w", err)
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug)
	return &Pack{client: client}, nil
}

// Register adds the pack's modules to the registry builder.
func (p *Pack) Register(b *runtime.RegistryBuilder) {
	b.Register(runtime.Module{
		Category:    "web",
		Name:        "http",
		Function:    "request",
		Description: "Perform an HTTP request and return status and parsed JSON body",
		Params: []runtime.ParamSpec{
			{Name: "url", Type: "string", Description: "Absolute URL to call", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method (GET, POST, ...)", Required: true},
			{Name: "headers", Type: "object", Description: "Request headers"},
			{Name: "query", Type: "object", Description: "Query parameters"},
			{Name: "body", Type: "object", Description: "JSON request body"},
		},
		Handler: p.request,
	})
}

func (p *Pack) request(ctx context.Context, args map[string]any) (any, error) {
	var input RequestInput
	if err := runtime.DecodeArgs(args, &input); err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeaders(input.Headers).
		SetQueryParams(input.QueryParams).
		SetBody(input.Body).
		Execute(input.Method, input.URL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	output := RequestOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
	}
	var parsed any
	if err := json.Unmarshal(resp.Body(), &parsed); err == nil {
		output.Body = parsed
	} else {
		output.Body = string(resp.Body())
	}
	return runtime.EncodeResult(output)
}
