package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"flowgrid/runtime"
)

func testApp(t *testing.T) *runtime.App {
	t.Helper()
	b := runtime.NewRegistryBuilder()
	b.Register(runtime.Module{
		Category: "text", Name: "string", Function: "uppercase",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			s, _ := args["value"].(string)
			return strings.ToUpper(s), nil
		},
	})
	registry, err := b.Build()
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := runtime.NewApp(l, registry, runtime.StaticCredentials{})

	manual := &runtime.Workflow{
		Name:    "greet",
		Trigger: &runtime.Trigger{Type: runtime.TriggerManual},
		Config: runtime.WorkflowConfig{
			Steps: []runtime.Step{{
				ID:       "up",
				Module:   "text.string.uppercase",
				Inputs:   map[string]any{"value": "{{trigger.name}}"},
				OutputAs: "up_out",
			}},
			ReturnValue: "{{up_out}}",
		},
	}
	if err := app.RegisterWorkflow(manual); err != nil {
		t.Fatalf("registering workflow: %v", err)
	}

	hook := &runtime.Workflow{
		Name:    "hooked",
		Trigger: &runtime.Trigger{Type: runtime.TriggerWebhook},
		Config: runtime.WorkflowConfig{
			Steps: []runtime.Step{{
				ID:       "up",
				Module:   "text.string.uppercase",
				Inputs:   map[string]any{"value": "{{trigger.body.name}}"},
				OutputAs: "up_out",
			}},
			ReturnValue: "{{up_out}}",
		},
	}
	if err := app.RegisterWorkflow(hook); err != nil {
		t.Fatalf("registering workflow: %v", err)
	}

	return app
}

func testServer(t *testing.T) *Server {
	t.Helper()
	app := testApp(t)
	return New(app.Logger(), app, nil)
}

func TestListWorkflows(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/workflows", nil)
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var entries []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d workflows, want 2", len(entries))
	}
}

func TestRunWorkflowEndpoint(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/greet/run", strings.NewReader(`{"name": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", rec.Code, rec.Body.String())
	}
	var result runtime.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !result.Success || result.Output != "HI" {
		t.Errorf("result: %+v", result)
	}
}

func TestRunWorkflowUnknownID(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/nope/run", nil)
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d, want 422", rec.Code)
	}
}

func TestWebhookRoute(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/hooked", strings.NewReader(`{"name": "web"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", rec.Code, rec.Body.String())
	}
	var result runtime.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if result.Output != "WEB" {
		t.Errorf("output: got %v, want WEB", result.Output)
	}
}

func TestUpdateTriggerEndpoint(t *testing.T) {
	s := testServer(t)

	body := `{"type": "schedule", "config": {"cron": "0 * * * *"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/workflows/greet/trigger", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", rec.Code, rec.Body.String())
	}
	w, _ := s.app.Workflow("greet")
	if w.Trigger.Type != runtime.TriggerSchedule {
		t.Errorf("trigger: %+v", w.Trigger)
	}
}

func TestChatWithoutProvider(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/agent/chat", strings.NewReader(`{"message": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}
