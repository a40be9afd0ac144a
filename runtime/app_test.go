package runtime

import (
	"context"
	"sync"
	"testing"
)

func testAppWithWorkflow(t *testing.T) *App {
	t.Helper()
	registry := mustRegistry(t,
		echoModule("echo", func(ctx context.Context, args map[string]any) (any, error) {
			return args["value"], nil
		}),
	)
	app := NewApp(discardLogger(), registry, StaticCredentials{
		"github": {"token": "tok"},
	})

	w := &Workflow{
		Name:    "echoer",
		Trigger: &Trigger{Type: TriggerManual},
		Config: WorkflowConfig{
			Steps: []Step{{
				ID:       "e",
				Module:   "test.mod.echo",
				Inputs:   map[string]any{"value": "{{trigger.value}}"},
				OutputAs: "out",
			}},
			ReturnValue: "{{out}}",
		},
	}
	if err := app.RegisterWorkflow(w); err != nil {
		t.Fatalf("registering workflow: %v", err)
	}
	return app
}

func TestAppUpdateTrigger(t *testing.T) {
	app := testAppWithWorkflow(t)

	before, _ := app.Workflow("echoer")
	if err := app.UpdateTrigger("echoer", Trigger{Type: TriggerSchedule, Config: map[string]any{"cron": "@hourly"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, ok := app.Workflow("echoer")
	if !ok || after.Trigger.Type != TriggerSchedule {
		t.Errorf("trigger after update: %+v", after.Trigger)
	}
	if before.Trigger.Type != TriggerManual {
		t.Errorf("earlier snapshot changed: %+v", before.Trigger)
	}

	if err := app.UpdateTrigger("nope", Trigger{Type: TriggerManual}); err == nil {
		t.Error("expected error for unknown workflow")
	}
}

func TestAppBindCredentials(t *testing.T) {
	app := testAppWithWorkflow(t)

	if err := app.BindCredentials("echoer", []string{"github"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := app.Workflow("echoer")
	if len(w.Metadata.RequiresCredentials) != 1 || w.Metadata.RequiresCredentials[0] != "github" {
		t.Errorf("bound credentials: %v", w.Metadata.RequiresCredentials)
	}

	if err := app.BindCredentials("nope", []string{"github"}); err == nil {
		t.Error("expected error for unknown workflow")
	}
}

// Runs race against trigger and credential updates; the run side works on a
// snapshot taken under the app lock, so the race detector must stay quiet and
// every run must still succeed.
func TestAppRunWhileUpdating(t *testing.T) {
	app := testAppWithWorkflow(t)

	const iterations = 50
	var wg sync.WaitGroup
	wg.Add(3)

	results := make(chan RunResult, iterations)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			results <- app.Run(context.Background(), "echoer", map[string]any{"value": "hi"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if err := app.BindCredentials("echoer", []string{"github"}); err != nil {
				t.Errorf("binding credentials: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if err := app.UpdateTrigger("echoer", Trigger{Type: TriggerManual}); err != nil {
				t.Errorf("updating trigger: %v", err)
				return
			}
		}
	}()

	wg.Wait()
	close(results)
	for r := range results {
		if !r.Success || r.Output != "hi" {
			t.Fatalf("run result: %+v", r)
		}
	}
}

func TestAppRunUnknownWorkflow(t *testing.T) {
	app := testAppWithWorkflow(t)
	result := app.Run(context.Background(), "nope", nil)
	if result.Success {
		t.Fatal("expected failure")
	}
}
