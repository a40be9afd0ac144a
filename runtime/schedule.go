package runtime

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler fires workflows with schedule triggers. Each firing seeds a run
// with an empty trigger payload; overlapping firings are independent runs
// with independent Executions.
type Scheduler struct {
	app  *App
	cron *cron.Cron
}

func NewScheduler(app *App) *Scheduler {
	return &Scheduler{app: app, cron: cron.New()}
}

// Start registers every schedule-triggered workflow and starts the cron
// loop. The cron expression lives in the trigger config under "cron".
func (s *Scheduler) Start() error {
	for id, w := range s.app.Workflows() {
		if w.Trigger == nil || w.Trigger.Type != TriggerSchedule {
			continue
		}
		spec, _ := w.Trigger.Config["cron"].(string)
		if spec == "" {
			return fmt.Errorf("workflow %s: schedule trigger without cron expression", id)
		}

		id := id
		_, err := s.cron.AddFunc(spec, func() {
			result := s.app.Run(context.Background(), id, map[string]any{})
			if !result.Success {
				s.app.Logger().Error("scheduled run failed", "workflow", id, "step", result.ErrorStep, "error", result.Error)
				return
			}
			s.app.Logger().Info("scheduled run completed", "workflow", id)
		})
		if err != nil {
			return fmt.Errorf("workflow %s: invalid cron expression %q: %w", id, spec, err)
		}
		s.app.Logger().Info("schedule registered", "workflow", id, "cron", spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop; in-flight runs drain on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
