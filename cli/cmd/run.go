package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"flowgrid/runtime"
)

var triggerJSON string

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Execute one workflow definition and print the run result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l := newLogger()
		app, err := buildApp(l)
		if err != nil {
			return err
		}

		w, err := runtime.LoadWorkflow(args[0])
		if err != nil {
			return err
		}
		if err := app.RegisterWorkflow(w); err != nil {
			return err
		}

		trigger := map[string]any{}
		if triggerJSON != "" {
			if err := json.Unmarshal([]byte(triggerJSON), &trigger); err != nil {
				return fmt.Errorf("invalid --trigger payload: %w", err)
			}
		}

		result := app.Run(context.Background(), w.Key(), trigger)
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if !result.Success {
			return fmt.Errorf("run failed at step %s", result.ErrorStep)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&triggerJSON, "trigger", "", "JSON trigger payload")
}
