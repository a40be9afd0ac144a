package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flowgrid/runtime"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>...",
	Short: "Validate workflow definitions without executing them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l := newLogger()
		app, err := buildApp(l)
		if err != nil {
			return err
		}

		failed := false
		for _, path := range args {
			w, err := runtime.LoadWorkflow(path)
			if err == nil {
				err = app.ValidateWorkflow(w)
			}
			if err != nil {
				failed = true
				fmt.Printf("INVALID %s: %v\n", path, err)
				continue
			}
			fmt.Printf("OK      %s (%d steps)\n", path, len(w.Config.Steps))
		}
		if failed {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}
