package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowgrid/plugins/data"
	"flowgrid/plugins/mathx"
	"flowgrid/plugins/text"
	"flowgrid/plugins/web"
	"flowgrid/runtime"
)

var rootCmd = &cobra.Command{
	Use:   "flowgrid",
	Short: "Flowgrid - workflow automation engine",
	Long: `Flowgrid executes multi-step automations declared as data and hosts a
tool-calling agent over the same module catalog.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var (
	workflowsDir    string
	credentialsFile string
	postgresDSN     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&workflowsDir, "workflows", "workflows", "directory of workflow definitions")
	rootCmd.PersistentFlags().StringVar(&credentialsFile, "credentials", "", "YAML file of platform credentials")
	rootCmd.PersistentFlags().StringVar(&postgresDSN, "postgres-dsn", "", "enable the data.postgres modules with this connection string")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

// buildApp wires the registry, the credential provider and the app. Module
// packs register explicitly here; nothing is discovered at call time.
func buildApp(l *slog.Logger) (*runtime.App, error) {
	creds := runtime.StaticCredentials{}
	if credentialsFile != "" {
		raw, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("error reading credentials file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &creds); err != nil {
			return nil, fmt.Errorf("error unmarshalling credentials: %w", err)
		}
	}

	builder := runtime.NewRegistryBuilder()
	text.Register(builder)
	mathx.Register(builder)

	webPack, err := web.New(nil)
	if err != nil {
		return nil, err
	}
	webPack.Register(builder)

	if postgresDSN != "" {
		dataPack, err := data.New(map[string]any{"connection_string": postgresDSN})
		if err != nil {
			return nil, err
		}
		dataPack.Register(builder)
	}

	registry, err := builder.Build()
	if err != nil {
		return nil, err
	}
	l.Info("module registry built", "modules", registry.Len())

	app := runtime.NewApp(l, registry, creds)
	if _, err := os.Stat(workflowsDir); err == nil {
		if err := app.LoadDir(workflowsDir); err != nil {
			return nil, err
		}
	}
	return app, nil
}
