package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flowgrid/runtime"
	"flowgrid/runtime/agent"
	"flowgrid/server"
)

var (
	serveAddr    string
	modelName    string
	modelBaseURL string
	otlpEndpoint string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve webhook, chat and manual-run endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		l := newLogger()
		if otlpEndpoint != "" {
			telemetry, err := runtime.SetupTelemetry(cmd.Context(), runtime.TelemetryConfig{Endpoint: otlpEndpoint})
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(ctx); err != nil {
					l.Error("telemetry shutdown failed", "error", err)
				}
			}()
			l = telemetry.Logger
		}

		app, err := buildApp(l)
		if err != nil {
			return err
		}

		var provider agent.Provider
		if modelName != "" {
			provider, err = agent.NewOpenAI(agent.OpenAIConfig{
				Model:   modelName,
				BaseURL: modelBaseURL,
				APIKey:  os.Getenv("OPENAI_API_KEY"),
			})
			if err != nil {
				return err
			}
		}

		scheduler := runtime.NewScheduler(app)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()

		return server.New(l, app, provider).Run(serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&modelName, "model", "", "chat model for the agent endpoint (OPENAI_API_KEY read from env)")
	serveCmd.Flags().StringVar(&modelBaseURL, "model-base-url", "", "OpenAI-compatible endpoint base URL")
	serveCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint (host:port); telemetry export is off when empty")
}
