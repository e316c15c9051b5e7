package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/panocam/cmd"
	"github.com/smazurov/panocam/internal/api"
	"github.com/smazurov/panocam/internal/config"
	"github.com/smazurov/panocam/internal/logging"
	"github.com/smazurov/panocam/internal/metrics/exporters"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		logging.Initialize(opts.Logging())
		logger := logging.GetLogger("main")

		app, err := cmd.NewApp(opts)
		if err != nil {
			logger.Error("Failed to initialize", "error", err)
			os.Exit(1)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:   opts.AuthUsername,
			AuthPassword:   opts.AuthPassword,
			Session:        app.Session,
			Preview:        app.Preview,
			EventBus:       app.Bus,
			MetricsHandler: exporters.HTTPHandler(),
		})

		// Log levels follow the config file without a restart
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
		watcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg)
			logger.Info("Log levels reloaded", "level", cfg.Level)
		})

		hooks.OnStart(func() {
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config hot reload disabled", "path", opts.Config, "error", watchErr)
			}
			app.Stats.Start(context.Background())

			if opts.CaptureAutostart {
				if startErr := app.Session.Start(context.Background()); startErr != nil {
					logger.Error("Failed to start capture", "error", startErr)
				}
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}

			// Let a recording in progress be aborted and cleaned up
			ctx, cancel := context.WithTimeout(context.Background(), opts.RecordingFinishTimeout+5*time.Second)
			defer cancel()
			if closeErr := app.Close(ctx); closeErr != nil {
				logger.Error("Error stopping capture", "error", closeErr)
			}
		})
	})

	cli.Root().Use = "panocam"
	cli.Root().Short = "Fisheye camera unwrap, preview and recording service"
	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateUnwrapCmd())

	cli.Run()
}
