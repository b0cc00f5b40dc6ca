package main

import (
	"flag"
	"log/slog"
	"os"

	"annadata/internal/app"
	"annadata/internal/config"
	"annadata/internal/infrastructure"
)

func main() {
	configFile := flag.String("config", "", "YAML config file (defaults to annadata.yaml or configs/annadata.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		logger.Close()
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
