package main

import (
	"context"
	"log/slog"
	"os"

	"gridd.sh/internal/config"
	"gridd.sh/internal/observability"
	"gridd.sh/internal/server"
	"gridd.sh/internal/version"
)

func main() {
	cfgPath := os.Getenv("GRIDD_CONFIG")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.With("error", err).Error("Failed to load config")
		os.Exit(1)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "gridd",
		Version:     version.Version,
	})
	defer logger.Sync()

	slog.With("version", version.GetVersion()).Info("Starting grid monitoring daemon")

	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		slog.With("error", err).Error("Failed to initialize server")
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		slog.With("error", err).Error("Server failed")
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
