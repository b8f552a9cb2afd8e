// Command soundprint runs the listening-stats sync service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/soundprint/soundprint/internal/config"
	"github.com/soundprint/soundprint/internal/db"
	"github.com/soundprint/soundprint/internal/importer"
	"github.com/soundprint/soundprint/internal/logging"
	"github.com/soundprint/soundprint/internal/sync"
	"github.com/soundprint/soundprint/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best-effort: a missing .env just means plain environment variables.
	_ = godotenv.Load()

	cfg := config.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	imp := importer.New(database.Events(), logger)
	syncSvc := sync.New(database.Users(), database.Snapshots(), logger, sync.WithTimeout(cfg.SyncTimeout))

	server := web.NewServer(web.ServerConfig{
		Addr:           cfg.Addr,
		ClientID:       cfg.SpotifyClientID,
		ClientSecret:   cfg.SpotifyClientSecret,
		RedirectURL:    cfg.RedirectURL,
		ImportMaxBytes: cfg.ImportMaxBytes,
		Database:       database,
		Importer:       imp,
		Sync:           syncSvc,
		Logger:         logger,
	})

	return server.Run()
}
