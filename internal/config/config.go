// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Addr                string
	DatabaseURL         string
	SpotifyClientID     string
	SpotifyClientSecret string
	RedirectURL         string
	SyncTimeout         time.Duration
	ImportMaxBytes      int64
	LogLevel            string
	LogDev              bool
}

// Parse reads configuration from environment variables, applying defaults
// for everything except credentials.
func Parse() Config {
	return Config{
		Addr:                getString("ADDR", "127.0.0.1:8080"),
		DatabaseURL:         getString("DATABASE_URL", ""),
		SpotifyClientID:     getString("SPOTIFY_ID", ""),
		SpotifyClientSecret: getString("SPOTIFY_SECRET", ""),
		RedirectURL:         getString("REDIRECT_URL", "http://127.0.0.1:8080/callback"),
		SyncTimeout:         time.Duration(getInt("SYNC_TIMEOUT_SECONDS", 30)) * time.Second,
		ImportMaxBytes:      int64(getInt("IMPORT_MAX_BYTES", 100<<20)),
		LogLevel:            getString("LOG_LEVEL", "info"),
		LogDev:              getString("LOG_DEV", "") == "1",
	}
}

// Validate reports missing required settings. Credentials are checked at
// startup so a misconfigured deployment fails immediately instead of
// surfacing as nil clients at call sites.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		return errors.New("SPOTIFY_ID and SPOTIFY_SECRET are required")
	}
	return nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
