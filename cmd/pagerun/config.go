package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagerun/pagerun/internal/store"
)

// Config holds pagerun configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath      string `json:"db_path"`
	LogLevel    string `json:"log_level"`
	Headless    bool   `json:"headless"`
	SessionPath string `json:"session_path"`
	History     bool   `json:"history"`
}

func defaultConfig() Config {
	return Config{
		DBPath:      filepath.Join(pagerunDir(), "pagerun.db"),
		LogLevel:    "info",
		Headless:    true,
		SessionPath: filepath.Join(pagerunDir(), "session.json"),
		History:     true,
	}
}

func pagerunDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pagerun"
	}
	return filepath.Join(home, ".pagerun")
}

func settingsPath() string {
	return filepath.Join(pagerunDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("PAGERUN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PAGERUN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PAGERUN_HEADLESS"); v != "" {
		cfg.Headless = v == "true" || v == "1"
	}
	if v := os.Getenv("PAGERUN_SESSION_PATH"); v != "" {
		cfg.SessionPath = v
	}
	if v := os.Getenv("PAGERUN_HISTORY"); v != "" {
		cfg.History = v == "true" || v == "1"
	}

	return cfg
}

// openStore opens the run-history database, creating its directory and
// running migrations.
func openStore(ctx context.Context, dbPath string) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + dbPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
