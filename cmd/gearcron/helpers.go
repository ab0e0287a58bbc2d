package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/config"
	"github.com/sstent/gearcron/internal/db"
	"github.com/sstent/gearcron/internal/gear"
	"github.com/sstent/gearcron/internal/logging"
	"github.com/sstent/gearcron/internal/puntingform"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: w})
}

func newGearService(cfg *config.Config, logger *slog.Logger) *gear.Service {
	client := puntingform.New(cfg.PFAPIKey,
		puntingform.WithBaseURL(cfg.PFBaseURL),
		puntingform.WithTimeout(cfg.PFTimeout),
		puntingform.WithLogger(logger.With(logging.FieldComponent, "pf")),
	)
	return gear.NewService(client, logger)
}

// openStore opens the snapshot database. It returns nil when snapshots are
// disabled by an empty database_path.
func openStore(cfg *config.Config) (*db.SQLiteDatabase, error) {
	if cfg.DatabasePath == "" {
		return nil, nil
	}
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	database, err := db.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// resolveDate returns value when set, otherwise today in the configured zone.
func resolveDate(cfg *config.Config, value string, clock calendar.Clock) (string, error) {
	value = strings.TrimSpace(value)
	if value != "" {
		if _, err := calendar.ParseDate(value); err != nil {
			return "", err
		}
		return value, nil
	}
	loc, err := calendar.LoadLocation(cfg.Timezone)
	if err != nil {
		return "", err
	}
	return calendar.Today(clock, loc), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
