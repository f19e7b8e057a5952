// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the daemon configuration, loaded from YAML with
// environment overrides for the values that should not live in a file.
type Config struct {
	LogLevel string `yaml:"logLevel"`

	// Chat channel.
	HomeserverURL  string  `yaml:"homeserverURL"`
	AccessToken    string  `yaml:"accessToken"`
	UserID         string  `yaml:"userID"`
	RoomID         string  `yaml:"roomID"`
	SendsPerSecond float64 `yaml:"sendsPerSecond"`

	// Ledger store.
	Store                 string `yaml:"store"`
	SpreadsheetID         string `yaml:"spreadsheetID"`
	SheetName             string `yaml:"sheetName"`
	ServiceAccountKeyFile string `yaml:"serviceAccountKeyFile"`
	DatabaseURL           string `yaml:"databaseURL"`
	PersistTimeoutSeconds int    `yaml:"persistTimeoutSeconds"`

	// Overdue sweep.
	SweepIntervalHours int `yaml:"sweepIntervalHours"`

	// Operations surface.
	OpsListenAddr string `yaml:"opsListenAddr"`

	// Tracing. Empty disables the exporter.
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		LogLevel:              "info",
		Store:                 StoreSheets,
		SheetName:             "Sheet1",
		PersistTimeoutSeconds: 15,
		SweepIntervalHours:    24,
		SendsPerSecond:        5,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if v := os.Getenv("GEARLEDGER_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = strings.TrimSpace(v)
	}
	if v := os.Getenv("GEARLEDGER_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("GEARLEDGER_ROOM_ID"); v != "" {
		cfg.RoomID = strings.TrimSpace(v)
	}
	if v := os.Getenv("GEARLEDGER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("GEARLEDGER_SWEEP_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SweepIntervalHours = n
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.HomeserverURL == "" {
		return fmt.Errorf("config: homeserverURL is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("config: accessToken is required (or GEARLEDGER_ACCESS_TOKEN)")
	}
	if c.RoomID == "" {
		return fmt.Errorf("config: roomID is required")
	}
	switch c.Store {
	case StoreSheets:
		if c.SpreadsheetID == "" {
			return fmt.Errorf("config: spreadsheetID is required for the sheets store")
		}
		if c.ServiceAccountKeyFile == "" {
			return fmt.Errorf("config: serviceAccountKeyFile is required for the sheets store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: databaseURL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if c.PersistTimeoutSeconds <= 0 {
		return fmt.Errorf("config: persistTimeoutSeconds must be positive")
	}
	if c.SweepIntervalHours <= 0 {
		return fmt.Errorf("config: sweepIntervalHours must be positive")
	}
	return nil
}

// PersistTimeout returns the bound applied to each store call.
func (c Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutSeconds) * time.Second
}

// SweepInterval returns the pause between overdue sweeps.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalHours) * time.Hour
}
