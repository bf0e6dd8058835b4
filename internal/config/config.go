// Package config loads server configuration from a YAML file with
// FRONTLINE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/talgya/frontline/internal/balance"
	"github.com/talgya/frontline/internal/progression"
	"github.com/talgya/frontline/internal/routes"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/trust"
	"github.com/talgya/frontline/internal/wire"
	"github.com/talgya/frontline/internal/world"
)

// Server holds the process and HTTP settings.
type Server struct {
	Port        int      `yaml:"port" env:"FRONTLINE_PORT"`
	AdminKey    string   `yaml:"admin_key" env:"FRONTLINE_ADMIN_KEY"` // empty disables admin POSTs
	LogLevel    string   `yaml:"log_level" env:"FRONTLINE_LOG_LEVEL"`
	CORSOrigins []string `yaml:"cors_origins" env:"FRONTLINE_CORS_ORIGINS" envSeparator:","`
}

// Persistence holds storage settings.
type Persistence struct {
	DBPath           string        `yaml:"db_path" env:"FRONTLINE_DB"`
	SnapshotDir      string        `yaml:"snapshot_dir" env:"FRONTLINE_SNAPSHOT_DIR"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" env:"FRONTLINE_AUTOSAVE_INTERVAL"`
	HistoryLimit     int           `yaml:"history_limit"`
	ArchiveEvery     int           `yaml:"archive_every"` // write a snapshot file every Nth autosave; 0 disables
}

// Config is the full server configuration.
type Config struct {
	Server      Server             `yaml:"server"`
	Persistence Persistence        `yaml:"persistence"`
	World       world.GenConfig    `yaml:"world"`
	Territory   territory.Config   `yaml:"territory"`
	Progression progression.Config `yaml:"progression"`
	Routes      routes.Config      `yaml:"routes"`
	Trust       trust.Config       `yaml:"trust"`
	Siege       siege.Config       `yaml:"siege"`
	Analytics   balance.Config     `yaml:"analytics"`
	Wire        wire.Config        `yaml:"wire"`
}

// Default returns every option at its standard value.
func Default() Config {
	return Config{
		Server: Server{
			Port:     8080,
			LogLevel: "info",
		},
		Persistence: Persistence{
			DBPath:           "data/frontline.db",
			SnapshotDir:      "data/snapshots",
			AutosaveInterval: 60 * time.Second,
			HistoryLimit:     24,
			ArchiveEvery:     10,
		},
		World:       world.DefaultGenConfig(),
		Territory:   territory.DefaultConfig(),
		Progression: progression.DefaultConfig(),
		Routes:      routes.DefaultConfig(),
		Trust:       trust.DefaultConfig(),
		Siege:       siege.DefaultConfig(),
		Analytics:   balance.DefaultConfig(),
		Wire:        wire.DefaultConfig(),
	}
}

// Load reads path over the defaults, then applies environment overrides. A
// missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("config file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the core cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Territory.ContestedThreshold <= c.Territory.MajorityThreshold,
		"territory.contested_threshold %.1f above majority_threshold %.1f",
		c.Territory.ContestedThreshold, c.Territory.MajorityThreshold)
	check(c.Progression.BatchInterval > 0, "progression.batch_processing_interval must be positive")
	check(c.Progression.MaxBatchSize > 0, "progression.max_batch_size must be positive")
	check(c.Routes.MaxRoutesPerFaction > 0, "routes.max_routes_per_faction must be positive")
	check(c.Routes.UpdateFrequency > 0, "routes.route_update_frequency must be positive")
	check(c.Routes.MinSecurity >= 0 && c.Routes.MinSecurity <= 1,
		"routes.min_route_security_threshold %.2f outside [0, 1]", c.Routes.MinSecurity)
	check(c.Trust.DecayInterval > 0, "trust.trust_decay_interval must be positive")
	check(c.Siege.LockDuration > 0, "siege.lock_duration must be positive")
	for _, th := range c.Siege.Thresholds {
		check(th > 0 && th < 1, "siege.dominance_thresholds entry %.2f outside (0, 1)", th)
	}
	check(c.Analytics.Interval > 0, "analytics.analytics_interval must be positive")
	check(c.Analytics.Equilibrium >= 0 && c.Analytics.Equilibrium <= 1,
		"analytics.equilibrium %.2f outside [0, 1]", c.Analytics.Equilibrium)
	check(c.Persistence.AutosaveInterval > 0, "persistence.autosave_interval must be positive")
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps Server.LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
