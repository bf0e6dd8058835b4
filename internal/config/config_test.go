package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Server.Port != def.Server.Port || cfg.Progression.BatchInterval != 5*time.Second {
		t.Fatalf("defaults not applied: %+v", cfg.Server)
	}
	if cfg.Routes.MaxRoutesPerFaction != 50 || cfg.Siege.LockDuration != 300*time.Second {
		t.Fatalf("component defaults: routes %+v siege %+v", cfg.Routes, cfg.Siege)
	}
	if cfg.Analytics.DecayHalfLife != time.Hour || cfg.Analytics.Equilibrium != 0.5 {
		t.Fatalf("analytics defaults: %+v", cfg.Analytics)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frontline.yaml")
	data := `
server:
  port: 9090
progression:
  batch_processing_interval: 2s
  tier_thresholds:
    warlord: 12000
routes:
  max_routes_per_faction: 12
siege:
  dominance_thresholds: [0.3, 0.6]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port: got %d", cfg.Server.Port)
	}
	if cfg.Progression.BatchInterval != 2*time.Second {
		t.Fatalf("batch interval: got %s", cfg.Progression.BatchInterval)
	}
	if cfg.Progression.TierThresholds["warlord"] != 12000 || cfg.Progression.TierThresholds["elite"] != 2500 {
		t.Fatalf("tier thresholds: %v", cfg.Progression.TierThresholds)
	}
	if cfg.Routes.MaxRoutesPerFaction != 12 || cfg.Routes.MinSecurity != 0.3 {
		t.Fatalf("routes: %+v", cfg.Routes)
	}
	if len(cfg.Siege.Thresholds) != 2 || cfg.Siege.Thresholds[1] != 0.6 {
		t.Fatalf("thresholds: %v", cfg.Siege.Thresholds)
	}
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frontline.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRONTLINE_PORT", "7000")
	t.Setenv("FRONTLINE_DB", "/tmp/x.db")
	t.Setenv("FRONTLINE_SEED", "99")
	t.Setenv("FRONTLINE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Persistence.DBPath != "/tmp/x.db" || cfg.World.Seed != 99 {
		t.Fatalf("env overrides: %+v %+v seed %d", cfg.Server, cfg.Persistence, cfg.World.Seed)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("log level: %v", cfg.SlogLevel())
	}
}

func TestLoad_Rejects(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("malformed yaml: got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("routes:\n  min_route_security_threshold: 1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); err == nil || !strings.Contains(err.Error(), "min_route_security_threshold") {
		t.Fatalf("out of range: got %v", err)
	}
}
