// Command frontline runs the territorial control server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/frontline/internal/api"
	"github.com/talgya/frontline/internal/config"
	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/persistence"
	"github.com/talgya/frontline/internal/wire"
	"github.com/talgya/frontline/internal/world"
)

func main() {
	configPath := flag.String("config", "frontline.yaml", "path to the YAML config file")
	restorePath := flag.String("restore", "", "restore from a snapshot archive file instead of the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("Frontline territorial control server")

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.Persistence.DBPath, cfg.Persistence.HistoryLimit)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Persistence.DBPath)

	// ── Load or Generate World State ─────────────────────────────────
	snap, err := loadSnapshot(db, *restorePath)
	if err != nil {
		slog.Error("failed to load saved state", "error", err)
		os.Exit(1)
	}

	var worldMap *world.Map
	if snap != nil {
		worldMap = snap.World()
	} else {
		slog.Info("no saved state found, generating new world...")
		worldMap = world.Generate(cfg.World)
		for t, n := range worldMap.TypeCounts() {
			slog.Info("territory type", "type", t, "count", n)
		}
	}

	core := engine.New(cfg, worldMap)
	if snap != nil {
		core.Restore(snap)
		slog.Info("world state restored", "taken_at", snap.TakenAt, "territories", len(snap.Territories))
	} else if err := db.SaveSnapshot(core.Snapshot()); err != nil {
		slog.Error("initial save failed", "error", err)
	}

	// ── Persistence ───────────────────────────────────────────────────
	archive := persistence.NewArchive(cfg.Persistence.SnapshotDir, cfg.Persistence.HistoryLimit)
	saver := persistence.NewSaver(db, archive, cfg.Persistence.ArchiveEvery)
	saver.Start()
	core.Persister = saver

	// ── Scheduler ─────────────────────────────────────────────────────
	sched := engine.NewScheduler()
	core.Schedule(sched)

	// ── Wire + HTTP API ───────────────────────────────────────────────
	hub := wire.NewHub(cfg.Wire, core.Bus, core.Territory, core.Roster)
	defer hub.Close()

	if cfg.Server.AdminKey == "" {
		slog.Warn("FRONTLINE_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Core:     core,
		Sched:    sched,
		DB:       db,
		Archive:  archive,
		Hub:      hub,
		Port:     cfg.Server.Port,
		AdminKey: cfg.Server.AdminKey,
		Origins:  cfg.Server.CORSOrigins,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := core.Stats()
	fmt.Printf("\nFrontline is up: %d territories, %d links, %d factions.\n",
		st.Territories, st.Edges, len(core.Roster))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Running... (Ctrl+C to stop)")

	sched.Run(ctx)
	slog.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api shutdown", "error", err)
	}
	if err := core.Shutdown(shutdownCtx); err != nil {
		slog.Error("final save failed", "error", err)
		return
	}

	fmt.Println("Server stopped. World state saved.")
}

// loadSnapshot reads an archive file when path is set, otherwise the last
// database snapshot. It returns nil when there is nothing to restore.
func loadSnapshot(db *persistence.DB, path string) (*engine.Snapshot, error) {
	if path == "" {
		return db.LoadSnapshot()
	}
	snap, h, err := persistence.ReadSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", path, err)
	}
	slog.Info("restoring from archive", "path", path, "taken_at", h.TakenAt, "seed", h.Seed)
	return snap, nil
}
