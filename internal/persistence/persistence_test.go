package persistence

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/frontline/internal/config"
	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/world"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openDB(t *testing.T, historyLimit int) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "frontline.db"), historyLimit)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// busyCore returns a core with contested territory, a pledge, and a siege.
func busyCore(t *testing.T) *engine.Core {
	t.Helper()
	cfg := config.Default()
	cfg.World = world.SmallTestConfig()
	c := engine.New(cfg, world.Generate(cfg.World))
	c.SetClock(func() time.Time { return epoch })

	id := c.Territory.All()[0].ID
	if err := c.Territory.ApplyInfluence(id, 3, 60); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := c.Territory.ApplyInfluence(id, 5, 35); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := c.Trust.RecordPledge(10, 20); err != nil {
		t.Fatalf("pledge: %v", err)
	}
	if _, err := c.Sieges.Start(siege.Plan{
		Territory:       id,
		Attackers:       []social.FactionID{5},
		Defenders:       []social.FactionID{3},
		AttackerTickets: 10,
		DefenderTickets: 10,
	}); err != nil {
		t.Fatalf("start siege: %v", err)
	}
	c.Analyst.Cycle()
	return c
}

func sameSections(t *testing.T, want, got *engine.Snapshot) {
	t.Helper()
	sections := map[string][2]any{
		"territories": {want.Territories, got.Territories},
		"progression": {want.Progression, got.Progression},
		"routes":      {want.Routes, got.Routes},
		"trust":       {want.Trust, got.Trust},
		"sieges":      {want.Sieges, got.Sieges},
		"balance":     {want.Balance, got.Balance},
		"integrity":   {want.Integrity, got.Integrity},
		"events":      {want.Events, got.Events},
	}
	for name, pair := range sections {
		a, _ := json.Marshal(pair[0])
		b, _ := json.Marshal(pair[1])
		if string(a) != string(b) {
			t.Fatalf("%s differ:\n got %s\nwant %s", name, b, a)
		}
	}
}

func TestLoadSnapshot_Empty(t *testing.T) {
	db := openDB(t, 0)
	snap, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap != nil {
		t.Fatalf("empty database should load nothing, got %+v", snap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openDB(t, 0)
	c := busyCore(t)
	snap := c.Snapshot()
	if err := db.SaveSnapshot(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("nothing loaded")
	}
	if loaded.Seed != snap.Seed || loaded.Radius != snap.Radius || !loaded.TakenAt.Equal(snap.TakenAt) {
		t.Fatalf("meta: got seed=%d radius=%d at=%v", loaded.Seed, loaded.Radius, loaded.TakenAt)
	}
	if len(loaded.Links) != len(snap.Links) {
		t.Fatalf("links: got %d want %d", len(loaded.Links), len(snap.Links))
	}

	restored := engine.New(c.Config(), loaded.World())
	restored.SetClock(func() time.Time { return epoch })
	restored.Restore(loaded)
	sameSections(t, c.Snapshot(), restored.Snapshot())

	// Saving again replaces rows rather than duplicating them.
	if err := db.SaveSnapshot(restored.Snapshot()); err != nil {
		t.Fatalf("second save: %v", err)
	}
	again, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(again.Territories) != len(snap.Territories) || len(again.Events) != len(snap.Events) {
		t.Fatalf("second save: %d territories, %d events", len(again.Territories), len(again.Events))
	}
}

func TestRecentEvents(t *testing.T) {
	db := openDB(t, 0)
	c := busyCore(t)
	snap := c.Snapshot()
	if err := db.SaveSnapshot(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := db.RecentEvents(2)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events want 2", len(got))
	}
	last := snap.Events[len(snap.Events)-1]
	if got[1].Seq != last.Seq || got[0].Seq >= got[1].Seq {
		t.Fatalf("order: got seq %d, %d (last %d)", got[0].Seq, got[1].Seq, last.Seq)
	}
	if got[1].Topic != last.Topic {
		t.Fatalf("topic: got %s want %s", got[1].Topic, last.Topic)
	}
}

func TestHistory(t *testing.T) {
	db := openDB(t, 2)
	c := busyCore(t)
	for i := 0; i < 3; i++ {
		snap := c.Snapshot()
		snap.TakenAt = epoch.Add(time.Duration(i) * time.Minute)
		if err := db.SaveSnapshot(snap); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	hist, err := db.History()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history should keep 2 entries, got %d", len(hist))
	}
	if !hist[0].TakenAt.Equal(epoch.Add(2 * time.Minute)) {
		t.Fatalf("newest first: got %v", hist[0].TakenAt)
	}
	if hist[0].Size <= 0 || hist[0].Size >= hist[0].RawSize {
		t.Fatalf("sizes: raw=%d stored=%d", hist[0].RawSize, hist[0].Size)
	}

	snap, err := db.LoadHistory(hist[1].ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if !snap.TakenAt.Equal(epoch.Add(time.Minute)) || len(snap.Territories) == 0 {
		t.Fatalf("loaded history entry: at=%v territories=%d", snap.TakenAt, len(snap.Territories))
	}
	if _, err := db.LoadHistory(999); err == nil {
		t.Fatal("unknown history id should fail")
	}
}

func TestArchive(t *testing.T) {
	ar := NewArchive(filepath.Join(t.TempDir(), "snapshots"), 2)
	if p, err := ar.Latest(); err != nil || p != "" {
		t.Fatalf("empty archive: %q, %v", p, err)
	}

	c := busyCore(t)
	var last *engine.Snapshot
	for i := 0; i < 3; i++ {
		last = c.Snapshot()
		last.TakenAt = epoch.Add(time.Duration(i) * time.Hour)
		if _, err := ar.Write(last); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	files, err := ar.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("archive should keep 2 files, got %d", len(files))
	}

	latest, err := ar.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	snap, h, err := ReadSnapshot(latest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Version != engine.SnapshotVersion || h.Territories != len(last.Territories) || h.Seed != last.Seed {
		t.Fatalf("header: %+v", h)
	}
	if !snap.TakenAt.Equal(last.TakenAt) {
		t.Fatalf("taken at: got %v want %v", snap.TakenAt, last.TakenAt)
	}
	sameSections(t, last, snap)
}

func TestSaver_Flush(t *testing.T) {
	db := openDB(t, 0)
	ar := NewArchive(filepath.Join(t.TempDir(), "snapshots"), 0)
	s := NewSaver(db, ar, 1)
	s.Start()

	c := busyCore(t)
	c.Persister = s
	if err := s.Flush(context.Background(), c.Snapshot()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if s.Saves() < 1 || s.Err() != nil {
		t.Fatalf("saves=%d err=%v", s.Saves(), s.Err())
	}
	if s.Submit(c.Snapshot()) {
		t.Fatal("submit after flush should be refused")
	}

	loaded, err := db.LoadSnapshot()
	if err != nil || loaded == nil {
		t.Fatalf("load after flush: %v", err)
	}
	files, err := ar.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != s.Saves() {
		t.Fatalf("archive every save: got %d files for %d saves", len(files), s.Saves())
	}
}

func TestSaver_Autosave(t *testing.T) {
	db := openDB(t, 0)
	s := NewSaver(db, nil, 0)
	s.Start()
	c := busyCore(t)
	c.Persister = s

	if !c.Autosave() {
		t.Fatal("first autosave should be queued")
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Saves() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Saves() != 1 {
		t.Fatalf("worker saves: got %d want 1", s.Saves())
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if s.Saves() != 2 {
		t.Fatalf("shutdown should write a final snapshot, saves=%d", s.Saves())
	}
}
