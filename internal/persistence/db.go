// Package persistence stores core snapshots in SQLite, keeps a compressed
// snapshot history, and writes zstd archive files.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/progression"
	"github.com/talgya/frontline/internal/routes"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/trust"
)

const (
	// feedLimit is how many events a loaded snapshot carries back into the feed.
	feedLimit = 1000
	// eventRetention bounds the events table.
	eventRetention = 10000
)

// DB wraps a SQLite connection for snapshot persistence.
type DB struct {
	conn         *sqlx.DB
	historyLimit int
}

// Open opens or creates a SQLite database at the given path. historyLimit
// bounds the compressed snapshot history; 0 disables it.
func Open(path string, historyLimit int) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, historyLimit: historyLimit}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS territories (
		pos INTEGER PRIMARY KEY,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		controller INTEGER NOT NULL,
		contested INTEGER NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progression (
		pos INTEGER PRIMARY KEY,
		faction INTEGER NOT NULL,
		tier TEXT NOT NULL,
		reputation REAL NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS objectives (
		pos INTEGER PRIMARY KEY,
		faction INTEGER NOT NULL,
		id TEXT NOT NULL,
		completed INTEGER NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trust_players (
		pos INTEGER PRIMARY KEY,
		a INTEGER NOT NULL,
		b INTEGER NOT NULL,
		trust_index REAL NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS faction_relations (
		pos INTEGER PRIMARY KEY,
		a INTEGER NOT NULL,
		b INTEGER NOT NULL,
		value REAL NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routes (
		pos INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		faction INTEGER NOT NULL,
		active INTEGER NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS route_links (
		pos INTEGER PRIMARY KEY,
		a INTEGER NOT NULL,
		b INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sieges (
		pos INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		phase TEXT NOT NULL,
		territory INTEGER NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY,
		at INTEGER NOT NULL,
		topic TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		taken_at INTEGER NOT NULL,
		raw_size INTEGER NOT NULL,
		data BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_topic ON events(topic);
	CREATE INDEX IF NOT EXISTS idx_routes_faction ON routes(faction);
	CREATE INDEX IF NOT EXISTS idx_territories_controller ON territories(controller);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// replace deletes every row of table and inserts one row per record.
func replace[T any](tx *sqlx.Tx, table, query string, recs []T, args func(T) ([]any, error)) error {
	if _, err := tx.Exec("DELETE FROM " + table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(recs) == 0 {
		return nil
	}
	stmt, err := tx.Preparex(query)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", table, err)
	}
	defer stmt.Close()

	for i, r := range recs {
		a, err := args(r)
		if err != nil {
			return fmt.Errorf("encode %s row %d: %w", table, i, err)
		}
		if _, err := stmt.Exec(append([]any{i}, a...)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}
	return nil
}

func encodeRow(v any, cols ...any) ([]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(cols, string(b)), nil
}

// SaveSnapshot writes every record table (full replace), appends new events,
// and records a compressed history entry, all in one transaction.
func (db *DB) SaveSnapshot(snap *engine.Snapshot) error {
	start := time.Now()
	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	err = replace(tx, "territories",
		`INSERT INTO territories (pos, id, name, type, controller, contested, record_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Territories, func(r territory.Record) ([]any, error) {
			return encodeRow(r, r.ID, r.Name, r.Type, r.Controller, boolInt(r.Contested))
		})
	if err != nil {
		return err
	}
	err = replace(tx, "progression",
		`INSERT INTO progression (pos, faction, tier, reputation, record_json) VALUES (?, ?, ?, ?, ?)`,
		snap.Progression.Factions, func(r progression.Record) ([]any, error) {
			return encodeRow(r, r.Faction, r.Tier, r.Reputation)
		})
	if err != nil {
		return err
	}
	err = replace(tx, "objectives",
		`INSERT INTO objectives (pos, faction, id, completed, record_json) VALUES (?, ?, ?, ?, ?)`,
		snap.Progression.Objectives, func(o progression.Objective) ([]any, error) {
			return encodeRow(o, o.Faction, o.ID, boolInt(o.Completed))
		})
	if err != nil {
		return err
	}
	err = replace(tx, "trust_players",
		`INSERT INTO trust_players (pos, a, b, trust_index, record_json) VALUES (?, ?, ?, ?, ?)`,
		snap.Trust.Players, func(r trust.Record) ([]any, error) {
			return encodeRow(r, r.A, r.B, r.Trust)
		})
	if err != nil {
		return err
	}
	err = replace(tx, "faction_relations",
		`INSERT INTO faction_relations (pos, a, b, value, record_json) VALUES (?, ?, ?, ?, ?)`,
		snap.Trust.Relations, func(r trust.RelationRecord) ([]any, error) {
			return encodeRow(r, r.A, r.B, r.Value)
		})
	if err != nil {
		return err
	}
	err = replace(tx, "routes",
		`INSERT INTO routes (pos, id, faction, active, record_json) VALUES (?, ?, ?, ?, ?)`,
		snap.Routes.Routes, func(r routes.Record) ([]any, error) {
			return encodeRow(r, r.ID, r.Faction, boolInt(r.Active))
		})
	if err != nil {
		return err
	}
	err = replace(tx, "route_links",
		`INSERT INTO route_links (pos, a, b) VALUES (?, ?, ?)`,
		snap.Routes.Links, func(l [2]int) ([]any, error) {
			return []any{l[0], l[1]}, nil
		})
	if err != nil {
		return err
	}
	err = replace(tx, "sieges",
		`INSERT INTO sieges (pos, id, phase, territory, record_json) VALUES (?, ?, ?, ?, ?)`,
		snap.Sieges, func(r siege.Record) ([]any, error) {
			return encodeRow(r, r.ID, r.Phase, int(r.Territory))
		})
	if err != nil {
		return err
	}

	for _, e := range snap.Events {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO events (seq, at, topic, payload) VALUES (?, ?, ?, ?)",
			e.Seq, e.At.UnixNano(), string(e.Topic), string(e.Payload),
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	_, err = tx.Exec(
		"DELETE FROM events WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM events) - ?",
		eventRetention,
	)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}

	meta := map[string]any{
		"links":     snap.Links,
		"balance":   snap.Balance,
		"integrity": snap.Integrity,
	}
	for k, v := range meta {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		if err := saveMeta(tx, k, string(b)); err != nil {
			return err
		}
	}
	for k, v := range map[string]string{
		"version":  strconv.Itoa(snap.Version),
		"taken_at": snap.TakenAt.UTC().Format(time.RFC3339Nano),
		"seed":     strconv.FormatInt(snap.Seed, 10),
		"radius":   strconv.Itoa(snap.Radius),
	} {
		if err := saveMeta(tx, k, v); err != nil {
			return err
		}
	}

	raw := 0
	if db.historyLimit > 0 {
		if raw, err = db.appendHistory(tx, snap); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("snapshot saved",
		"territories", len(snap.Territories),
		"routes", len(snap.Routes.Routes),
		"sieges", len(snap.Sieges),
		"events", humanize.Comma(int64(len(snap.Events))),
		"history_raw", humanize.Bytes(uint64(raw)),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func saveMeta(tx *sqlx.Tx, key, value string) error {
	if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("save meta %s: %w", key, err)
	}
	return nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func selectRecords[T any](db *DB, table string) ([]T, error) {
	var rows []string
	if err := db.conn.Select(&rows, "SELECT record_json FROM "+table+" ORDER BY pos"); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		if err := json.Unmarshal([]byte(r), &out[i]); err != nil {
			return nil, fmt.Errorf("decode %s row %d: %w", table, i, err)
		}
	}
	return out, nil
}

func (db *DB) metaJSON(key string, v any) error {
	s, err := db.GetMeta(key)
	if err != nil {
		return fmt.Errorf("read meta %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode meta %s: %w", key, err)
	}
	return nil
}

func (db *DB) metaInt(key string) (int64, error) {
	s, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("read meta %s: %w", key, err)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode meta %s: %w", key, err)
	}
	return n, nil
}

// LoadSnapshot reads the last saved snapshot. It returns nil and no error
// when nothing has been saved yet.
func (db *DB) LoadSnapshot() (*engine.Snapshot, error) {
	taken, err := db.GetMeta("taken_at")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta taken_at: %w", err)
	}
	snap := &engine.Snapshot{}
	if snap.TakenAt, err = time.Parse(time.RFC3339Nano, taken); err != nil {
		return nil, fmt.Errorf("decode meta taken_at: %w", err)
	}

	version, err := db.metaInt("version")
	if err != nil {
		return nil, err
	}
	if version != engine.SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", version, engine.SnapshotVersion)
	}
	snap.Version = int(version)
	if snap.Seed, err = db.metaInt("seed"); err != nil {
		return nil, err
	}
	radius, err := db.metaInt("radius")
	if err != nil {
		return nil, err
	}
	snap.Radius = int(radius)
	if err := db.metaJSON("links", &snap.Links); err != nil {
		return nil, err
	}
	if err := db.metaJSON("balance", &snap.Balance); err != nil {
		return nil, err
	}
	if err := db.metaJSON("integrity", &snap.Integrity); err != nil {
		return nil, err
	}

	if snap.Territories, err = selectRecords[territory.Record](db, "territories"); err != nil {
		return nil, err
	}
	if snap.Progression.Factions, err = selectRecords[progression.Record](db, "progression"); err != nil {
		return nil, err
	}
	if snap.Progression.Objectives, err = selectRecords[progression.Objective](db, "objectives"); err != nil {
		return nil, err
	}
	if snap.Trust.Players, err = selectRecords[trust.Record](db, "trust_players"); err != nil {
		return nil, err
	}
	if snap.Trust.Relations, err = selectRecords[trust.RelationRecord](db, "faction_relations"); err != nil {
		return nil, err
	}
	if snap.Routes.Routes, err = selectRecords[routes.Record](db, "routes"); err != nil {
		return nil, err
	}
	if snap.Sieges, err = selectRecords[siege.Record](db, "sieges"); err != nil {
		return nil, err
	}

	var links []struct {
		A int `db:"a"`
		B int `db:"b"`
	}
	if err := db.conn.Select(&links, "SELECT a, b FROM route_links ORDER BY pos"); err != nil {
		return nil, fmt.Errorf("read route_links: %w", err)
	}
	for _, l := range links {
		snap.Routes.Links = append(snap.Routes.Links, [2]int{l.A, l.B})
	}

	if snap.Events, err = db.RecentEvents(feedLimit); err != nil {
		return nil, err
	}

	slog.Info("snapshot loaded",
		"taken_at", snap.TakenAt,
		"territories", len(snap.Territories),
		"routes", len(snap.Routes.Routes),
		"sieges", len(snap.Sieges),
	)
	return snap, nil
}

type eventRow struct {
	Seq     uint64 `db:"seq"`
	At      int64  `db:"at"`
	Topic   string `db:"topic"`
	Payload string `db:"payload"`
}

// RecentEvents returns up to limit of the most recent events, oldest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT seq, at, topic, payload FROM events ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var out []engine.Event
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, engine.Event{
			Seq:     r.Seq,
			At:      time.Unix(0, r.At).UTC(),
			Topic:   events.Topic(r.Topic),
			Payload: json.RawMessage(r.Payload),
		})
	}
	return out, nil
}
