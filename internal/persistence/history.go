package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pierrec/lz4/v4"

	"github.com/talgya/frontline/internal/engine"
)

// HistoryEntry describes one stored snapshot.
type HistoryEntry struct {
	ID      int64     `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	RawSize int64     `json:"raw_size"`
	Size    int64     `json:"size"`
}

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(src []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
}

// appendHistory stores snap as an lz4 JSON blob, prunes old entries, and
// returns the uncompressed size.
func (db *DB) appendHistory(tx *sqlx.Tx, snap *engine.Snapshot) (int, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode history: %w", err)
	}
	blob, err := compress(raw)
	if err != nil {
		return 0, fmt.Errorf("compress history: %w", err)
	}
	_, err = tx.Exec(
		"INSERT INTO snapshot_history (taken_at, raw_size, data) VALUES (?, ?, ?)",
		snap.TakenAt.UnixNano(), len(raw), blob,
	)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	_, err = tx.Exec(
		`DELETE FROM snapshot_history WHERE id NOT IN
			(SELECT id FROM snapshot_history ORDER BY id DESC LIMIT ?)`,
		db.historyLimit,
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return len(raw), nil
}

// History lists stored snapshots, newest first.
func (db *DB) History() ([]HistoryEntry, error) {
	var rows []struct {
		ID      int64 `db:"id"`
		TakenAt int64 `db:"taken_at"`
		RawSize int64 `db:"raw_size"`
		Size    int64 `db:"size"`
	}
	err := db.conn.Select(&rows,
		"SELECT id, taken_at, raw_size, length(data) AS size FROM snapshot_history ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = HistoryEntry{ID: r.ID, TakenAt: time.Unix(0, r.TakenAt).UTC(), RawSize: r.RawSize, Size: r.Size}
	}
	return out, nil
}

// LoadHistory decodes one stored snapshot.
func (db *DB) LoadHistory(id int64) (*engine.Snapshot, error) {
	var blob []byte
	if err := db.conn.Get(&blob, "SELECT data FROM snapshot_history WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("read history %d: %w", id, err)
	}
	raw, err := decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("decompress history %d: %w", id, err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode history %d: %w", id, err)
	}
	return &snap, nil
}
