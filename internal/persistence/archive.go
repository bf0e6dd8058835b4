package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"

	"github.com/talgya/frontline/internal/engine"
)

const archiveExt = ".json.zst"

// Header is the first line of an archive file.
type Header struct {
	Version     int    `json:"version"`
	TakenAt     string `json:"taken_at"`
	Seed        int64  `json:"seed"`
	Territories int    `json:"territories"`
}

// Archive writes snapshots to zstd-compressed files in Dir, keeping the
// newest Keep of them (0 keeps all).
type Archive struct {
	Dir  string
	Keep int
}

// NewArchive creates an archive rooted at dir.
func NewArchive(dir string, keep int) *Archive {
	return &Archive{Dir: dir, Keep: keep}
}

// Write stores snap as a new file and returns its path.
func (a *Archive) Write(snap *engine.Snapshot) (string, error) {
	name := "snapshot-" + snap.TakenAt.UTC().Format("20060102T150405.000000000Z") + archiveExt
	path := filepath.Join(a.Dir, name)
	if err := WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if fi, err := os.Stat(path); err == nil {
		slog.Info("snapshot archived", "path", path, "size", humanize.Bytes(uint64(fi.Size())))
	}
	if err := a.prune(); err != nil {
		slog.Warn("archive prune failed", "dir", a.Dir, "error", err)
	}
	return path, nil
}

// List returns archive file paths, oldest first.
func (a *Archive) List() ([]string, error) {
	entries, err := os.ReadDir(a.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), archiveExt) {
			out = append(out, filepath.Join(a.Dir, e.Name()))
		}
	}
	// Names embed a sortable UTC timestamp.
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest archive file, or "" when there is none.
func (a *Archive) Latest() (string, error) {
	files, err := a.List()
	if err != nil || len(files) == 0 {
		return "", err
	}
	return files[len(files)-1], nil
}

func (a *Archive) prune() error {
	if a.Keep <= 0 {
		return nil
	}
	files, err := a.List()
	if err != nil {
		return err
	}
	for len(files) > a.Keep {
		if err := os.Remove(files[0]); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}

// WriteSnapshot writes a header line followed by the JSON snapshot, zstd
// compressed.
func WriteSnapshot(path string, snap *engine.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(Header{
		Version:     snap.Version,
		TakenAt:     snap.TakenAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Seed:        snap.Seed,
		Territories: len(snap.Territories),
	})
	if err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := json.NewEncoder(bw).Encode(snap); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return f.Sync()
}

// ReadSnapshot reads an archive file written by WriteSnapshot.
func ReadSnapshot(path string) (*engine.Snapshot, Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return nil, h, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, h, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != engine.SnapshotVersion {
		return nil, h, fmt.Errorf("archive version %d, want %d", h.Version, engine.SnapshotVersion)
	}
	var snap engine.Snapshot
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return nil, h, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, h, nil
}
