package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/frontline/internal/engine"
)

// Saver writes snapshots on its own goroutine so the scheduler never waits
// on disk. At most one snapshot is pending; Submit drops a new one while the
// previous save is still queued.
type Saver struct {
	db           *DB
	archive      *Archive // optional
	archiveEvery int

	queue chan *engine.Snapshot
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	mu    sync.Mutex // serializes writes
	saves int
	last  error
}

// NewSaver creates a saver. Every archiveEvery-th save is also written to
// archive; archiveEvery 0 or a nil archive disables archiving.
func NewSaver(db *DB, archive *Archive, archiveEvery int) *Saver {
	return &Saver{
		db:           db,
		archive:      archive,
		archiveEvery: archiveEvery,
		queue:        make(chan *engine.Snapshot, 1),
		stop:         make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (s *Saver) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case snap := <-s.queue:
				if err := s.write(snap); err != nil {
					slog.Error("autosave failed", "error", err)
				}
			}
		}
	}()
}

// Submit queues snap without blocking. It returns false when a save is
// already pending or the saver has stopped.
func (s *Saver) Submit(snap *engine.Snapshot) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	select {
	case s.queue <- snap:
		return true
	default:
		return false
	}
}

// Flush stops the writer, discards any pending autosave, and writes snap
// synchronously. It gives up waiting when ctx is done.
func (s *Saver) Flush(ctx context.Context, snap *engine.Snapshot) error {
	s.once.Do(func() { close(s.stop) })

	done := make(chan error, 1)
	go func() {
		s.wg.Wait()
		select {
		case <-s.queue:
		default:
		}
		done <- s.write(snap)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("flush: %w", ctx.Err())
	}
}

// Saves returns how many snapshots were written.
func (s *Saver) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Err returns the error of the last write, if any.
func (s *Saver) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Saver) write(snap *engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.SaveSnapshot(snap)
	s.last = err
	if err != nil {
		return err
	}
	s.saves++
	if s.archive != nil && s.archiveEvery > 0 && s.saves%s.archiveEvery == 0 {
		if _, err := s.archive.Write(snap); err != nil {
			slog.Warn("snapshot archive failed", "error", err)
		}
	}
	return nil
}
