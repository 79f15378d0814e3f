// Package syncengine keeps the three note representations consistent: the
// Markdown file store (authoritative), the notes index (rebuildable cache),
// and the legacy object graph (read-mostly after migration).
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/index"
	"github.com/MikeBee/notis/internal/legacy"
	"github.com/MikeBee/notis/internal/models"
	"github.com/MikeBee/notis/internal/storage"
)

// Mode selects how thorough a sync pass is.
type Mode string

// Sync modes.
const (
	// ModeQuick compares cached mtime and size; only changed files are re-read.
	ModeQuick Mode = "quick"
	// ModeFull re-parses every file and reconciles by checksum.
	ModeFull Mode = "full"
	// ModeDeep is a full pass plus body reconciliation against the legacy store.
	ModeDeep Mode = "deep"
)

// ParseMode maps a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeQuick, ModeFull, ModeDeep:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("syncengine: unknown mode %q", s)
	}
}

// State is the phase a sync pass is in.
type State int32

// Pass states.
const (
	StateIdle State = iota
	StateScanning
	StateDiffing
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateDiffing:
		return "diffing"
	case StateApplying:
		return "applying"
	default:
		return "idle"
	}
}

// SyncStats counts the mutations and tolerated failures of one pass.
type SyncStats struct {
	FilesAdded   int `json:"files_added"`
	IndexUpdated int `json:"index_updated"`
	IndexDeleted int `json:"index_deleted"`
	Conflicts    int `json:"conflicts"`
	Errors       int `json:"errors"`
}

// TotalChanges is the sum of the mutation counters. Errors are tolerated
// failures, not changes, and are excluded.
func (s SyncStats) TotalChanges() int {
	return s.FilesAdded + s.IndexUpdated + s.IndexDeleted + s.Conflicts
}

// EventFunc is called after each applied note change.
// kind is one of "created", "updated", "deleted".
type EventFunc func(kind string, path string)

// Engine coordinates sync passes. At most one pass runs at a time.
type Engine struct {
	store   storage.Store
	idx     index.NoteIndex
	legacy  *legacy.Store // nil when no legacy database is configured
	logger  *slog.Logger
	onEvent EventFunc // nil-safe

	syncing atomic.Bool
	state   atomic.Int32

	mu           sync.Mutex
	lastSyncDate time.Time
	lastStats    SyncStats
	onCompleted  func(Mode, *SyncStats)

	monMu     sync.Mutex
	monCancel context.CancelFunc
	monDone   chan struct{}
}

// OnSyncCompleted registers a callback invoked after every successful pass.
// Set it before the engine starts syncing.
func (e *Engine) OnSyncCompleted(fn func(Mode, *SyncStats)) {
	e.mu.Lock()
	e.onCompleted = fn
	e.mu.Unlock()
}

// New creates an Engine. lg may be nil (deep sync and lazy migration are then
// unavailable); onEvent may be nil.
func New(store storage.Store, idx index.NoteIndex, lg *legacy.Store, logger *slog.Logger, onEvent EventFunc) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:   store,
		idx:     idx,
		legacy:  lg,
		logger:  logger,
		onEvent: onEvent,
	}
	if last, err := idx.LastSync(); err == nil {
		e.lastSyncDate = last
	}
	return e
}

// State reports the phase of the pass in flight, StateIdle when none is.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsSyncing reports whether a pass is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// LastSyncDate returns the completion time of the most recent pass, zero when
// none has completed.
func (e *Engine) LastSyncDate() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncDate
}

// LastSyncStats returns the stats of the most recent pass.
func (e *Engine) LastSyncStats() SyncStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Engine) emit(kind, path string) {
	if e.onEvent != nil {
		e.onEvent(kind, path)
	}
}

// Sync runs one pass in the requested mode. A second call while a pass is in
// flight fails with apperr.ErrSyncInProgress. Partial failures are counted in
// the returned stats; only a broken store or index aborts the pass.
func (e *Engine) Sync(ctx context.Context, mode Mode) (*SyncStats, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil, apperr.ErrSyncInProgress
	}
	defer e.syncing.Store(false)
	defer e.setState(StateIdle)

	started := time.Now()
	e.logger.Info("sync: pass started", slog.String("mode", string(mode)))

	var stats SyncStats
	var err error
	switch mode {
	case ModeQuick:
		err = e.quickPass(&stats)
	case ModeFull:
		err = e.fullPass(ctx, &stats, false)
	case ModeDeep:
		if e.legacy == nil {
			err = apperr.ErrNoLegacyStore
		} else {
			err = e.fullPass(ctx, &stats, true)
		}
	default:
		err = fmt.Errorf("syncengine: unknown mode %q", mode)
	}
	if err != nil {
		e.logger.Error("sync: pass failed", slog.String("mode", string(mode)), slog.String("error", err.Error()))
		return nil, err
	}

	completed := time.Now()
	if err := e.idx.SetLastSync(completed); err != nil {
		e.logger.Warn("sync: persist last sync failed", slog.String("error", err.Error()))
		stats.Errors++
	}
	e.mu.Lock()
	e.lastSyncDate = completed
	e.lastStats = stats
	onCompleted := e.onCompleted
	e.mu.Unlock()
	if onCompleted != nil {
		onCompleted(mode, &stats)
	}

	e.logger.Info("sync: pass completed",
		slog.String("mode", string(mode)),
		slog.Int("changes", stats.TotalChanges()),
		slog.Int("errors", stats.Errors),
		slog.Duration("elapsed", time.Since(started)))
	return &stats, nil
}

// quickPass reconciles using the index's cached mtime and size; only files
// that look changed are re-read.
func (e *Engine) quickPass(stats *SyncStats) error {
	e.setState(StateScanning)
	files, err := e.store.ScanAll()
	if err != nil {
		return err
	}
	entries, err := e.idx.AllEntries()
	if err != nil {
		return err
	}

	e.setState(StateDiffing)
	var changed []models.FileInfo
	onDisk := make(map[string]struct{}, len(files))
	for _, fi := range files {
		onDisk[fi.Path] = struct{}{}
		entry, ok := entries[fi.Path]
		if !ok || entry.Size != fi.Size || entry.MTime.UnixNano() != fi.ModTime.UnixNano() {
			changed = append(changed, fi)
		}
	}

	e.setState(StateApplying)
	for _, fi := range changed {
		entry := entries[fi.Path]
		meta, body, err := e.store.Read(fi.Path)
		switch {
		case errors.Is(err, apperr.ErrNotManaged):
			// Foreign file; drop any row it used to have.
			if entry != nil {
				e.removeEntry(entry, stats)
			}
			continue
		case errors.Is(err, apperr.ErrNotFound):
			// Vanished since the scan; deletion detection below picks up
			// the row once the path leaves the disk set.
			delete(onDisk, fi.Path)
			continue
		case err != nil:
			e.logger.Warn("sync: read failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			stats.Errors++
			continue
		}

		if err := e.idx.UpsertNote(meta, body); err != nil {
			e.logger.Warn("sync: index failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			stats.Errors++
			continue
		}
		stats.IndexUpdated++
		if entry == nil {
			e.emit("created", fi.Path)
		} else {
			e.emit("updated", fi.Path)
		}
	}

	// Remove rows whose path vanished from disk.
	for p, entry := range entries {
		if _, ok := onDisk[p]; !ok {
			e.removeEntry(entry, stats)
		}
	}
	return nil
}

// parsedFile is one managed file re-read during a full pass.
type parsedFile struct {
	meta *models.NoteMetadata
	body string
}

// fullPass re-parses every file, reconciles the index by checksum, and, when
// a legacy store is configured, migrates legacy records that have no file
// yet. With deep set it also reconciles bodies against the legacy store.
func (e *Engine) fullPass(ctx context.Context, stats *SyncStats, deep bool) error {
	// The boundary against which deep sync decides "changed since last sync";
	// read before this pass moves it.
	lastSync, err := e.idx.LastSync()
	if err != nil {
		return err
	}

	e.setState(StateScanning)
	files, err := e.store.ScanAll()
	if err != nil {
		return err
	}
	entries, err := e.idx.AllEntries()
	if err != nil {
		return err
	}

	e.setState(StateApplying)
	managed := make(map[string]struct{}, len(files))
	byUUID := make(map[string]parsedFile, len(files))
	for _, fi := range files {
		entry := entries[fi.Path]
		meta, body, err := e.store.Read(fi.Path)
		switch {
		case errors.Is(err, apperr.ErrNotManaged):
			continue
		case errors.Is(err, apperr.ErrNotFound):
			continue
		case err != nil:
			// Transient read failure: keep the row, count the error.
			e.logger.Warn("sync: read failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			stats.Errors++
			managed[fi.Path] = struct{}{}
			continue
		}

		managed[fi.Path] = struct{}{}
		byUUID[meta.UUID] = parsedFile{meta: meta, body: body}

		if entry != nil && entry.Checksum == meta.Checksum {
			continue
		}
		if err := e.idx.UpsertNote(meta, body); err != nil {
			e.logger.Warn("sync: index failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			stats.Errors++
			continue
		}
		stats.IndexUpdated++
		if entry == nil {
			e.emit("created", fi.Path)
		} else {
			e.emit("updated", fi.Path)
		}
	}

	// Remove rows whose file is gone or no longer managed.
	for p, entry := range entries {
		if _, ok := managed[p]; !ok {
			e.removeEntry(entry, stats)
		}
	}

	if e.legacy != nil {
		if err := e.legacySweep(ctx, lastSync, byUUID, deep, stats); err != nil {
			return err
		}
	}
	return nil
}

// removeEntry drops one index row, counting the outcome.
func (e *Engine) removeEntry(entry *models.NoteMetadata, stats *SyncStats) {
	if err := e.idx.RemoveNote(entry.UUID); err != nil {
		e.logger.Warn("sync: remove failed", slog.String("path", entry.Path), slog.String("error", err.Error()))
		stats.Errors++
		return
	}
	stats.IndexDeleted++
	e.emit("deleted", entry.Path)
}
