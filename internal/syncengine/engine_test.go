package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/index"
	"github.com/MikeBee/notis/internal/legacy"
	"github.com/MikeBee/notis/internal/parser"
	"github.com/MikeBee/notis/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventLog collects engine change events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(kind, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, kind+":"+path)
}

func (l *eventLog) has(want string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == want {
			return true
		}
	}
	return false
}

type env struct {
	store  *storage.FS
	idx    *index.DB
	lg     *legacy.Store
	engine *Engine
	events *eventLog
}

func newEnv(t *testing.T, withLegacy bool) *env {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewFS(filepath.Join(dir, "notes"))
	if err != nil {
		t.Fatalf("storage.NewFS: %v", err)
	}
	idx, err := index.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	var lg *legacy.Store
	if withLegacy {
		lg, err = legacy.Open(filepath.Join(dir, "legacy.db"))
		if err != nil {
			t.Fatalf("legacy.Open: %v", err)
		}
		t.Cleanup(func() { lg.Close() })
	}

	ev := &eventLog{}
	return &env{
		store:  store,
		idx:    idx,
		lg:     lg,
		engine: New(store, idx, lg, testLogger(), ev.add),
		events: ev,
	}
}

// writeRawNote writes a managed note file directly, bypassing the store's
// bookkeeping, the way an external editor would.
func writeRawNote(t *testing.T, store *storage.FS, path, uuid, title, body string, modified time.Time) {
	t.Helper()
	fm := &parser.Frontmatter{
		UUID:     uuid,
		Title:    title,
		Created:  parser.FormatTime(modified.Add(-24 * time.Hour)),
		Modified: parser.FormatTime(modified),
		Status:   "normal",
	}
	data, err := parser.Compose(fm, body)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if err := store.WriteRaw(path, data); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestQuickSync_NewFileIndexed(t *testing.T) {
	e := newEnv(t, false)
	meta, err := e.store.Create("Fresh Note", "Some body.", "", []string{"go"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stats, err := e.engine.Sync(context.Background(), ModeQuick)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.IndexUpdated != 1 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want 1 update and no errors", stats)
	}

	got, err := e.idx.GetByUUID(meta.UUID)
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if got.Path != meta.Path || got.Title != "Fresh Note" {
		t.Errorf("indexed = %+v", got)
	}
	if !e.events.has("created:" + meta.Path) {
		t.Errorf("missing created event, got %v", e.events.events)
	}
}

func TestQuickSync_ExternalEditDetected(t *testing.T) {
	e := newEnv(t, false)
	meta, _ := e.store.Create("Edited Outside", "original body", "", nil)
	if _, err := e.engine.Sync(context.Background(), ModeQuick); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// External editor rewrites the file; force a visibly different mtime.
	writeRawNote(t, e.store, meta.Path, meta.UUID, "Edited Outside", "rewritten body", time.Now())
	abs := filepath.Join(e.store.Root(), filepath.FromSlash(meta.Path))
	bumped := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(abs, bumped, bumped); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	stats, err := e.engine.Sync(context.Background(), ModeQuick)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.IndexUpdated != 1 {
		t.Errorf("IndexUpdated = %d, want 1", stats.IndexUpdated)
	}

	got, err := e.idx.GetByPath(meta.Path)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if got.Excerpt != "rewritten body" {
		t.Errorf("excerpt = %q, want rewritten body", got.Excerpt)
	}
	if !e.events.has("updated:" + meta.Path) {
		t.Errorf("missing updated event, got %v", e.events.events)
	}
}

func TestQuickSync_DeletionRemovesRow(t *testing.T) {
	e := newEnv(t, false)
	meta, _ := e.store.Create("Doomed", "body", "", nil)
	if _, err := e.engine.Sync(context.Background(), ModeQuick); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	if err := e.store.Delete(meta.Path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	stats, err := e.engine.Sync(context.Background(), ModeQuick)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.IndexDeleted != 1 {
		t.Errorf("IndexDeleted = %d, want 1", stats.IndexDeleted)
	}
	if _, err := e.idx.GetByUUID(meta.UUID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if !e.events.has("deleted:" + meta.Path) {
		t.Errorf("missing deleted event, got %v", e.events.events)
	}
}

func TestQuickSync_ForeignFileSkippedSilently(t *testing.T) {
	e := newEnv(t, false)
	if err := e.store.WriteRaw("foreign.md", []byte("# No frontmatter here\n")); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}

	stats, err := e.engine.Sync(context.Background(), ModeQuick)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Errors != 0 || stats.TotalChanges() != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
	n, _ := e.idx.GetTotalCount()
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestFullSync_ReconcilesEverything(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	m1, _ := e.store.Create("Keep One", "body one", "", nil)
	m2, _ := e.store.Create("Keep Two", "body two", "sub", nil)
	m3, _ := e.store.Create("Remove Me", "body three", "", nil)

	if _, err := e.engine.Sync(ctx, ModeFull); err != nil {
		t.Fatalf("initial full sync: %v", err)
	}

	_ = e.store.Delete(m3.Path)
	_ = e.store.WriteRaw("foreign.md", []byte("not a managed note"))

	stats, err := e.engine.Sync(ctx, ModeFull)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.IndexDeleted != 1 || stats.IndexUpdated != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want exactly one deletion", stats)
	}

	entries, err := e.idx.AllEntries()
	if err != nil {
		t.Fatalf("AllEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[m1.Path] == nil || entries[m2.Path] == nil {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFullSync_RebuildFromFiles(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	titles := []string{"Alpha", "Beta", "Gamma"}
	for _, title := range titles {
		if _, err := e.store.Create(title, "content of "+title, "", []string{"tag"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := e.engine.Sync(ctx, ModeFull); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	before := snapshotIndex(t, e.idx)

	// A brand-new empty index rebuilt from the same files must converge to
	// the same state.
	idx2, err := index.Open(filepath.Join(t.TempDir(), "rebuilt.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	defer idx2.Close()
	engine2 := New(e.store, idx2, nil, testLogger(), nil)
	if _, err := engine2.Sync(ctx, ModeFull); err != nil {
		t.Fatalf("rebuild sync: %v", err)
	}
	after := snapshotIndex(t, idx2)

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rebuilt index differs (-before +after):\n%s", diff)
	}
}

// snapshotIndex reduces the index to its content-bearing fields, keyed by path.
func snapshotIndex(t *testing.T, idx index.NoteIndex) map[string]string {
	t.Helper()
	entries, err := idx.AllEntries()
	if err != nil {
		t.Fatalf("AllEntries: %v", err)
	}
	out := make(map[string]string, len(entries))
	for p, m := range entries {
		out[p] = m.UUID + "|" + m.Title + "|" + m.Checksum
	}
	return out
}

func TestFullSync_CatchesChecksumDriftQuickMisses(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	meta, _ := e.store.Create("Sneaky", "aaaa", "", nil)
	if _, err := e.engine.Sync(ctx, ModeFull); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// Rewrite with identical length and restore the mtime so size and mtime
	// both look unchanged.
	abs := filepath.Join(e.store.Root(), filepath.FromSlash(meta.Path))
	orig, err := os.Stat(abs)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	data, _ := os.ReadFile(abs)
	swapped := []byte(string(data[:len(data)-4]) + "bbbb")
	if err := os.WriteFile(abs, swapped, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(abs, orig.ModTime(), orig.ModTime()); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	stats, err := e.engine.Sync(ctx, ModeQuick)
	if err != nil {
		t.Fatalf("quick sync: %v", err)
	}
	if stats.IndexUpdated != 0 {
		t.Fatalf("quick sync saw the edit (IndexUpdated = %d); mtime/size ruse failed", stats.IndexUpdated)
	}

	stats, err = e.engine.Sync(ctx, ModeFull)
	if err != nil {
		t.Fatalf("full sync: %v", err)
	}
	if stats.IndexUpdated != 1 {
		t.Errorf("full sync IndexUpdated = %d, want 1", stats.IndexUpdated)
	}
	got, _ := e.idx.GetByPath(meta.Path)
	if got == nil || got.Excerpt != "bbbb" {
		t.Errorf("index not repaired: %+v", got)
	}
}

func TestSync_SecondPassRejectedWhileRunning(t *testing.T) {
	e := newEnv(t, false)
	e.engine.syncing.Store(true)
	defer e.engine.syncing.Store(false)

	if _, err := e.engine.Sync(context.Background(), ModeQuick); !errors.Is(err, apperr.ErrSyncInProgress) {
		t.Errorf("err = %v, want ErrSyncInProgress", err)
	}
}

func TestSync_UnknownMode(t *testing.T) {
	e := newEnv(t, false)
	if _, err := e.engine.Sync(context.Background(), Mode("bogus")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestSync_RecordsLastSyncAndStats(t *testing.T) {
	e := newEnv(t, false)
	_, _ = e.store.Create("Stamp", "body", "", nil)

	before := time.Now()
	stats, err := e.engine.Sync(context.Background(), ModeQuick)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := e.engine.LastSyncDate(); got.Before(before) {
		t.Errorf("LastSyncDate = %v, want >= %v", got, before)
	}
	if got := e.engine.LastSyncStats(); got != *stats {
		t.Errorf("LastSyncStats = %+v, want %+v", got, *stats)
	}
	persisted, err := e.idx.LastSync()
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if persisted.IsZero() {
		t.Error("last sync not persisted in index")
	}
	if e.engine.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.engine.State())
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"quick", "full", "deep"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
	}
	if _, err := ParseMode("turbo"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestStatsTotalChanges(t *testing.T) {
	s := SyncStats{FilesAdded: 1, IndexUpdated: 2, IndexDeleted: 3, Conflicts: 4, Errors: 99}
	if got := s.TotalChanges(); got != 10 {
		t.Errorf("TotalChanges = %d, want 10 (errors excluded)", got)
	}
}

func TestSync_CompletionCallback(t *testing.T) {
	e := newEnv(t, false)
	var gotMode Mode
	var gotStats *SyncStats
	e.engine.OnSyncCompleted(func(m Mode, s *SyncStats) { gotMode, gotStats = m, s })

	writeRawNote(t, e.store, "cb.md", "0f8fad5b-d9cb-469f-a165-70867728950e", "CB", "body", time.Now())
	if _, err := e.engine.Sync(context.Background(), ModeQuick); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if gotMode != ModeQuick {
		t.Errorf("mode = %q, want quick", gotMode)
	}
	if gotStats == nil || gotStats.IndexUpdated != 1 {
		t.Errorf("stats = %+v, want one index update", gotStats)
	}
}
