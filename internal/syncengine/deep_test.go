package syncengine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/legacy"
)

func seedSheetRecord(t *testing.T, lg *legacy.Store, sheet *legacy.Sheet) {
	t.Helper()
	if err := lg.CreateSheet(context.Background(), sheet); err != nil {
		t.Fatalf("CreateSheet: %v", err)
	}
}

func TestFullSync_LazyMigration(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	group, err := e.lg.FindOrCreateGroup(ctx, "work")
	if err != nil {
		t.Fatalf("FindOrCreateGroup: %v", err)
	}
	tag, err := e.lg.FindOrCreateTag(ctx, "planning")
	if err != nil {
		t.Fatalf("FindOrCreateTag: %v", err)
	}

	plan := &legacy.Sheet{
		Title:      "Project Plan",
		Content:    "plan body",
		GroupID:    &group.ID,
		CreatedAt:  time.Now().Add(-48 * time.Hour),
		ModifiedAt: time.Now().Add(-24 * time.Hour),
		IsFavorite: true,
		Tags:       []legacy.SheetTag{*tag},
	}
	junk := &legacy.Sheet{
		Title:      "Old Junk",
		Content:    "junk body",
		CreatedAt:  time.Now().Add(-24 * time.Hour),
		ModifiedAt: time.Now().Add(-12 * time.Hour),
		IsInTrash:  true,
	}
	seedSheetRecord(t, e.lg, plan)
	seedSheetRecord(t, e.lg, junk)

	stats, err := e.engine.Sync(ctx, ModeFull)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.FilesAdded != 2 {
		t.Errorf("FilesAdded = %d, want 2", stats.FilesAdded)
	}

	meta, body, err := e.store.Read("work/project-plan.md")
	if err != nil {
		t.Fatalf("Read migrated file: %v", err)
	}
	if meta.UUID != plan.ID {
		t.Errorf("uuid = %q, want the legacy record id %q", meta.UUID, plan.ID)
	}
	if body != "plan body" {
		t.Errorf("body = %q", body)
	}
	if string(meta.Status) != "favorite" || !meta.HasTag("planning") {
		t.Errorf("meta = %+v", meta)
	}

	trashed, err := e.idx.GetByUUID(junk.ID)
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if string(trashed.Status) != "trashed" || trashed.Path != "old-junk.md" {
		t.Errorf("trashed = %+v", trashed)
	}

	// A second pass has nothing left to migrate.
	stats, err = e.engine.Sync(ctx, ModeFull)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.FilesAdded != 0 || stats.TotalChanges() != 0 {
		t.Errorf("second pass stats = %+v, want no changes", stats)
	}
}

func TestDeepSync_WithoutLegacyStore(t *testing.T) {
	e := newEnv(t, false)
	if _, err := e.engine.Sync(context.Background(), ModeDeep); !errors.Is(err, apperr.ErrNoLegacyStore) {
		t.Errorf("err = %v, want ErrNoLegacyStore", err)
	}
}

func TestDeepSync_ConflictFileWins(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	now := time.Now()
	id := uuid.NewString()

	writeRawNote(t, e.store, "contested.md", id, "Contested", "file body wins", now.Add(-time.Hour))
	seedSheetRecord(t, e.lg, &legacy.Sheet{
		ID:         id,
		Title:      "Contested",
		Content:    "legacy body",
		CreatedAt:  now.Add(-24 * time.Hour),
		ModifiedAt: now.Add(-2 * time.Hour),
	})
	if err := e.idx.SetLastSync(now.Add(-3 * time.Hour)); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}

	stats, err := e.engine.Sync(ctx, ModeDeep)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}

	sheet, err := e.lg.GetSheet(ctx, id)
	if err != nil {
		t.Fatalf("GetSheet: %v", err)
	}
	if sheet.Content != "file body wins" {
		t.Errorf("legacy content = %q, want the file body", sheet.Content)
	}
	if _, _, err := e.store.Read("contested.md"); err != nil {
		t.Fatalf("file unreadable after resolution: %v", err)
	}
	if _, err := e.store.ReadRaw("contested.md.conflict"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("no sidecar expected when the file side wins, got err = %v", err)
	}

	// Resolved: a second deep pass sees no conflict.
	stats, err = e.engine.Sync(ctx, ModeDeep)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stats.Conflicts != 0 {
		t.Errorf("second pass Conflicts = %d, want 0", stats.Conflicts)
	}
}

func TestDeepSync_ConflictLegacyWins_PreservesLoser(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	now := time.Now()
	id := uuid.NewString()

	writeRawNote(t, e.store, "contested.md", id, "Contested", "file body loses", now.Add(-2*time.Hour))
	seedSheetRecord(t, e.lg, &legacy.Sheet{
		ID:         id,
		Title:      "Contested",
		Content:    "legacy body wins",
		CreatedAt:  now.Add(-24 * time.Hour),
		ModifiedAt: now.Add(-time.Hour),
	})
	if err := e.idx.SetLastSync(now.Add(-3 * time.Hour)); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}

	stats, err := e.engine.Sync(ctx, ModeDeep)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}

	meta, body, err := e.store.Read("contested.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if body != "legacy body wins" {
		t.Errorf("body = %q, want the legacy content", body)
	}
	if meta.Modified.Unix() != now.Add(-time.Hour).Unix() {
		t.Errorf("modified = %v, want the legacy stamp", meta.Modified)
	}

	raw, err := e.store.ReadRaw("contested.md.conflict")
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if !strings.Contains(string(raw), "file body loses") {
		t.Errorf("sidecar does not preserve the losing content: %q", raw)
	}

	// The sidecar is not a note: scans and the index must not pick it up.
	files, err := e.store.ScanAll()
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("scan len = %d, want 1", len(files))
	}
	got, err := e.idx.GetByUUID(id)
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if got.Excerpt != "legacy body wins" {
		t.Errorf("index excerpt = %q", got.Excerpt)
	}
}

func TestDeepSync_LegacyOnlyChange_NoConflict(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	now := time.Now()
	id := uuid.NewString()

	writeRawNote(t, e.store, "drift.md", id, "Drift", "shared base", now.Add(-3*time.Hour))
	seedSheetRecord(t, e.lg, &legacy.Sheet{
		ID:         id,
		Title:      "Drift",
		Content:    "edited in the old app",
		CreatedAt:  now.Add(-24 * time.Hour),
		ModifiedAt: now.Add(-time.Hour),
	})
	if err := e.idx.SetLastSync(now.Add(-2 * time.Hour)); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}

	stats, err := e.engine.Sync(ctx, ModeDeep)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0 for a single-sided change", stats.Conflicts)
	}

	_, body, err := e.store.Read("drift.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if body != "edited in the old app" {
		t.Errorf("body = %q, want the legacy edit", body)
	}
	if _, err := e.store.ReadRaw("drift.md.conflict"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("no sidecar expected, got err = %v", err)
	}
}

func TestDeepSync_FileOnlyChange_NoConflict(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	now := time.Now()
	id := uuid.NewString()

	writeRawNote(t, e.store, "drift.md", id, "Drift", "edited in a text editor", now.Add(-time.Hour))
	seedSheetRecord(t, e.lg, &legacy.Sheet{
		ID:         id,
		Title:      "Drift",
		Content:    "shared base",
		CreatedAt:  now.Add(-24 * time.Hour),
		ModifiedAt: now.Add(-3 * time.Hour),
	})
	if err := e.idx.SetLastSync(now.Add(-2 * time.Hour)); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}

	stats, err := e.engine.Sync(ctx, ModeDeep)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0 for a single-sided change", stats.Conflicts)
	}

	sheet, err := e.lg.GetSheet(ctx, id)
	if err != nil {
		t.Fatalf("GetSheet: %v", err)
	}
	if sheet.Content != "edited in a text editor" {
		t.Errorf("legacy content = %q, want the file edit", sheet.Content)
	}
}

func TestDeepSync_StaleDivergenceFileAuthoritative(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	now := time.Now()
	id := uuid.NewString()

	// Both stamps predate the last sync; the stamps cannot arbitrate, so the
	// file side is taken as truth without counting a conflict.
	writeRawNote(t, e.store, "stale.md", id, "Stale", "file version", now.Add(-3*time.Hour))
	seedSheetRecord(t, e.lg, &legacy.Sheet{
		ID:         id,
		Title:      "Stale",
		Content:    "legacy version",
		CreatedAt:  now.Add(-24 * time.Hour),
		ModifiedAt: now.Add(-2 * time.Hour),
	})
	if err := e.idx.SetLastSync(now.Add(-time.Hour)); err != nil {
		t.Fatalf("SetLastSync: %v", err)
	}

	stats, err := e.engine.Sync(ctx, ModeDeep)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Conflicts != 0 {
		t.Errorf("Conflicts = %d, want 0", stats.Conflicts)
	}
	sheet, _ := e.lg.GetSheet(ctx, id)
	if sheet.Content != "file version" {
		t.Errorf("legacy content = %q, want the file version", sheet.Content)
	}
}

func TestDeepSync_ResolutionDeterministicAcrossOrder(t *testing.T) {
	idA := "11111111-1111-4111-8111-111111111111"
	idB := "22222222-2222-4222-8222-222222222222"

	run := func(reverse bool) {
		e := newEnv(t, true)
		ctx := context.Background()
		now := time.Now()

		// Pair A resolves toward the file, pair B toward the legacy record.
		writeRawNote(t, e.store, "a.md", idA, "A", "A file", now.Add(-time.Hour))
		writeRawNote(t, e.store, "b.md", idB, "B", "B file", now.Add(-2*time.Hour))

		sheetA := &legacy.Sheet{
			ID: idA, Title: "A", Content: "A legacy",
			CreatedAt: now.Add(-20 * time.Hour), ModifiedAt: now.Add(-2 * time.Hour),
		}
		sheetB := &legacy.Sheet{
			ID: idB, Title: "B", Content: "B legacy",
			CreatedAt: now.Add(-10 * time.Hour), ModifiedAt: now.Add(-time.Hour),
		}
		if reverse {
			sheetA.CreatedAt, sheetB.CreatedAt = sheetB.CreatedAt, sheetA.CreatedAt
			seedSheetRecord(t, e.lg, sheetB)
			seedSheetRecord(t, e.lg, sheetA)
		} else {
			seedSheetRecord(t, e.lg, sheetA)
			seedSheetRecord(t, e.lg, sheetB)
		}
		if err := e.idx.SetLastSync(now.Add(-3 * time.Hour)); err != nil {
			t.Fatalf("SetLastSync: %v", err)
		}

		stats, err := e.engine.Sync(ctx, ModeDeep)
		if err != nil {
			t.Fatalf("Sync: %v", err)
		}
		if stats.Conflicts != 2 {
			t.Errorf("reverse=%v: Conflicts = %d, want 2", reverse, stats.Conflicts)
		}

		_, bodyA, _ := e.store.Read("a.md")
		gotA, _ := e.lg.GetSheet(ctx, idA)
		if bodyA != "A file" || gotA.Content != "A file" {
			t.Errorf("reverse=%v: pair A = (%q, %q), want A file on both sides", reverse, bodyA, gotA.Content)
		}

		_, bodyB, _ := e.store.Read("b.md")
		gotB, _ := e.lg.GetSheet(ctx, idB)
		if bodyB != "B legacy" || gotB.Content != "B legacy" {
			t.Errorf("reverse=%v: pair B = (%q, %q), want B legacy on both sides", reverse, bodyB, gotB.Content)
		}
	}

	run(false)
	run(true)
}
