package legacy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MikeBee/notis/internal/apperr"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSheet(t *testing.T, s *Store, title, content, group string, tags ...string) *Sheet {
	t.Helper()
	ctx := context.Background()
	sheet := &Sheet{
		Title:      title,
		Content:    content,
		CreatedAt:  time.Now().Add(-time.Hour),
		ModifiedAt: time.Now(),
	}
	if group != "" {
		g, err := s.FindOrCreateGroup(ctx, group)
		if err != nil {
			t.Fatalf("FindOrCreateGroup: %v", err)
		}
		sheet.GroupID = &g.ID
	}
	for _, name := range tags {
		tag, err := s.FindOrCreateTag(ctx, name)
		if err != nil {
			t.Fatalf("FindOrCreateTag: %v", err)
		}
		sheet.Tags = append(sheet.Tags, *tag)
	}
	if err := s.CreateSheet(ctx, sheet); err != nil {
		t.Fatalf("CreateSheet: %v", err)
	}
	return sheet
}

func TestCreateAssignsUUID(t *testing.T) {
	s := testStore(t)
	sheet := seedSheet(t, s, "First", "content", "")
	if sheet.ID == "" {
		t.Error("expected uuid to be assigned on create")
	}
}

func TestListSheets_PreloadsRelations(t *testing.T) {
	s := testStore(t)
	seedSheet(t, s, "Grouped", "content", "work", "go", "notes")
	seedSheet(t, s, "Loose", "content", "")

	sheets, err := s.ListSheets(context.Background())
	if err != nil {
		t.Fatalf("ListSheets: %v", err)
	}
	if len(sheets) != 2 {
		t.Fatalf("len = %d, want 2", len(sheets))
	}

	if sheets[0].GroupName() != "work" {
		t.Errorf("group = %q, want work", sheets[0].GroupName())
	}
	if diff := cmp.Diff([]string{"go", "notes"}, sheets[0].TagNames()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	// Typed accessors return defined empty values on the loose sheet.
	if sheets[1].GroupName() != "" {
		t.Errorf("ungrouped sheet group = %q, want empty", sheets[1].GroupName())
	}
	if got := sheets[1].TagNames(); got == nil || len(got) != 0 {
		t.Errorf("TagNames = %#v, want empty non-nil slice", got)
	}
}

func TestGetSheet_NotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetSheet(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCountSheets(t *testing.T) {
	s := testStore(t)
	seedSheet(t, s, "A", "a", "")
	seedSheet(t, s, "B", "b", "")
	n, err := s.CountSheets(context.Background())
	if err != nil {
		t.Fatalf("CountSheets: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestUpdateSheetContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sheet := seedSheet(t, s, "Evolving", "v1", "")

	stamp := time.Now().Add(time.Minute)
	if err := s.UpdateSheetContent(ctx, sheet.ID, "v2", stamp); err != nil {
		t.Fatalf("UpdateSheetContent: %v", err)
	}

	got, err := s.GetSheet(ctx, sheet.ID)
	if err != nil {
		t.Fatalf("GetSheet: %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("content = %q, want v2", got.Content)
	}
	if !got.ModifiedAt.After(sheet.ModifiedAt) {
		t.Errorf("modified not advanced: %v <= %v", got.ModifiedAt, sheet.ModifiedAt)
	}

	if err := s.UpdateSheetContent(ctx, "missing", "x", stamp); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBackup_ProducesOpenableCopy(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedSheet(t, s, "Keep Me", "precious", "", "tag1")

	dst := filepath.Join(t.TempDir(), "backup.db")
	if err := s.Backup(ctx, dst); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	restored, err := Open(dst)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer restored.Close()
	n, err := restored.CountSheets(ctx)
	if err != nil {
		t.Fatalf("CountSheets on backup: %v", err)
	}
	if n != 1 {
		t.Errorf("backup count = %d, want 1", n)
	}
}
