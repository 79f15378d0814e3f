// Package testutil provides shared test helpers for setting up notes
// directories and index databases.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MikeBee/notis/internal/index"
	"github.com/MikeBee/notis/internal/storage"
)

// Logger returns a JSON logger that stays quiet below the error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Index creates a temporary SQLite index that is automatically cleaned up.
func Index(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Store creates a temporary notes directory with a storage.FS rooted in it.
func Store(t *testing.T) (string, *storage.FS) {
	t.Helper()
	notesDir := filepath.Join(t.TempDir(), "notes")
	store, err := storage.NewFS(notesDir)
	if err != nil {
		t.Fatal(err)
	}
	return notesDir, store
}
