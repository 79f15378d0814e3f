package index

import (
	"time"

	"github.com/MikeBee/notis/internal/models"
)

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(meta *models.NoteMetadata, body string) error
	RemoveNote(uuid string) error
	GetByUUID(uuid string) (*models.NoteMetadata, error)
	GetByPath(path string) (*models.NoteMetadata, error)
	// AllEntries returns every indexed note keyed by path, without bodies.
	AllEntries() (map[string]*models.NoteMetadata, error)
	Search(query string, limit int) ([]SearchResult, error)
	GetAllTags() ([]string, error)
	GetAllFolders() ([]string, error)
	GetRecentlyModified(limit int) ([]*models.NoteMetadata, error)
	GetTotalCount() (int, error)
	// LastSync reports the completion time of the last successful sync pass;
	// zero when no pass has completed yet.
	LastSync() (time.Time, error)
	SetLastSync(t time.Time) error
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
