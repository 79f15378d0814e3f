// Package storage implements the Markdown file store: the authoritative home
// of every note, one frontmatter-headed .md file per note.
package storage

import "github.com/MikeBee/notis/internal/models"

// Store is the interface for note file operations. Paths are relative to the
// store root and use forward slashes.
type Store interface {
	// Root returns the absolute path of the notes directory.
	Root() string
	// Create writes a brand-new note and returns its metadata.
	Create(title, content, folder string, tags []string) (*models.NoteMetadata, error)
	// Read parses the note at path into metadata and body.
	Read(path string) (*models.NoteMetadata, string, error)
	// Write re-serializes a note at meta.Path. It refreshes meta's cache
	// fields and keeps Modified monotonically non-decreasing.
	Write(meta *models.NoteMetadata, body string) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// ScanAll enumerates every .md file under the root. Best effort: files
	// vanishing mid-scan are omitted.
	ScanAll() ([]models.FileInfo, error)
	// UniquePath reserves nothing; it returns a slugged .md path under folder
	// that no existing file occupies.
	UniquePath(title, folder string) (string, error)

	// Raw byte access for non-note files (attachments, sidecars).
	ReadRaw(path string) ([]byte, error)
	WriteRaw(path string, content []byte) error
}
