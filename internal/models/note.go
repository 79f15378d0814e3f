// Package models defines the domain types for Notis.
package models

import (
	"path"
	"strings"
	"time"
)

// Status classifies a note's lifecycle state.
type Status string

// Note statuses.
const (
	StatusNormal   Status = "normal"
	StatusFavorite Status = "favorite"
	StatusTrashed  Status = "trashed"
)

// ParseStatus maps a frontmatter value to a Status, defaulting to normal.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusFavorite:
		return StatusFavorite
	case StatusTrashed:
		return StatusTrashed
	default:
		return StatusNormal
	}
}

// NoteMetadata is the canonical descriptor of a note, independent of which
// backend (file store, index, legacy object graph) it was read from.
type NoteMetadata struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Tags      []string  `json:"tags"`
	Excerpt   string    `json:"excerpt"`
	WordCount int       `json:"word_count"`
	Status    Status    `json:"status"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`

	// Cache fields filled from the file system; the sync engine uses them to
	// detect staleness without re-reading content.
	Checksum string    `json:"checksum,omitempty"`
	Size     int64     `json:"size,omitempty"`
	MTime    time.Time `json:"mtime,omitempty"`
}

// Folder returns the folder portion of Path ("" for notes at the root).
// Store paths always use forward slashes.
func (m *NoteMetadata) Folder() string {
	dir := path.Dir(m.Path)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// HasTag reports whether the note carries the tag, matched case-insensitively.
func (m *NoteMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// FileInfo is a lightweight scan result for one file on disk.
type FileInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
