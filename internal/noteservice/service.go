// Package noteservice coordinates the file store, the index, and the sync
// engine behind one API shared by the HTTP and MCP surfaces.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/index"
	"github.com/MikeBee/notis/internal/models"
	"github.com/MikeBee/notis/internal/storage"
	"github.com/MikeBee/notis/internal/syncengine"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	UUID      string    `json:"uuid"`
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Status    string    `json:"status"`
	Excerpt   string    `json:"excerpt"`
	WordCount int       `json:"word_count"`
	Checksum  string    `json:"checksum"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	UUID     string    `json:"uuid"`
	Path     string    `json:"path"`
	Title    string    `json:"title"`
	Excerpt  string    `json:"excerpt"`
	Tags     []string  `json:"tags"`
	Status   string    `json:"status"`
	Modified time.Time `json:"modified"`
}

// CreateRequest describes a note to create. The store picks the filename.
type CreateRequest struct {
	Title   string
	Folder  string
	Content string
	Tags    []string
}

// LibraryStats summarizes the library for status surfaces.
type LibraryStats struct {
	TotalNotes int       `json:"total_notes"`
	LastSync   time.Time `json:"last_sync"`
	SyncState  string    `json:"sync_state"`
	Monitoring bool      `json:"monitoring"`
}

// EventFunc receives note change notifications ("created", "updated",
// "deleted") for changes made through this service.
type EventFunc func(kind, path string)

// Service coordinates storage and index operations.
type Service struct {
	store   storage.Store
	idx     index.NoteIndex
	engine  *syncengine.Engine
	onEvent EventFunc
}

// NewService creates a note service. engine and onEvent may be nil.
func NewService(store storage.Store, idx index.NoteIndex, engine *syncengine.Engine, onEvent EventFunc) *Service {
	return &Service{store: store, idx: idx, engine: engine, onEvent: onEvent}
}

func (s *Service) emit(kind, path string) {
	if s.onEvent != nil {
		s.onEvent(kind, path)
	}
}

// GetNote reads a note from the file store.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	meta, body, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	return detailFrom(meta, body), nil
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(_ context.Context, req CreateRequest) (*NoteDetail, error) {
	meta, err := s.store.Create(req.Title, req.Content, req.Folder, req.Tags)
	if err != nil {
		return nil, err
	}
	if err := s.idx.UpsertNote(meta, req.Content); err != nil {
		return nil, err
	}
	s.emit("created", meta.Path)
	return detailFrom(meta, req.Content), nil
}

// UpdateNote replaces a note's content with optimistic concurrency: when
// ifMatch is non-empty it must equal the note's current checksum.
func (s *Service) UpdateNote(_ context.Context, path, content, ifMatch string) (*NoteDetail, error) {
	meta, _, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != meta.Checksum {
		return nil, fmt.Errorf("noteservice: update %s: %w", path, apperr.ErrConflict)
	}

	meta.Modified = time.Now()
	if err := s.store.Write(meta, content); err != nil {
		return nil, err
	}
	if err := s.idx.UpsertNote(meta, content); err != nil {
		return nil, err
	}
	s.emit("updated", path)
	return detailFrom(meta, content), nil
}

// DeleteNote removes a note from the file store and the index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	meta, _, err := s.store.Read(path)
	if errors.Is(err, apperr.ErrNotManaged) {
		// A file without identity has no index row to remove.
		return s.store.Delete(path)
	}
	if err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		return err
	}
	if err := s.idx.RemoveNote(meta.UUID); err != nil {
		return err
	}
	s.emit("deleted", path)
	return nil
}

// MoveNote renames a note, keeping its identity. The destination must be free.
func (s *Service) MoveNote(_ context.Context, path, newPath string) (*NoteDetail, error) {
	if _, err := s.store.ReadRaw(newPath); err == nil {
		return nil, fmt.Errorf("noteservice: move to %s: %w", newPath, apperr.ErrAlreadyExists)
	}
	meta, body, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	if err := s.store.Move(path, newPath); err != nil {
		return nil, err
	}
	meta.Path = newPath
	if err := s.idx.UpsertNote(meta, body); err != nil {
		return nil, err
	}
	s.emit("updated", newPath)
	return detailFrom(meta, body), nil
}

// RecentNotes returns the most recently modified notes from the index.
func (s *Service) RecentNotes(_ context.Context, limit int) ([]NoteListItem, error) {
	rows, err := s.idx.GetRecentlyModified(limit)
	if err != nil {
		return nil, err
	}
	items := make([]NoteListItem, len(rows))
	for i, m := range rows {
		items[i] = NoteListItem{
			UUID:     m.UUID,
			Path:     m.Path,
			Title:    m.Title,
			Excerpt:  m.Excerpt,
			Tags:     nonNilSlice(m.Tags),
			Status:   string(m.Status),
			Modified: m.Modified,
		}
	}
	return items, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.idx.Search(query, limit)
}

// Tags returns every distinct tag in the library.
func (s *Service) Tags(_ context.Context) ([]string, error) {
	tags, err := s.idx.GetAllTags()
	return nonNilSlice(tags), err
}

// Folders returns every folder that holds at least one note.
func (s *Service) Folders(_ context.Context) ([]string, error) {
	folders, err := s.idx.GetAllFolders()
	return nonNilSlice(folders), err
}

// Stats reports library counters and the engine's sync status.
func (s *Service) Stats(_ context.Context) (*LibraryStats, error) {
	total, err := s.idx.GetTotalCount()
	if err != nil {
		return nil, err
	}
	st := &LibraryStats{TotalNotes: total}
	if s.engine != nil {
		st.LastSync = s.engine.LastSyncDate()
		st.SyncState = s.engine.State().String()
		st.Monitoring = s.engine.IsMonitoring()
	}
	return st, nil
}

// Sync runs a sync pass through the engine.
func (s *Service) Sync(ctx context.Context, mode syncengine.Mode) (*syncengine.SyncStats, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("noteservice: sync: no engine configured")
	}
	return s.engine.Sync(ctx, mode)
}

// detailFrom builds a NoteDetail without re-reading the file.
func detailFrom(meta *models.NoteMetadata, body string) *NoteDetail {
	return &NoteDetail{
		UUID:      meta.UUID,
		Path:      meta.Path,
		Title:     meta.Title,
		Content:   body,
		Tags:      nonNilSlice(meta.Tags),
		Status:    string(meta.Status),
		Excerpt:   meta.Excerpt,
		WordCount: meta.WordCount,
		Checksum:  meta.Checksum,
		Created:   meta.Created,
		Modified:  meta.Modified,
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
