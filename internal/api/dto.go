package api

import (
	"github.com/MikeBee/notis/internal/noteservice"
	"github.com/MikeBee/notis/internal/syncengine"
)

// CreateNoteRequest is the request body for creating a note. The server picks
// the filename from the title.
type CreateNoteRequest struct {
	Title   string   `json:"title" example:"Meeting Notes" validate:"required"`
	Folder  string   `json:"folder,omitempty" example:"work"`
	Content string   `json:"content" example:"# Meeting Notes\nAgenda"`
	Tags    []string `json:"tags,omitempty" example:"work,planning"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// MoveNoteRequest is the request body for renaming a note.
type MoveNoteRequest struct {
	Path    string `json:"path" example:"inbox/idea.md" validate:"required"`
	NewPath string `json:"new_path" example:"projects/idea.md" validate:"required"`
}

// SyncRequest selects the mode of a triggered sync pass.
type SyncRequest struct {
	Mode string `json:"mode" example:"quick"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// LibraryStats is the stats response type (aliased from the domain layer).
type LibraryStats = noteservice.LibraryStats

// NoteListResponse wraps the recently modified listing.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	UUID    string `json:"uuid" example:"7e9d5c2a-1b34-4f8e-9c6d-2a5b8e1f4c7d" validate:"required"`
	Path    string `json:"path" example:"work/meeting-notes.md" validate:"required"`
	Title   string `json:"title" example:"Meeting Notes" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// TagsResponse wraps the distinct tag listing.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// FoldersResponse wraps the folder listing.
type FoldersResponse struct {
	Folders []string `json:"folders" validate:"required"`
}

// SyncResponse wraps the stats of a completed pass.
type SyncResponse struct {
	Mode  string               `json:"mode" example:"quick" validate:"required"`
	Stats *syncengine.SyncStats `json:"stats" validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"image.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/attachments/image.png" validate:"required"`
}
