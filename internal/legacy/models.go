// Package legacy provides read-mostly access to the old app's object-graph
// database. The migration service and the deep sync pass are its only
// consumers; files are the source of truth once a record has been migrated.
package legacy

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MikeBee/notis/internal/models"
)

// Sheet is a note record in the legacy object graph.
type Sheet struct {
	ID         string `gorm:"primaryKey"`
	Title      string
	Content    string `gorm:"type:text"`
	GroupID    *uint
	Group      *SheetGroup
	CreatedAt  time.Time
	ModifiedAt time.Time
	IsFavorite bool
	IsInTrash  bool
	Tags       []SheetTag `gorm:"many2many:sheet_tag_links"`
}

// SheetGroup is a folder in the legacy object graph.
type SheetGroup struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

// SheetTag is a tag in the legacy object graph.
type SheetTag struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

// BeforeCreate assigns a uuid when none was provided.
func (s *Sheet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// GroupName returns the sheet's folder name, or "" when ungrouped. The
// accessor is the only place the optional relation is unwrapped.
func (s *Sheet) GroupName() string {
	if s.Group == nil {
		return ""
	}
	return s.Group.Name
}

// TagNames returns the sheet's tag names, never nil.
func (s *Sheet) TagNames() []string {
	names := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Metadata maps the sheet onto the canonical note descriptor at path.
func (s *Sheet) Metadata(path string) *models.NoteMetadata {
	status := models.StatusNormal
	switch {
	case s.IsInTrash:
		status = models.StatusTrashed
	case s.IsFavorite:
		status = models.StatusFavorite
	}
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Untitled"
	}
	return &models.NoteMetadata{
		UUID:     s.ID,
		Title:    title,
		Path:     path,
		Tags:     s.TagNames(),
		Status:   status,
		Created:  s.CreatedAt,
		Modified: s.ModifiedAt,
	}
}
