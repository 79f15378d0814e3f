package legacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MikeBee/notis/internal/apperr"
)

// Store wraps the GORM connection to the legacy database.
type Store struct {
	conn *gorm.DB
	path string
}

// Open opens (or creates) the legacy SQLite database at path and runs
// migrations for its tables.
func Open(path string) (*Store, error) {
	conn, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("legacy: open db: %w", err)
	}
	if err := conn.AutoMigrate(&Sheet{}, &SheetGroup{}, &SheetTag{}); err != nil {
		return nil, fmt.Errorf("legacy: migrate schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// ListSheets returns every sheet with its group and tags preloaded.
func (s *Store) ListSheets(ctx context.Context) ([]Sheet, error) {
	var sheets []Sheet
	err := s.conn.WithContext(ctx).
		Preload("Group").
		Preload("Tags").
		Order("created_at").
		Find(&sheets).Error
	if err != nil {
		return nil, fmt.Errorf("legacy: list sheets: %w", err)
	}
	return sheets, nil
}

// GetSheet returns one sheet by id.
func (s *Store) GetSheet(ctx context.Context, id string) (*Sheet, error) {
	var sheet Sheet
	err := s.conn.WithContext(ctx).
		Preload("Group").
		Preload("Tags").
		First(&sheet, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("legacy: sheet %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("legacy: get sheet: %w", err)
	}
	return &sheet, nil
}

// CountSheets returns the number of sheets.
func (s *Store) CountSheets(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.WithContext(ctx).Model(&Sheet{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("legacy: count sheets: %w", err)
	}
	return n, nil
}

// UpdateSheetContent writes content and the modified stamp back to a sheet.
// Deep sync uses this when the file side won a conflict.
func (s *Store) UpdateSheetContent(ctx context.Context, id, content string, modified time.Time) error {
	res := s.conn.WithContext(ctx).Model(&Sheet{}).Where("id = ?", id).Updates(map[string]any{
		"content":     content,
		"modified_at": modified,
	})
	if res.Error != nil {
		return fmt.Errorf("legacy: update sheet %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("legacy: sheet %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// CreateSheet inserts a sheet with its associations. Used by seeding and tests.
func (s *Store) CreateSheet(ctx context.Context, sheet *Sheet) error {
	if err := s.conn.WithContext(ctx).Create(sheet).Error; err != nil {
		return fmt.Errorf("legacy: create sheet: %w", err)
	}
	return nil
}

// FindOrCreateGroup returns the group named name, creating it if needed.
func (s *Store) FindOrCreateGroup(ctx context.Context, name string) (*SheetGroup, error) {
	var g SheetGroup
	err := s.conn.WithContext(ctx).Where(SheetGroup{Name: name}).FirstOrCreate(&g).Error
	if err != nil {
		return nil, fmt.Errorf("legacy: find or create group: %w", err)
	}
	return &g, nil
}

// FindOrCreateTag returns the tag named name, creating it if needed.
func (s *Store) FindOrCreateTag(ctx context.Context, name string) (*SheetTag, error) {
	var t SheetTag
	err := s.conn.WithContext(ctx).Where(SheetTag{Name: name}).FirstOrCreate(&t).Error
	if err != nil {
		return nil, fmt.Errorf("legacy: find or create tag: %w", err)
	}
	return &t, nil
}

// Backup writes a consistent snapshot of the database to dst.
func (s *Store) Backup(ctx context.Context, dst string) error {
	if err := s.conn.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("legacy: backup to %s: %w", dst, err)
	}
	return nil
}
