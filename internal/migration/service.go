// Package migration moves the legacy object graph into the Markdown file
// store, one file per record. Runs are idempotent: records whose uuid already
// has a file are skipped, so a second run over the same data changes nothing.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/legacy"
	"github.com/MikeBee/notis/internal/storage"
)

// Stats counts per-record outcomes of one migration pass.
type Stats struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Progress reports the fraction of records decided so far, in [0, 1].
func (s Stats) Progress() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Migrated+s.Skipped+s.Failed) / float64(s.Total)
}

// Options controls a migration run.
type Options struct {
	// CreateBackup snapshots the legacy database before the first write.
	CreateBackup bool
	// BackupDir overrides where the snapshot lands; defaults to the legacy
	// database's directory.
	BackupDir string
	// OnProgress, when set, is called after every decided record.
	OnProgress func(Stats)
}

// Result is the outcome of a completed migration run.
type Result struct {
	Stats      Stats
	BackupPath string
}

// Service migrates legacy records into the file store.
type Service struct {
	store  storage.Store
	legacy *legacy.Store
	logger *slog.Logger
}

// New creates a Service. lg may be nil; runs then fail with ErrNoLegacyStore.
func New(store storage.Store, lg *legacy.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, legacy: lg, logger: logger}
}

// DryRun classifies every record without writing anything.
func (s *Service) DryRun(ctx context.Context) (Stats, error) {
	var stats Stats
	if s.legacy == nil {
		return stats, apperr.ErrNoLegacyStore
	}
	existing, err := s.fileUUIDs()
	if err != nil {
		return stats, err
	}
	sheets, err := s.legacy.ListSheets(ctx)
	if err != nil {
		return stats, err
	}

	stats.Total = len(sheets)
	for i := range sheets {
		if _, ok := existing[sheets[i].ID]; ok {
			stats.Skipped++
		} else {
			stats.Migrated++
		}
	}
	return stats, nil
}

// Migrate runs the migration. Per-record failures are counted and never stop
// the batch; an unreachable store or a failed backup aborts the run.
func (s *Service) Migrate(ctx context.Context, opts Options) (*Result, error) {
	if s.legacy == nil {
		return nil, apperr.ErrNoLegacyStore
	}
	existing, err := s.fileUUIDs()
	if err != nil {
		return nil, err
	}
	sheets, err := s.legacy.ListSheets(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Stats: Stats{Total: len(sheets)}}
	if opts.CreateBackup {
		res.BackupPath, err = s.backup(ctx, opts.BackupDir)
		if err != nil {
			return nil, err
		}
		s.logger.Info("migration: legacy database backed up", slog.String("path", res.BackupPath))
	}

	s.logger.Info("migration: started", slog.Int("records", res.Stats.Total))
	for i := range sheets {
		sheet := &sheets[i]
		if _, ok := existing[sheet.ID]; ok {
			res.Stats.Skipped++
		} else if err := s.migrateSheet(sheet); err != nil {
			s.logger.Warn("migration: record failed",
				slog.String("id", sheet.ID),
				slog.String("title", sheet.Title),
				slog.String("error", err.Error()))
			res.Stats.Failed++
		} else {
			res.Stats.Migrated++
		}
		if opts.OnProgress != nil {
			opts.OnProgress(res.Stats)
		}
	}

	s.logger.Info("migration: completed",
		slog.Int("migrated", res.Stats.Migrated),
		slog.Int("skipped", res.Stats.Skipped),
		slog.Int("failed", res.Stats.Failed))
	return res, nil
}

// migrateSheet writes one record as a new note file.
func (s *Service) migrateSheet(sheet *legacy.Sheet) error {
	path, err := s.store.UniquePath(sheet.Title, sheet.GroupName())
	if err != nil {
		return err
	}
	meta := sheet.Metadata(path)
	if err := s.store.Write(meta, sheet.Content); err != nil {
		return err
	}
	s.logger.Debug("migration: record migrated", slog.String("id", sheet.ID), slog.String("path", path))
	return nil
}

// backup snapshots the legacy database into dir (defaulting to the database's
// own directory) and returns the snapshot path.
func (s *Service) backup(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = filepath.Dir(s.legacy.Path())
	}
	dst := filepath.Join(dir, fmt.Sprintf("legacy-%s.db", time.Now().Format("20060102-150405")))
	if err := s.legacy.Backup(ctx, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// fileUUIDs scans the store and returns the uuid of every managed file. The
// files, not the index, decide what already exists.
func (s *Service) fileUUIDs() (map[string]struct{}, error) {
	files, err := s.store.ScanAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(files))
	for _, fi := range files {
		meta, _, err := s.store.Read(fi.Path)
		switch {
		case errors.Is(err, apperr.ErrNotManaged), errors.Is(err, apperr.ErrNotFound):
			continue
		case err != nil:
			s.logger.Warn("migration: census read failed", slog.String("path", fi.Path), slog.String("error", err.Error()))
			continue
		}
		out[meta.UUID] = struct{}{}
	}
	return out, nil
}
