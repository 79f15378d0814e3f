package syncengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeBee/notis/internal/legacy"
)

// legacySweep walks every legacy record. Records without a file are migrated
// on the spot; with deep set, records with a file get their bodies reconciled
// last-writer-wins against lastSync.
func (e *Engine) legacySweep(ctx context.Context, lastSync time.Time, byUUID map[string]parsedFile, deep bool, stats *SyncStats) error {
	sheets, err := e.legacy.ListSheets(ctx)
	if err != nil {
		return err
	}
	for i := range sheets {
		sheet := &sheets[i]
		pf, ok := byUUID[sheet.ID]
		if !ok {
			e.migrateSheet(sheet, stats)
			continue
		}
		if deep {
			e.reconcileSheet(ctx, lastSync, sheet, pf, stats)
		}
	}
	return nil
}

// migrateSheet creates a file for a legacy record that has none yet.
func (e *Engine) migrateSheet(sheet *legacy.Sheet, stats *SyncStats) {
	path, err := e.store.UniquePath(sheet.Title, sheet.GroupName())
	if err != nil {
		e.logger.Warn("sync: place legacy record failed", slog.String("id", sheet.ID), slog.String("error", err.Error()))
		stats.Errors++
		return
	}
	meta := sheet.Metadata(path)
	if err := e.store.Write(meta, sheet.Content); err != nil {
		e.logger.Warn("sync: write legacy record failed", slog.String("id", sheet.ID), slog.String("error", err.Error()))
		stats.Errors++
		return
	}
	stats.FilesAdded++
	if err := e.idx.UpsertNote(meta, sheet.Content); err != nil {
		e.logger.Warn("sync: index legacy record failed", slog.String("path", path), slog.String("error", err.Error()))
		stats.Errors++
		return
	}
	e.logger.Debug("sync: migrated legacy record", slog.String("id", sheet.ID), slog.String("path", path))
	e.emit("created", path)
}

// reconcileSheet resolves a body divergence between a file and its legacy
// record. Both sides changed since lastSync means a conflict: the later
// Modified stamp wins, ties go to the file side, and when the legacy side
// wins the overwritten file content is preserved next to it as a .conflict
// sidecar.
func (e *Engine) reconcileSheet(ctx context.Context, lastSync time.Time, sheet *legacy.Sheet, pf parsedFile, stats *SyncStats) {
	if pf.body == sheet.Content {
		return
	}
	fileChanged := pf.meta.Modified.After(lastSync)
	legacyChanged := sheet.ModifiedAt.After(lastSync)

	switch {
	case fileChanged && legacyChanged:
		winner := "file"
		var ok bool
		if sheet.ModifiedAt.After(pf.meta.Modified) {
			winner = "legacy"
			ok = e.applyLegacyWin(sheet, pf, true, stats)
		} else {
			ok = e.applyFileWin(ctx, sheet, pf, stats)
		}
		if ok {
			stats.Conflicts++
			e.logger.Info("sync: conflict resolved",
				slog.String("path", pf.meta.Path),
				slog.String("winner", winner))
		}
	case fileChanged:
		e.applyFileWin(ctx, sheet, pf, stats)
	case legacyChanged:
		if e.applyLegacyWin(sheet, pf, false, stats) {
			stats.IndexUpdated++
		}
	default:
		// Divergence predates the last sync, so the stamps say nothing.
		// Files are authoritative.
		e.applyFileWin(ctx, sheet, pf, stats)
	}
}

// applyFileWin pushes the file body back into the legacy record.
func (e *Engine) applyFileWin(ctx context.Context, sheet *legacy.Sheet, pf parsedFile, stats *SyncStats) bool {
	if err := e.legacy.UpdateSheetContent(ctx, sheet.ID, pf.body, pf.meta.Modified); err != nil {
		e.logger.Warn("sync: legacy write-back failed", slog.String("id", sheet.ID), slog.String("error", err.Error()))
		stats.Errors++
		return false
	}
	return true
}

// applyLegacyWin rewrites the file with the legacy body. With sidecar set the
// file's current bytes are first copied to <path>.conflict; the sidecar is
// best effort and never blocks the overwrite.
func (e *Engine) applyLegacyWin(sheet *legacy.Sheet, pf parsedFile, sidecar bool, stats *SyncStats) bool {
	if sidecar {
		raw, err := e.store.ReadRaw(pf.meta.Path)
		if err == nil {
			err = e.store.WriteRaw(pf.meta.Path+".conflict", raw)
		}
		if err != nil {
			e.logger.Warn("sync: conflict sidecar failed", slog.String("path", pf.meta.Path), slog.String("error", err.Error()))
			stats.Errors++
		}
	}

	meta := *pf.meta
	meta.Modified = sheet.ModifiedAt
	if err := e.store.Write(&meta, sheet.Content); err != nil {
		e.logger.Warn("sync: file overwrite failed", slog.String("path", meta.Path), slog.String("error", err.Error()))
		stats.Errors++
		return false
	}
	if err := e.idx.UpsertNote(&meta, sheet.Content); err != nil {
		e.logger.Warn("sync: index failed", slog.String("path", meta.Path), slog.String("error", err.Error()))
		stats.Errors++
		return false
	}
	e.emit("updated", meta.Path)
	return true
}
