package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/models"
)

// SearchResult represents one search hit.
type SearchResult struct {
	UUID    string
	Path    string
	Title   string
	Snippet string
}

const lastSyncKey = "last_sync"

// noteColumns is the select list matching scanNote, in order.
const noteColumns = `uuid, path, title, tags, excerpt, word_count, status, created, modified, checksum, size, mtime_ns`

// UpsertNote inserts or replaces a note and its FTS entry in one transaction.
// A row occupying the same path under a different uuid is displaced first so
// the path-uniqueness invariant holds.
func (db *DB) UpsertNote(meta *models.NoteMetadata, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var displaced string
	err = tx.QueryRow(`SELECT uuid FROM notes WHERE path = ? AND uuid <> ?`, meta.Path, meta.UUID).Scan(&displaced)
	switch {
	case err == nil:
		ftsDelete(tx, displaced)
		if _, err := tx.Exec(`DELETE FROM notes WHERE uuid = ?`, displaced); err != nil {
			return fmt.Errorf("index: displace %s: %w", displaced, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// Path is free.
	default:
		return fmt.Errorf("index: probe path: %w", err)
	}

	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.Exec(`
		INSERT INTO notes (uuid, path, title, tags, excerpt, word_count, status, created, modified, checksum, size, mtime_ns, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			path       = excluded.path,
			title      = excluded.title,
			tags       = excluded.tags,
			excerpt    = excluded.excerpt,
			word_count = excluded.word_count,
			status     = excluded.status,
			created    = excluded.created,
			modified   = excluded.modified,
			checksum   = excluded.checksum,
			size       = excluded.size,
			mtime_ns   = excluded.mtime_ns,
			body       = excluded.body
	`, meta.UUID, meta.Path, meta.Title, string(tagsJSON), meta.Excerpt, meta.WordCount,
		string(meta.Status), meta.Created, meta.Modified, meta.Checksum, meta.Size,
		meta.MTime.UnixNano(), body)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, meta.UUID, meta.Title, body, meta.Tags); err != nil {
		return err
	}

	return tx.Commit()
}

// RemoveNote removes a note row and its FTS entry.
func (db *DB) RemoveNote(uuid string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, uuid)
	_, _ = tx.Exec(`DELETE FROM notes WHERE uuid = ?`, uuid)

	return tx.Commit()
}

// GetByUUID returns the indexed metadata of one note.
func (db *DB) GetByUUID(uuid string) (*models.NoteMetadata, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE uuid = ?`, uuid)
	meta, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", uuid, apperr.ErrNotFound)
	}
	return meta, err
}

// GetByPath returns the indexed metadata of the note at path.
func (db *DB) GetByPath(p string) (*models.NoteMetadata, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, p)
	meta, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note at %s: %w", p, apperr.ErrNotFound)
	}
	return meta, err
}

// AllEntries returns every indexed note keyed by path. Bodies are not loaded.
func (db *DB) AllEntries() (map[string]*models.NoteMetadata, error) {
	rows, err := db.conn.Query(`SELECT ` + noteColumns + ` FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.NoteMetadata)
	for rows.Next() {
		meta, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out[meta.Path] = meta
	}
	return out, rows.Err()
}

// GetRecentlyModified returns up to limit notes, most recently modified first.
func (db *DB) GetRecentlyModified(limit int) ([]*models.NoteMetadata, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes ORDER BY modified DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: recent: %w", err)
	}
	defer rows.Close()

	var out []*models.NoteMetadata
	for rows.Next() {
		meta, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// GetTotalCount returns the number of indexed notes.
func (db *DB) GetTotalCount() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// GetAllTags returns the distinct tags across all notes, sorted. Tags are
// deduplicated case-insensitively; the first-seen spelling wins.
func (db *DB) GetAllTags() ([]string, error) {
	rows, err := db.conn.Query(`SELECT tags FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all tags: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]string)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			key := strings.ToLower(t)
			if _, ok := seen[key]; !ok {
				seen[key] = t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// GetAllFolders returns every folder containing at least one note, including
// intermediate parents, sorted. The root is not listed.
func (db *DB) GetAllFolders() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all folders: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			seen[dir] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

// LastSync reports the completion time of the last successful sync pass, or
// the zero time when none has completed.
func (db *DB) LastSync() (time.Time, error) {
	var raw string
	err := db.conn.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, lastSyncKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("index: last sync: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("index: parse last sync: %w", err)
	}
	return t, nil
}

// SetLastSync persists the completion time of a sync pass.
func (db *DB) SetLastSync(t time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, t.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("index: set last sync: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanNote reads one noteColumns row into a NoteMetadata.
func scanNote(sc rowScanner) (*models.NoteMetadata, error) {
	var (
		m       models.NoteMetadata
		rawTags string
		status  string
		mtimeNS int64
	)
	err := sc.Scan(&m.UUID, &m.Path, &m.Title, &rawTags, &m.Excerpt, &m.WordCount,
		&status, &m.Created, &m.Modified, &m.Checksum, &m.Size, &mtimeNS)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawTags), &m.Tags); err != nil {
		m.Tags = nil
	}
	m.Status = models.ParseStatus(status)
	m.MTime = time.Unix(0, mtimeNS)
	return &m, nil
}
