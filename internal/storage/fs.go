package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/MikeBee/notis/internal/apperr"
	"github.com/MikeBee/notis/internal/models"
	"github.com/MikeBee/notis/internal/parser"
)

// AssetsDir is the root-level directory for attachments; its contents are
// never treated as notes.
const AssetsDir = "assets"

// FS implements Store backed by the local file system.
type FS struct {
	root string // absolute path to the notes directory
}

// NewFS creates a new FS store rooted at the given directory, creating it if
// it does not exist yet.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute path of the notes directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the store root and rejects any
// result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	// Ensure the resolved path is still under root.
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes notes root: %s", rel)
	}
	return abs, nil
}

// Create writes a brand-new note: fresh uuid, slugged unique filename,
// timestamps set to now.
func (f *FS) Create(title, content, folder string, tags []string) (*models.NoteMetadata, error) {
	rel, err := f.UniquePath(title, folder)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	meta := &models.NoteMetadata{
		UUID:     uuid.NewString(),
		Title:    effectiveTitle(title),
		Path:     rel,
		Tags:     cleanTags(tags),
		Status:   models.StatusNormal,
		Created:  now,
		Modified: now,
	}
	if err := f.Write(meta, content); err != nil {
		return nil, err
	}
	return meta, nil
}

// UniquePath returns a slugged .md path under folder that no existing file
// occupies, appending -2, -3… until free.
func (f *FS) UniquePath(title, folder string) (string, error) {
	name := slug.Make(title)
	if name == "" {
		name = "untitled"
	}
	for i := 1; ; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", name, i)
		}
		rel := path.Join(folder, candidate+".md")
		abs, err := f.safePath(rel)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
			return rel, nil
		} else if err != nil {
			return "", fmt.Errorf("storage: probe %s: %w", rel, err)
		}
	}
}

// Read parses the note at path. Files without frontmatter, with malformed
// frontmatter, or without a valid uuid are reported as apperr.ErrNotManaged.
func (f *FS) Read(p string) (*models.NoteMetadata, string, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
		}
		return nil, "", fmt.Errorf("storage: read %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", fmt.Errorf("storage: stat %s: %w", p, err)
	}

	res, err := parser.Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("storage: parse %s: %w", p, err)
	}
	if res.FM == nil {
		return nil, "", fmt.Errorf("storage: %s has no frontmatter: %w", p, apperr.ErrNotManaged)
	}
	if _, err := uuid.Parse(res.FM.UUID); err != nil {
		return nil, "", fmt.Errorf("storage: %s has no valid uuid: %w", p, apperr.ErrNotManaged)
	}

	created := parser.ParseTime(res.FM.Created)
	modified := parser.ParseTime(res.FM.Modified)
	if created.IsZero() {
		created = info.ModTime()
	}
	if modified.IsZero() {
		modified = info.ModTime()
	}

	meta := &models.NoteMetadata{
		UUID:      res.FM.UUID,
		Title:     effectiveTitle(res.Title),
		Path:      filepath.ToSlash(p),
		Tags:      cleanTags(res.FM.Tags),
		Excerpt:   parser.Excerpt(res.Body),
		WordCount: parser.WordCount(res.Body),
		Status:    models.ParseStatus(res.FM.Status),
		Created:   created,
		Modified:  modified,
		Checksum:  parser.Checksum(data),
		Size:      info.Size(),
		MTime:     info.ModTime(),
	}
	return meta, res.Body, nil
}

// Write re-serializes the note at meta.Path. Modified never moves backwards:
// if the file on disk carries a later Modified, that value is kept. The
// meta's cache fields are refreshed from the written bytes.
func (f *FS) Write(meta *models.NoteMetadata, body string) error {
	if meta.UUID == "" {
		return fmt.Errorf("storage: write %s: empty uuid", meta.Path)
	}
	if meta.Modified.IsZero() {
		meta.Modified = time.Now()
	}
	if prev, _, err := f.Read(meta.Path); err == nil && prev.Modified.After(meta.Modified) {
		meta.Modified = prev.Modified
	}
	meta.Excerpt = parser.Excerpt(body)
	meta.WordCount = parser.WordCount(body)

	fm := &parser.Frontmatter{
		UUID:     meta.UUID,
		Title:    meta.Title,
		Tags:     meta.Tags,
		Created:  parser.FormatTime(meta.Created),
		Modified: parser.FormatTime(meta.Modified),
		Status:   string(meta.Status),
	}
	data, err := parser.Compose(fm, body)
	if err != nil {
		return fmt.Errorf("storage: compose %s: %w", meta.Path, err)
	}
	if err := f.WriteRaw(meta.Path, data); err != nil {
		return err
	}

	abs, err := f.safePath(meta.Path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("storage: stat %s: %w", meta.Path, err)
	}
	meta.Checksum = parser.Checksum(data)
	meta.Size = info.Size()
	meta.MTime = info.ModTime()
	return nil
}

// ScanAll walks the root and returns every .md file. Dot-directories and the
// assets directory are skipped. Files that vanish mid-scan are omitted.
func (f *FS) ScanAll() ([]models.FileInfo, error) {
	var out []models.FileInfo
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) && p != f.root {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			if p == f.root {
				return nil
			}
			rel, _ := filepath.Rel(f.root, p)
			if strings.HasPrefix(d.Name(), ".") || filepath.ToSlash(rel) == AssetsDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Vanished between listing and stat.
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.FileInfo{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan: %w", err)
	}
	return out, nil
}

// ReadRaw returns the raw bytes of a store file.
func (f *FS) ReadRaw(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// WriteRaw atomically writes content: tmp file → fsync → rename.
func (f *FS) WriteRaw(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".notis-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file from the store.
func (f *FS) Delete(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s: %w", p, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

// Move renames a file within the store.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safePath(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for move: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// effectiveTitle substitutes the placeholder for empty titles.
func effectiveTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled"
	}
	return title
}

// cleanTags trims tags and drops empties, preserving order and case.
func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
