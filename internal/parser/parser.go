// Package parser implements the note file format: YAML frontmatter followed
// by a Markdown body. It parses raw bytes into typed metadata, composes the
// canonical on-disk form, and derives presentation fields (title, excerpt,
// word count, checksum).
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const excerptLen = 200

// Frontmatter is the typed YAML header of a managed note file. Timestamps are
// kept as strings on the wire; ParseTime/FormatTime define the accepted forms.
type Frontmatter struct {
	UUID     string   `yaml:"uuid"`
	Title    string   `yaml:"title"`
	Tags     []string `yaml:"tags,omitempty"`
	Created  string   `yaml:"created"`
	Modified string   `yaml:"modified"`
	Status   string   `yaml:"status"`
}

// Result holds the output of parsing a note file.
type Result struct {
	FM    *Frontmatter // nil when frontmatter is absent or not valid YAML
	Body  string
	Title string // frontmatter title, else first H1, else ""
}

// Parse splits raw bytes into frontmatter and body. Absent or malformed
// frontmatter is not an error here; FM is nil and the whole content becomes
// the body. Callers decide whether such a file is managed.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)
	return &Result{
		FM:    fm,
		Body:  body,
		Title: deriveTitle(fm, body),
	}, nil
}

// Compose renders the canonical on-disk form: frontmatter between ---
// delimiters, a blank line, then the body.
func Compose(fm *Frontmatter, body string) ([]byte, error) {
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found, or the block is not
// valid YAML, the entire content is body and fm is nil.
func splitFrontmatter(data []byte) (*Frontmatter, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	// Find end delimiter.
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter; treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	// Body starts after closing delimiter line.
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}

	return &fm, body
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm *Frontmatter, body string) string {
	if fm != nil && fm.Title != "" {
		return fm.Title
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Excerpt returns a single-line preview of body, at most excerptLen runes.
func Excerpt(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	runes := []rune(s)
	if len(runes) > excerptLen {
		return string(runes[:excerptLen])
	}
	return s
}

// WordCount counts whitespace-separated words in body.
func WordCount(body string) int {
	return len(strings.Fields(body))
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// timeLayouts are the accepted frontmatter timestamp forms, most specific
// first. FormatTime always writes RFC 3339.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a frontmatter timestamp. It returns the zero time for
// empty or unrecognized values; callers substitute a sensible default.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatTime renders a timestamp for frontmatter.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
