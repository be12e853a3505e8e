// Package vault reads documents from a markdown knowledge vault on the
// filesystem: listing, frontmatter parsing, tag and wiki-link extraction,
// and path-derived metadata.
package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"gopkg.in/yaml.v3"
)

// FileInfo describes one vault file for change detection.
type FileInfo struct {
	Path    string    `json:"path"` // relative to the vault root
	ModTime time.Time `json:"mtime"`
	Size    int64     `json:"size"`
}

// Vault is a filesystem-backed document source.
type Vault struct {
	root   string
	logger *slog.Logger
}

// New creates a Vault rooted at dir.
func New(dir string, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: %s is not a directory", dir)
	}
	return &Vault{root: dir, logger: logger}, nil
}

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// ListFiles walks the vault and returns every markdown file, sorted by path.
// Hidden directories (like .obsidian) are skipped.
func (v *Vault) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != v.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(v.root, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Load reads one document: frontmatter stripped into Frontmatter, tags
// merged from frontmatter and inline #tags, wiki-links extracted.
func (v *Vault) Load(ctx context.Context, relPath string) (domain.Document, error) {
	full := filepath.Join(v.root, filepath.FromSlash(relPath))
	raw, err := os.ReadFile(full)
	if err != nil {
		return domain.Document{}, fmt.Errorf("vault: read %s: %w", relPath, err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return domain.Document{}, fmt.Errorf("vault: stat %s: %w", relPath, err)
	}

	front, body := ParseFrontmatter(string(raw))

	doc := domain.Document{
		Path:        relPath,
		Content:     body,
		Frontmatter: front,
		Tags:        mergeTags(frontmatterTags(front), ExtractTags(body)),
		Links:       ExtractLinks(body),
		ModifiedAt:  info.ModTime(),
		CreatedAt:   frontmatterTime(front, "created", info.ModTime()),
	}
	return doc, nil
}

// Metadata derives the chunk metadata for a document.
func Metadata(doc domain.Document) domain.Metadata {
	meta := domain.Metadata{
		FrontmatterTags: frontmatterTags(doc.Frontmatter),
		ContentTags:     ExtractTags(doc.Content),
		Links:           doc.Links,
		FileType:        strings.TrimPrefix(filepath.Ext(doc.Path), "."),
		ContentType:     "note",
		Category:        pathCategory(doc.Path),
		CreatedAt:       doc.CreatedAt,
		ModifiedAt:      doc.ModifiedAt,
	}
	if topic, ok := doc.Frontmatter["topic"].(string); ok {
		meta.Topic = topic
	}
	if y, m, d, ok := pathDate(doc.Path); ok {
		meta.Year, meta.Month, meta.Day = y, m, d
		meta.ContentType = "daily_note"
	}
	return meta
}

// ParseFrontmatter splits a leading `---` fenced YAML block from the body.
// Malformed frontmatter is left in the body untouched.
func ParseFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return nil, content
	}
	rest := strings.TrimPrefix(content, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, content
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var front map[string]any
	if err := yaml.Unmarshal([]byte(block), &front); err != nil {
		return nil, content
	}
	return front, body
}

var (
	tagPattern  = regexp.MustCompile(`(^|\s)#([\p{L}\d][\p{L}\d/_-]*)`)
	linkPattern = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|[^\[\]]*)?\]\]`)
	datePattern = regexp.MustCompile(`(\d{4})[-/](\d{2})[-/](\d{2})`)
)

// ExtractTags returns inline #tags from the body, deduplicated in order of
// first appearance.
func ExtractTags(body string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, m := range tagPattern.FindAllStringSubmatch(body, -1) {
		tag := m[2]
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// ExtractLinks returns [[wiki-link]] targets, deduplicated in order of first
// appearance. Aliased links ([[target|label]]) yield the target.
func ExtractLinks(body string) []string {
	var links []string
	seen := make(map[string]struct{})
	for _, m := range linkPattern.FindAllStringSubmatch(body, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		links = append(links, target)
	}
	return links
}

// pathDate finds a YYYY-MM-DD or YYYY/MM/DD sequence in the path.
func pathDate(path string) (year, month, day int, ok bool) {
	m := datePattern.FindStringSubmatch(path)
	if m == nil {
		return 0, 0, 0, false
	}
	year, _ = strconv.Atoi(m[1])
	month, _ = strconv.Atoi(m[2])
	day, _ = strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	return year, month, day, true
}

// pathCategory is the first directory segment, empty for root-level notes.
func pathCategory(path string) string {
	if i := strings.Index(path, "/"); i > 0 {
		return path[:i]
	}
	return ""
}

func frontmatterTags(front map[string]any) []string {
	raw, ok := front["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		var tags []string
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		var tags []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return nil
}

func frontmatterTime(front map[string]any, key string, fallback time.Time) time.Time {
	raw, ok := front[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339, time.DateOnly, "2006-01-02 15:04"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return fallback
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
