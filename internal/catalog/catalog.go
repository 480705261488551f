// Package catalog discovers dashboard templates on disk, each optionally
// paired with a JSON dataset of the same base name.
package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxFileSize is the largest template or dataset read (8 MB).
const DefaultMaxFileSize int64 = 8 << 20

// Entry is one discovered dashboard.
type Entry struct {
	Path        string // Absolute path of the template.
	RelPath     string // Template path relative to the root, slash separated.
	Title       string // <title> of the template, or its base name.
	DatasetPath string // Sibling .json file, empty when there is none.
	Size        int64
	ContentHash string // SHA-256 of the template.
}

// Options controls Discover.
type Options struct {
	RootDir     string
	Include     []string
	Exclude     []string
	MaxFileSize int64
}

// Discover walks opts.RootDir and returns every template that passes the
// include and exclude filters and the root .gitignore. Unreadable entries
// are skipped.
func Discover(opts Options) ([]Entry, error) {
	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: resolve root: %w", err)
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var ignore gitignore
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		ignore = parseGitignore(string(data))
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !isTemplate(d.Name()) {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if ignore.ignores(relPath) || !MatchesInclude(relPath, opts.Include) || MatchesExclude(relPath, opts.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSize {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		sum := sha256.Sum256(data)
		entries = append(entries, Entry{
			Path:        path,
			RelPath:     filepath.ToSlash(relPath),
			Title:       titleOf(data, d.Name()),
			DatasetPath: siblingDataset(path),
			Size:        info.Size(),
			ContentHash: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: traversal: %w", err)
	}
	return entries, nil
}

// ReadDataset loads the entry's dataset. Entries without one get nil.
func (e Entry) ReadDataset() (json.RawMessage, error) {
	if e.DatasetPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(e.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading dataset %s: %w", e.DatasetPath, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("catalog: dataset %s is not valid JSON", e.DatasetPath)
	}
	return json.RawMessage(bytes.TrimSpace(data)), nil
}

// ReadTemplate loads the entry's template.
func (e Entry) ReadTemplate() (string, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return "", fmt.Errorf("catalog: reading template %s: %w", e.Path, err)
	}
	return string(data), nil
}

func isTemplate(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".html" || ext == ".htm"
}

func siblingDataset(path string) string {
	candidate := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		return candidate
	}
	return ""
}

func titleOf(data []byte, name string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err == nil {
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			return title
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
