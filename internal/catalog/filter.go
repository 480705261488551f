package catalog

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skipDirs are directory names never descended into.
var skipDirs = []string{
	".git",
	"node_modules",
	"vendor",
	".dynadash",
	".idea",
	".vscode",
}

func shouldSkipDir(name string) bool {
	for _, d := range skipDirs {
		if strings.EqualFold(name, d) {
			return true
		}
	}
	return false
}

// MatchesInclude reports whether relPath matches any include pattern. An
// empty pattern list includes everything.
func MatchesInclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	return matchesAny(relPath, patterns)
}

// MatchesExclude reports whether relPath matches any exclude pattern.
func MatchesExclude(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	return matchesAny(relPath, patterns)
}

// matchesAny tries each pattern against the slash path and its base name.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	base := filepath.Base(normalized)

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.PathMatch(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// gitignore holds the patterns of a root .gitignore file.
type gitignore []string

func parseGitignore(data string) gitignore {
	var patterns gitignore
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// ignores reports whether relPath is ignored. Patterns without a slash match
// any path component; a trailing slash matches directories only, so it is
// checked against the parent components.
func (g gitignore) ignores(relPath string) bool {
	normalized := filepath.ToSlash(relPath)
	parts := strings.Split(normalized, "/")

	for _, pattern := range g {
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimPrefix(strings.TrimSuffix(pattern, "/"), "/")

		if strings.Contains(pattern, "/") {
			if matched, _ := doublestar.Match(pattern, normalized); matched {
				return true
			}
			if matched, _ := doublestar.Match(pattern+"/**", normalized); matched {
				return true
			}
			continue
		}

		candidates := parts
		if dirOnly {
			candidates = parts[:len(parts)-1]
		}
		for _, part := range candidates {
			if matched, _ := doublestar.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
