package bib

import (
	"os"
	"path/filepath"
	"strings"
)

// The file field follows the JabRef convention "description:path:type",
// usually ":Smith2023.pdf:PDF", so collections stay interchangeable with the
// desktop tool without field translation.

// ParseFileLink resolves a file field value to a path. Relative paths are
// resolved against baseDir when it is set.
func ParseFileLink(field, baseDir string) string {
	path := strings.TrimSpace(field)
	if strings.Contains(path, ":") {
		parts := strings.Split(path, ":")
		if len(parts) >= 2 {
			path = parts[1]
		} else {
			path = parts[0]
		}
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// FormatFileLink renders a path as a file field value. Paths inside baseDir
// are stored relative so the base directory stays configurable.
func FormatFileLink(path, baseDir string) string {
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return ":" + path + ":PDF"
}

// FindPDF returns an existing PDF path for an entry, or "". It first resolves
// the stored file field, then falls back to a "{key}*.pdf" glob in baseDir to
// absorb filename drift between tools.
func FindPDF(fileField, key, baseDir string) string {
	if fileField != "" {
		if path := ParseFileLink(fileField, baseDir); path != "" {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	if baseDir != "" && key != "" {
		matches, err := filepath.Glob(filepath.Join(baseDir, key+"*.pdf"))
		if err == nil && len(matches) > 0 {
			return matches[0]
		}
	}
	return ""
}
