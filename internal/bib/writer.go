package bib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BackupSuffix names the sibling file that holds the pre-write content of the
// most recent save.
const BackupSuffix = ".bak"

// fieldOrder is the stable serialization order for recognized fields.
// Unrecognized fields follow in their original relative order.
var fieldOrder = []string{
	"title", "author", "editor", "year", "journal", "booktitle",
	"doi", "url", "abstract", "keywords",
	"ranking", "readstate", "priority", "file",
}

// Serialize renders the collection back to bibliography text. Regions outside
// entry blocks come back byte-for-byte; entries are re-emitted with fields in
// stable order and values verbatim.
func Serialize(c *Collection) string {
	var b strings.Builder
	for i, it := range c.Items {
		if it.Entry == nil {
			b.WriteString(it.Raw)
			continue
		}
		// Entries adjacent in Items (no raw region between them) still need
		// visual separation.
		if i > 0 && c.Items[i-1].Entry != nil {
			b.WriteString("\n\n")
		}
		writeEntry(&b, it.Entry)
	}
	out := b.String()
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

func writeEntry(b *strings.Builder, e *Entry) {
	fmt.Fprintf(b, "@%s{%s,\n", e.Type, e.Key)

	ordered := make([]Field, 0, len(e.Fields))
	emitted := make(map[int]bool)
	for _, name := range fieldOrder {
		for i, f := range e.Fields {
			if !emitted[i] && strings.ToLower(f.Name) == name {
				ordered = append(ordered, f)
				emitted[i] = true
			}
		}
	}
	for i, f := range e.Fields {
		if !emitted[i] {
			ordered = append(ordered, f)
		}
	}

	for i, f := range ordered {
		fmt.Fprintf(b, "  %s = %s", f.Name, f.Value)
		if i < len(ordered)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
}

// Save writes the collection to path. The previous file content is copied to
// a deterministic sibling backup first, then the new content is written to a
// temporary file in the same directory and renamed into place, so a crash
// mid-write never corrupts the prior version.
func Save(c *Collection, path string) error {
	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+BackupSuffix, prev, 0o644); err != nil {
			return fmt.Errorf("writing backup: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading current file for backup: %w", err)
	}

	out := Serialize(c)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	c.Path = path
	c.Dirty = false
	return nil
}
