package bib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleBib = `% Personal bibliography
@string{jml = {Journal of Machine Learning}}

@article{smith2020,
  title = {A Study of Things},
  author = {Smith, Jane and Doe, John},
  year = {2020},
  journal = jml,
  doi = {10.1234/abc},
  note = {with {Braced} text}
}

@inproceedings{doe2021,
  title = "Quoted Title with {Protected} Braces",
  author = {Doe, John},
  year = 2021
}
`

func TestParseBasics(t *testing.T) {
	c := Parse(sampleBib)

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if len(c.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", c.Diagnostics)
	}

	e := c.Lookup("smith2020")
	if e == nil {
		t.Fatal("smith2020 not found")
	}
	if e.Type != "article" {
		t.Errorf("type = %q, want article", e.Type)
	}
	if got := e.Title(); got != "A Study of Things" {
		t.Errorf("title = %q", got)
	}
	if got := e.Get("journal"); got != "jml" {
		t.Errorf("macro value = %q, want jml", got)
	}
	if got := e.Get("note"); got != "with {Braced} text" {
		t.Errorf("nested braces = %q", got)
	}

	q := c.Lookup("doe2021")
	if q == nil {
		t.Fatal("doe2021 not found")
	}
	if got := q.Title(); got != "Quoted Title with {Protected} Braces" {
		t.Errorf("quoted title = %q", got)
	}
	if got := q.Year(); got != "2021" {
		t.Errorf("bare year = %q", got)
	}
}

func TestParseFieldValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
		key  string
		fld  string
		want string
	}{
		{"braced", `@misc{k, note = {plain}}`, "k", "note", "plain"},
		{"quoted", `@misc{k, note = "quoted"}`, "k", "note", "quoted"},
		{"bare number", `@misc{k, year = 1999}`, "k", "year", "1999"},
		{"concatenation kept raw", `@misc{k, note = "a" # "b"}`, "k", "note", `"a" # "b"`},
		{"paren delimiters", `@misc(k, note = {v})`, "k", "note", "v"},
		{"case-insensitive lookup", `@MISC{k, NOTE = {v}}`, "k", "note", "v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Parse(tt.src)
			e := c.Lookup(tt.key)
			if e == nil {
				t.Fatalf("entry %q not parsed: %v", tt.key, c.Diagnostics)
			}
			var got string
			if tt.name == "concatenation kept raw" {
				for _, f := range e.Fields {
					if f.Name == tt.fld {
						got = f.Value
					}
				}
			} else {
				got = e.Get(tt.fld)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFieldlessEntry(t *testing.T) {
	c := Parse(`@misc{lonely}`)
	if e := c.Lookup("lonely"); e == nil {
		t.Fatalf("fieldless entry not parsed: %v", c.Diagnostics)
	}
}

func TestParseMalformedEntrySkipped(t *testing.T) {
	src := `@article{good2020,
  title = {Fine},
  year = {2020}
}

@article{broken2020,
  title = {no closing brace

@article{also2021,
  title = {Also Fine},
  year = {2021}
}
`
	c := Parse(src)

	if c.Lookup("good2020") == nil {
		t.Error("good2020 lost")
	}
	if c.Lookup("also2021") == nil {
		t.Error("entry after the malformed one lost")
	}
	if c.Lookup("broken2020") != nil {
		t.Error("malformed entry should be dropped")
	}
	if len(c.Diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1: %v", len(c.Diagnostics), c.Diagnostics)
	}
	if c.Diagnostics[0].Line != 6 {
		t.Errorf("diagnostic line = %d, want 6", c.Diagnostics[0].Line)
	}
}

func TestParseDuplicateKeys(t *testing.T) {
	src := `@misc{dup, note = {one}}
@misc{dup, note = {two}}
@misc{other, note = {three}}
`
	c := Parse(src)
	if len(c.Duplicates) != 1 || c.Duplicates[0] != "dup" {
		t.Errorf("Duplicates = %v, want [dup]", c.Duplicates)
	}
	// First occurrence wins lookups.
	if got := c.Lookup("dup").Get("note"); got != "one" {
		t.Errorf("Lookup(dup) note = %q, want one", got)
	}
}

func TestParsePreservesNonEntryText(t *testing.T) {
	src := "% header comment\n\n@misc{k, note = {v}}\n\n% trailing\n"
	c := Parse(src)
	// Raw regions come back byte-for-byte; the entry itself is re-emitted in
	// the standard layout.
	want := "% header comment\n\n@misc{k,\n  note = {v}\n}\n\n% trailing\n"
	if got := Serialize(c); got != want {
		t.Errorf("round trip:\ngot  %q\nwant %q", got, want)
	}
}

func TestParseKeepsFieldNameCasing(t *testing.T) {
	src := "@misc{k,\n  Custom-Note = {v},\n  title = {T}\n}\n"
	c := Parse(src)
	out := Serialize(c)
	if !strings.Contains(out, "Custom-Note = {v}") {
		t.Errorf("unknown field name casing lost:\n%s", out)
	}
	// Lookups stay case-insensitive.
	if got := c.Lookup("k").Get("custom-note"); got != "v" {
		t.Errorf("Get(custom-note) = %q, want v", got)
	}
}

func TestParseEmailAtSignInRaw(t *testing.T) {
	src := "% contact alice@example.org\n@misc{k, note = {v}}\n"
	c := Parse(src)
	if len(c.Entries()) != 1 {
		t.Fatalf("got %d entries, want 1", len(c.Entries()))
	}
	if len(c.Diagnostics) != 0 {
		t.Errorf("@ in free text produced diagnostics: %v", c.Diagnostics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.bib"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadSetsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.bib")
	if err := os.WriteFile(path, []byte(sampleBib), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Path != path {
		t.Errorf("Path = %q, want %q", c.Path, path)
	}
}
