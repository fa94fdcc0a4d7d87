package main

import (
	"testing"

	"github.com/bibkeep/bibkeep/internal/bib"
	"github.com/bibkeep/bibkeep/internal/config"
)

func TestUnpaywallEmail(t *testing.T) {
	cfg := &config.Config{UnpaywallEmail: "configured@example.org"}

	t.Setenv("UNPAYWALL_EMAIL", "")
	if got := unpaywallEmail(cfg); got != "configured@example.org" {
		t.Errorf("got %q, want configured value", got)
	}

	t.Setenv("UNPAYWALL_EMAIL", "env@example.org")
	if got := unpaywallEmail(cfg); got != "env@example.org" {
		t.Errorf("got %q, want environment override", got)
	}
}

func TestUniqueKey(t *testing.T) {
	c := &bib.Collection{}
	c.Append(&bib.Entry{Key: "smith2021", Type: "misc"})
	c.Append(&bib.Entry{Key: "smith2021a", Type: "misc"})

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"free key unchanged", "doe2020", "doe2020"},
		{"first collision", "smith2021", "smith2021b"},
		{"empty key", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uniqueKey(c, tt.key); got != tt.want {
				t.Errorf("uniqueKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestFindByDOI(t *testing.T) {
	c := &bib.Collection{}
	e := &bib.Entry{Key: "smith2021", Type: "article"}
	e.Set("doi", "10.1234/ABC")
	c.Append(e)

	if got := findByDOI(c, "10.1234/abc"); got != e {
		t.Error("case-insensitive DOI match failed")
	}
	if got := findByDOI(c, "10.9999/other"); got != nil {
		t.Errorf("unexpected match: %v", got.Key)
	}
}
