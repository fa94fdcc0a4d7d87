package bib

import (
	"reflect"
	"testing"
)

func TestEntryGetStripsDelimiters(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"braced", "{Some Title}", "Some Title"},
		{"quoted", `"Some Title"`, "Some Title"},
		{"bare", "2020", "2020"},
		{"nested braces kept", "{A {Nested} Title}", "A {Nested} Title"},
		{"adjacent groups not stripped", "{a}{b}", "{a}{b}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Fields: []Field{{Name: "title", Value: tt.raw}}}
			if got := e.Get("title"); got != tt.want {
				t.Errorf("Get = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntrySet(t *testing.T) {
	e := &Entry{Key: "k", Type: "misc"}
	e.Set("title", "First")
	e.Set("title", "Second")
	if got := e.Get("title"); got != "Second" {
		t.Errorf("Get = %q, want Second", got)
	}
	if len(e.Fields) != 1 {
		t.Errorf("Set duplicated the field: %v", e.Fields)
	}
	e.Set("title", "")
	if e.Has("title") {
		t.Error("empty Set should remove the field")
	}
}

func TestEntryAuthors(t *testing.T) {
	e := &Entry{Fields: []Field{{Name: "author", Value: "{Smith, Jane and Doe, John and Wu, Li}"}}}
	want := []string{"Smith, Jane", "Doe, John", "Wu, Li"}
	if got := e.Authors(); !reflect.DeepEqual(got, want) {
		t.Errorf("Authors = %v, want %v", got, want)
	}
	if got := (&Entry{}).Authors(); got != nil {
		t.Errorf("no author field: got %v, want nil", got)
	}
}

func TestEntryYear(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"{2020}", "2020"},
		{"{c. 1999}", "1999"},
		{"{forthcoming}", ""},
		{"", ""},
	}
	for _, tt := range tests {
		e := &Entry{}
		if tt.raw != "" {
			e.Fields = []Field{{Name: "year", Value: tt.raw}}
		}
		if got := e.Year(); got != tt.want {
			t.Errorf("Year(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEntryRating(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"rank3", 3},
		{"rank5", 5},
		{"rank9", 5},
		{"3", 3},
		{"junk", 0},
		{"", 0},
	}
	for _, tt := range tests {
		e := &Entry{}
		if tt.raw != "" {
			e.Fields = []Field{{Name: "ranking", Value: "{" + tt.raw + "}"}}
		}
		if got := e.Rating(); got != tt.want {
			t.Errorf("Rating(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}

	e := &Entry{}
	e.SetRating(4)
	if got := e.Get("ranking"); got != "rank4" {
		t.Errorf("SetRating stored %q, want rank4", got)
	}
	e.SetRating(0)
	if e.Has("ranking") {
		t.Error("SetRating(0) should remove the field")
	}
}

func TestEntryReadState(t *testing.T) {
	e := &Entry{Fields: []Field{{Name: "readstate", Value: "{reading}"}}}
	if got := e.ReadState(); got != "reading" {
		t.Errorf("ReadState = %q, want reading", got)
	}
	e.Set("readstate", "bogus")
	if got := e.ReadState(); got != "" {
		t.Errorf("unrecognized state: got %q, want empty", got)
	}
}

func TestCollectionAppendRemove(t *testing.T) {
	c := &Collection{}
	c.Append(&Entry{Key: "a", Type: "misc"})
	c.Append(&Entry{Key: "b", Type: "misc"})
	if !c.Dirty {
		t.Error("Append should mark the collection dirty")
	}
	if !c.Remove("a") {
		t.Error("Remove(a) = false")
	}
	if c.Lookup("a") != nil {
		t.Error("a still present after Remove")
	}
	if c.Remove("missing") {
		t.Error("Remove(missing) = true")
	}
	if len(c.Entries()) != 1 {
		t.Errorf("got %d entries, want 1", len(c.Entries()))
	}
}
