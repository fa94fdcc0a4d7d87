// Package bib implements the bibliography store: parsing and serializing
// BibTeX-style collections with round-trip fidelity and backed-up,
// atomic writes.
package bib

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldKind classifies a field so consumers can branch on an explicit tag
// instead of guessing from the raw string.
type FieldKind int

const (
	KindText FieldKind = iota
	KindNameList
	KindYear
	KindKeywords
	KindRating
	KindReadState
	KindPriority
	KindFileLink
	KindURL
)

// fieldKinds maps the recognized field names to their kinds. Everything else
// is opaque text carried through verbatim.
var fieldKinds = map[string]FieldKind{
	"title":     KindText,
	"author":    KindNameList,
	"editor":    KindNameList,
	"year":      KindYear,
	"journal":   KindText,
	"booktitle": KindText,
	"doi":       KindText,
	"url":       KindURL,
	"abstract":  KindText,
	"keywords":  KindKeywords,
	"ranking":   KindRating,
	"readstate": KindReadState,
	"priority":  KindPriority,
	"file":      KindFileLink,
}

// KindOf returns the kind of a field name; unrecognized names are KindText.
func KindOf(name string) FieldKind {
	if k, ok := fieldKinds[strings.ToLower(name)]; ok {
		return k
	}
	return KindText
}

// IsRecognized reports whether the application assigns meaning to this field.
func IsRecognized(name string) bool {
	_, ok := fieldKinds[strings.ToLower(name)]
	return ok
}

// Field is one name/value pair of an entry. Value holds the text exactly as
// it appeared in the file, delimiters included, so unknown fields re-emit
// byte-for-byte. Use Entry.Get for the undelimited value.
type Field struct {
	Name  string
	Value string
}

// Entry is a single bibliographic record.
type Entry struct {
	Key    string
	Type   string // article, inproceedings, book, ...
	Fields []Field
}

// ReadStates lists the accepted readstate values, in cycle order.
var ReadStates = []string{"", "queued", "reading", "read"}

var yearRe = regexp.MustCompile(`\d{4}`)

// Get returns the value of the named field with outer braces or quotes
// stripped, or "" if the field is absent.
func (e *Entry) Get(name string) string {
	name = strings.ToLower(name)
	for _, f := range e.Fields {
		if strings.ToLower(f.Name) == name {
			return stripDelims(f.Value)
		}
	}
	return ""
}

// Has reports whether the entry carries the named field with a non-empty value.
func (e *Entry) Has(name string) bool {
	return e.Get(name) != ""
}

// Set stores a field value, replacing any existing field of the same name.
// An empty value removes the field.
func (e *Entry) Set(name, value string) {
	name = strings.ToLower(name)
	if value == "" {
		for i, f := range e.Fields {
			if strings.ToLower(f.Name) == name {
				e.Fields = append(e.Fields[:i], e.Fields[i+1:]...)
				return
			}
		}
		return
	}
	wrapped := "{" + value + "}"
	for i, f := range e.Fields {
		if strings.ToLower(f.Name) == name {
			e.Fields[i].Value = wrapped
			return
		}
	}
	e.Fields = append(e.Fields, Field{Name: name, Value: wrapped})
}

// Title returns the title field.
func (e *Entry) Title() string { return e.Get("title") }

// DOI returns the doi field.
func (e *Entry) DOI() string { return e.Get("doi") }

// URL returns the url field.
func (e *Entry) URL() string { return e.Get("url") }

// FileLink returns the raw file field (JabRef link convention).
func (e *Entry) FileLink() string { return e.Get("file") }

// Authors splits the author field on " and " into individual names.
// Names keep their original "Family, Given" or "Given Family" form.
func (e *Entry) Authors() []string {
	raw := e.Get("author")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, " and ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Year returns the first four-digit year found in the year field, or "".
func (e *Entry) Year() string {
	return yearRe.FindString(e.Get("year"))
}

// Keywords splits the keywords field on commas.
func (e *Entry) Keywords() []string {
	raw := e.Get("keywords")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Rating decodes the JabRef-style ranking field (rank1..rank5) to 0..5.
func (e *Entry) Rating() int {
	raw := strings.TrimPrefix(e.Get("ranking"), "rank")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	if n > 5 {
		return 5
	}
	return n
}

// SetRating stores the rating in JabRef ranking form; 0 removes the field.
func (e *Entry) SetRating(n int) {
	if n <= 0 {
		e.Set("ranking", "")
		return
	}
	if n > 5 {
		n = 5
	}
	e.Set("ranking", "rank"+strconv.Itoa(n))
}

// ReadState returns the readstate field if it is one of the accepted values.
func (e *Entry) ReadState() string {
	v := e.Get("readstate")
	for _, s := range ReadStates {
		if v == s {
			return v
		}
	}
	return ""
}

// Priority returns the priority field clamped to 0..3.
func (e *Entry) Priority() int {
	n, err := strconv.Atoi(e.Get("priority"))
	if err != nil || n < 0 {
		return 0
	}
	if n > 3 {
		return 3
	}
	return n
}

// stripDelims removes one layer of value delimiters: a balanced outer brace
// pair or surrounding double quotes. Bare values come back trimmed.
func stripDelims(raw string) string {
	v := strings.TrimSpace(raw)
	if len(v) >= 2 {
		if v[0] == '{' && v[len(v)-1] == '}' && balancedOuter(v) {
			return strings.TrimSpace(v[1 : len(v)-1])
		}
		if v[0] == '"' && v[len(v)-1] == '"' {
			return strings.TrimSpace(v[1 : len(v)-1])
		}
	}
	return v
}

// balancedOuter reports whether the first brace of v closes at its last byte,
// so {a}{b} is not mistaken for a single delimited value.
func balancedOuter(v string) bool {
	depth := 0
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i == len(v)-1
			}
		}
	}
	return false
}
