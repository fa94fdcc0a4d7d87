// Package citekey computes canonical citation keys and unifies them across a
// whole collection.
//
// The canonical form is lower-case "surname + year" ("smith2021"), built from
// the first author's surname with LaTeX accent macros and diacritics folded
// away. Entries that collide on the same base receive a stable trailing
// suffix (a, b, ...) assigned in file order, which makes the pass idempotent.
package citekey

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/bibkeep/bibkeep/internal/bib"
)

var yearRe = regexp.MustCompile(`\d{4}`)

// Canonical derives the base key for an entry: first author's surname plus
// publication year, lower-cased and restricted to the key alphabet
// [a-z0-9-]. When the entry has no author, the leading significant title
// token stands in for the surname. Returns "" when no base can be derived.
func Canonical(e *bib.Entry) string {
	year := e.Year()
	if year == "" {
		return ""
	}
	stem := primarySurname(e.Get("author"))
	if stem == "" {
		stem = titleToken(e.Title())
	}
	if stem == "" {
		return ""
	}
	return stem + year
}

// Unify computes canonical keys for every entry in one pass and resolves
// collisions deterministically. The full remapping is computed before any
// entry is mutated; the returned map holds old key to new key for every
// entry whose key changed.
//
// Entries with no derivable base (no year, or neither author nor title) keep
// their keys when they can; when two of them share a key, later ones are
// suffixed like any other collision, so uniqueness holds after every pass.
func Unify(c *bib.Collection) map[string]string {
	entries := c.Entries()
	used := make(map[string]bool, len(entries))
	mapping := make(map[string]string)
	plan := make(map[*bib.Entry]string, len(entries))
	var eligible []*bib.Entry

	// Reserve ineligible keys first, deduplicated in file order, so
	// renumbering never collides with a key an entry is keeping.
	for _, e := range entries {
		if Canonical(e) != "" {
			eligible = append(eligible, e)
			continue
		}
		key := makeUnique(e.Key, used)
		used[key] = true
		plan[e] = key
		if key != e.Key {
			mapping[e.Key] = key
		}
	}

	// Plan first, mutate after: readers never observe a half-renamed state.
	for _, e := range eligible {
		key := makeUnique(Canonical(e), used)
		used[key] = true
		plan[e] = key
		if key != e.Key {
			mapping[e.Key] = key
		}
	}

	if len(mapping) == 0 {
		return mapping
	}
	for _, e := range entries {
		e.Key = plan[e]
	}
	c.Dirty = true
	return mapping
}

// makeUnique returns base if free, otherwise the first free suffixed variant:
// basea, baseb, ... then basez2, basez3, ... past 26 collisions.
func makeUnique(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for r := 'a'; r <= 'z'; r++ {
		if candidate := base + string(r); !used[candidate] {
			return candidate
		}
	}
	for n := 2; ; n++ {
		candidate := base + "z" + itoa(n)
		if !used[candidate] {
			return candidate
		}
	}
}

func itoa(n int) string {
	var b [8]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

// primarySurname extracts and folds the surname of the first author in a
// BibTeX author field ("Family, Given and ..." or "Given Family and ...").
func primarySurname(authorField string) string {
	first := strings.TrimSpace(strings.SplitN(authorField, " and ", 2)[0])
	if first == "" {
		return ""
	}
	var surname string
	if i := strings.Index(first, ","); i >= 0 {
		surname = first[:i]
	} else {
		parts := strings.Fields(first)
		if len(parts) == 0 {
			return ""
		}
		surname = parts[len(parts)-1]
	}
	return Fold(surname)
}

// titleToken returns the first folded title word of three or more letters,
// falling back to the first word.
func titleToken(title string) string {
	words := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if folded := Fold(w); len(folded) >= 3 {
			return folded
		}
	}
	if len(words) > 0 {
		return Fold(words[0])
	}
	return ""
}

// germanFolds maps umlauts and sharp s to their ASCII digraphs before generic
// decomposition, matching the convention German-speaking users expect
// (Müller -> mueller, not muller).
var germanFolds = strings.NewReplacer(
	"ä", "ae", "Ä", "ae",
	"ö", "oe", "Ö", "oe",
	"ü", "ue", "Ü", "ue",
	"ß", "ss",
)

var latexMacroFolds = strings.NewReplacer(
	`\ss`, "ss", `\ae`, "ae", `\AE`, "ae",
	`\oe`, "oe", `\OE`, "oe", `\aa`, "aa", `\AA`, "aa",
	`\o`, "o", `\O`, "o", `\l`, "l", `\L`, "l",
)

var (
	latexUmlautRe  = regexp.MustCompile(`\\"\s*\{?\s*([A-Za-z])\s*\}?`)
	latexAccentRe  = regexp.MustCompile(`\\['` + "`" + `^~=.uvHckrbdt]\s*\{?\s*([A-Za-z])\s*\}?`)
	latexCommandRe = regexp.MustCompile(`\\[A-Za-z]+\s*\{([^}]*)\}`)
	latexBareCmdRe = regexp.MustCompile(`\\[A-Za-z]+`)
)

// Fold normalizes a token into the key alphabet: LaTeX accent macros are
// resolved, umlauts expanded, remaining diacritics decomposed and dropped,
// and everything outside [a-z0-9-] removed.
func Fold(s string) string {
	s = foldUmlautMacros(s)
	s = latexMacroFolds.Replace(s)
	s = latexAccentRe.ReplaceAllString(s, "$1")
	s = latexCommandRe.ReplaceAllString(s, "$1")
	s = latexBareCmdRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	s = germanFolds.Replace(s)

	// NFKD decomposition, then drop combining marks: é -> e, ñ -> n.
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldUmlautMacros expands \"a style macros to their digraph form.
func foldUmlautMacros(s string) string {
	return latexUmlautRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := latexUmlautRe.FindStringSubmatch(m)
		switch sub[1] {
		case "a", "A":
			return "ae"
		case "o", "O":
			return "oe"
		case "u", "U":
			return "ue"
		default:
			return sub[1]
		}
	})
}

// IsCanonical reports whether key already has the canonical shape:
// folded stem, four-digit year, optional disambiguating suffix.
var canonicalRe = regexp.MustCompile(`^[a-z][a-z0-9-]*\d{4}[a-z]?\d*$`)

func IsCanonical(key string) bool {
	return canonicalRe.MatchString(key) && yearRe.MatchString(key)
}
