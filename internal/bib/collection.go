package bib

// Item is one positional slot of a collection: either a parsed entry or a
// verbatim region of text found outside entry blocks (comments, blank runs,
// @string/@preamble blocks). Exactly one of the two is set.
type Item struct {
	Raw   string
	Entry *Entry
}

// Diagnostic describes a recoverable parse problem, e.g. a malformed entry
// that was skipped.
type Diagnostic struct {
	Line    int
	Message string
}

// Collection is an ordered bibliography backed by a single file. Order is
// file order and is preserved across load/save so diffs stay minimal.
type Collection struct {
	Path        string
	Items       []Item
	Dirty       bool
	Diagnostics []Diagnostic
	Duplicates  []string // keys seen more than once on load, kept as-is
}

// Entries returns the parsed entries in file order.
func (c *Collection) Entries() []*Entry {
	out := make([]*Entry, 0, len(c.Items))
	for _, it := range c.Items {
		if it.Entry != nil {
			out = append(out, it.Entry)
		}
	}
	return out
}

// Lookup returns the first entry with the given key, or nil.
func (c *Collection) Lookup(key string) *Entry {
	for _, it := range c.Items {
		if it.Entry != nil && it.Entry.Key == key {
			return it.Entry
		}
	}
	return nil
}

// HasKey reports whether any entry uses the given key.
func (c *Collection) HasKey(key string) bool {
	return c.Lookup(key) != nil
}

// Append adds an entry at the end of the collection and marks it dirty.
func (c *Collection) Append(e *Entry) {
	c.Items = append(c.Items, Item{Entry: e})
	c.Dirty = true
}

// Remove deletes the entry with the given key. It reports whether an entry
// was removed.
func (c *Collection) Remove(key string) bool {
	for i, it := range c.Items {
		if it.Entry != nil && it.Entry.Key == key {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.Dirty = true
			return true
		}
	}
	return false
}

// findDuplicates records keys that occur more than once, preserving first-seen
// order. Duplicates are kept in the collection; a unify pass resolves them.
func (c *Collection) findDuplicates() {
	seen := make(map[string]int)
	for _, e := range c.Entries() {
		seen[e.Key]++
	}
	reported := make(map[string]bool)
	for _, e := range c.Entries() {
		if seen[e.Key] > 1 && !reported[e.Key] {
			c.Duplicates = append(c.Duplicates, e.Key)
			reported[e.Key] = true
		}
	}
}
