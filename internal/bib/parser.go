package bib

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Load reads and parses a bibliography file. An unreadable file is an error;
// malformed entries inside a readable file are not — they are skipped and
// reported through Collection.Diagnostics.
func Load(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bibliography: %w", err)
	}
	c := Parse(string(data))
	c.Path = path
	return c, nil
}

// Parse parses bibliography text into a Collection. Content outside entry
// blocks is retained verbatim in position. @string, @preamble and @comment
// blocks are treated as verbatim regions, not entries.
func Parse(src string) *Collection {
	p := &parser{src: src}
	c := &Collection{}
	rawStart := 0

	for p.pos < len(src) {
		at := strings.IndexByte(src[p.pos:], '@')
		if at < 0 {
			break
		}
		start := p.pos + at
		p.pos = start
		if !p.looksLikeBlock(start) {
			p.pos = start + 1
			continue
		}

		entry, verbatim, err := p.parseBlock()
		if err != nil {
			c.Diagnostics = append(c.Diagnostics, Diagnostic{
				Line:    lineOf(src, start),
				Message: err.Error(),
			})
			// Emit the text before the bad entry, drop the entry itself and
			// resume at the next plausible block start.
			if start > rawStart {
				c.Items = append(c.Items, Item{Raw: src[rawStart:start]})
			}
			p.pos = p.nextBlockStart(start + 1)
			rawStart = p.pos
			continue
		}

		if start > rawStart {
			c.Items = append(c.Items, Item{Raw: src[rawStart:start]})
		}
		if entry != nil {
			c.Items = append(c.Items, Item{Entry: entry})
		} else {
			c.Items = append(c.Items, Item{Raw: verbatim})
		}
		rawStart = p.pos
	}

	if rawStart < len(src) {
		c.Items = append(c.Items, Item{Raw: src[rawStart:]})
	}
	c.findDuplicates()
	return c
}

type parser struct {
	src string
	pos int
}

// looksLikeBlock reports whether position i starts "@ident{" or "@ident(".
func (p *parser) looksLikeBlock(i int) bool {
	j := i + 1
	for j < len(p.src) && isIdentRune(rune(p.src[j])) {
		j++
	}
	if j == i+1 {
		return false
	}
	for j < len(p.src) && (p.src[j] == ' ' || p.src[j] == '\t') {
		j++
	}
	return j < len(p.src) && (p.src[j] == '{' || p.src[j] == '(')
}

// nextBlockStart finds the next offset that looks like a block start, or EOF.
func (p *parser) nextBlockStart(from int) int {
	for i := from; i < len(p.src); i++ {
		if p.src[i] == '@' && p.looksLikeBlock(i) {
			return i
		}
	}
	return len(p.src)
}

// parseBlock parses one @-block starting at p.pos. For regular entries it
// returns the Entry; for @string/@preamble/@comment it returns the block
// text verbatim.
func (p *parser) parseBlock() (*Entry, string, error) {
	start := p.pos
	p.pos++ // consume '@'
	kind := p.ident()
	if kind == "" {
		return nil, "", fmt.Errorf("expected entry type after '@'")
	}
	p.skipSpace()
	open := p.src[p.pos] // guaranteed '{' or '(' by looksLikeBlock
	closeCh := byte('}')
	if open == '(' {
		closeCh = ')'
	}

	switch strings.ToLower(kind) {
	case "string", "preamble", "comment":
		end, err := p.skipBalanced(p.pos, open, closeCh)
		if err != nil {
			return nil, "", fmt.Errorf("unterminated @%s block", kind)
		}
		p.pos = end
		return nil, p.src[start:end], nil
	}

	p.pos++ // consume opener
	p.skipSpace()
	keyStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ',' && p.src[p.pos] != closeCh && p.src[p.pos] != '\n' {
		p.pos++
	}
	key := strings.TrimSpace(p.src[keyStart:p.pos])
	if key == "" {
		return nil, "", fmt.Errorf("entry @%s has no citation key", kind)
	}
	entry := &Entry{Key: key, Type: strings.ToLower(kind)}

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, "", fmt.Errorf("entry %q truncated before closing %q", key, string(closeCh))
		}
		switch p.src[p.pos] {
		case closeCh:
			p.pos++
			return entry, "", nil
		case ',':
			p.pos++
			continue
		}

		name := p.ident()
		if name == "" {
			return nil, "", fmt.Errorf("entry %q: expected field name at line %d", key, lineOf(p.src, p.pos))
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '=' {
			return nil, "", fmt.Errorf("entry %q: field %q missing '='", key, name)
		}
		p.pos++
		p.skipSpace()
		value, err := p.fieldValue(closeCh)
		if err != nil {
			return nil, "", fmt.Errorf("entry %q: field %q: %w", key, name, err)
		}
		// Name casing is kept so unknown fields re-emit unchanged; all
		// lookups match case-insensitively.
		entry.Fields = append(entry.Fields, Field{Name: name, Value: value})
	}
}

// fieldValue reads a complete field value: braced, quoted or bare, including
// `#`-concatenated parts. The raw text is returned verbatim.
func (p *parser) fieldValue(closeCh byte) (string, error) {
	start := p.pos
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return "", fmt.Errorf("value truncated")
		}
		switch c := p.src[p.pos]; {
		case c == '{':
			end, err := p.skipBalanced(p.pos, '{', '}')
			if err != nil {
				return "", fmt.Errorf("unbalanced braces")
			}
			p.pos = end
		case c == '"':
			if err := p.skipQuoted(); err != nil {
				return "", err
			}
		default:
			// Bare token: number or macro name, up to field/entry delimiter.
			for p.pos < len(p.src) {
				c := p.src[p.pos]
				if c == ',' || c == closeCh || c == '#' || c == '\n' {
					break
				}
				p.pos++
			}
		}
		// Concatenation with '#' continues the same value.
		save := p.pos
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == '#' {
			p.pos++
			continue
		}
		p.pos = save
		break
	}
	v := strings.TrimSpace(p.src[start:p.pos])
	if v == "" {
		return "", fmt.Errorf("empty value")
	}
	return v, nil
}

// skipBalanced returns the offset just past the delimiter that closes the
// opener at position i, tracking nesting.
func (p *parser) skipBalanced(i int, open, close byte) (int, error) {
	depth := 0
	for ; i < len(p.src); i++ {
		switch p.src[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced %q", string(open))
}

// skipQuoted consumes a double-quoted value; braces protect inner quotes.
func (p *parser) skipQuoted() error {
	i := p.pos + 1
	depth := 0
	for ; i < len(p.src); i++ {
		switch p.src[i] {
		case '{':
			depth++
		case '}':
			depth--
		case '"':
			if depth == 0 {
				p.pos = i + 1
				return nil
			}
		}
	}
	return fmt.Errorf("unterminated quoted value")
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentRune(rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ':' || r == '.' || r == '+'
}

func lineOf(src string, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	return 1 + strings.Count(src[:pos], "\n")
}
