package loader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rawStructure is one parsed "name, key=value, ...;" record, before any
// type resolution or validation (spec.md §7: "Each record is a
// semicolon-terminated name-keyed structure").
type rawStructure struct {
	Name   string
	Fields map[string]any
	Line   int
}

var continuationLine = regexp.MustCompile(`\\\s*\n`)

// stripContinuationsAndComments joins backslash-continued lines and
// removes '#'-to-end-of-line comments (spec.md §7), operating outside
// quoted strings only.
func stripContinuationsAndComments(src string) string {
	src = continuationLine.ReplaceAllString(src, " ")

	var out strings.Builder
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '"' && (i == 0 || src[i-1] != '\\') {
			inString = !inString
		}
		if c == '#' && !inString {
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				out.WriteByte('\n')
			}
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

type parser struct {
	lx   *lexer
	peek token
	has  bool
}

func newParser(src string) *parser {
	return &parser{lx: newLexer(stripContinuationsAndComments(src))}
}

func (p *parser) read() error {
	if p.has {
		return nil
	}
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.peek = tok
	p.has = true
	return nil
}

func (p *parser) next() (token, error) {
	if err := p.read(); err != nil {
		return token{}, err
	}
	tok := p.peek
	p.has = false
	return tok, nil
}

// ParseStructureText parses a single "name, key=value, ..." record, the same
// grammar parseAll reads from a scenario file (spec.md §7), but tolerant of
// a missing trailing ';' — the form a sub-action's string value is written
// in (spec.md §4.5 / scenario #3: `sub-action="set-property, ..."`).
func ParseStructureText(src string) (name string, fields map[string]any, err error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return "", nil, fmt.Errorf("empty structure text")
	}
	if !strings.HasSuffix(trimmed, ";") {
		trimmed += ";"
	}
	structs, err := newParser(trimmed).parseAll()
	if err != nil {
		return "", nil, err
	}
	if len(structs) == 0 {
		return "", nil, fmt.Errorf("no structure found in %q", src)
	}
	return structs[0].Name, structs[0].Fields, nil
}

// parseAll reads every structure record in the file.
func (p *parser) parseAll() ([]rawStructure, error) {
	var out []rawStructure
	for {
		if err := p.read(); err != nil {
			return nil, err
		}
		if p.peek.kind == tokEOF {
			return out, nil
		}
		st, err := p.parseStructure()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
}

func (p *parser) parseStructure() (rawStructure, error) {
	nameTok, err := p.next()
	if err != nil {
		return rawStructure{}, err
	}
	if nameTok.kind != tokIdent {
		return rawStructure{}, fmt.Errorf("line %d: expected structure name, got %q", nameTok.line, nameTok.lit)
	}
	st := rawStructure{Name: nameTok.lit, Fields: map[string]any{}, Line: nameTok.line}

	for {
		if err := p.read(); err != nil {
			return rawStructure{}, err
		}
		switch {
		case p.peek.kind == tokSymbol && p.peek.lit == ";":
			p.has = false
			return st, nil
		case p.peek.kind == tokSymbol && p.peek.lit == ",":
			p.has = false
			continue
		case p.peek.kind == tokEOF:
			return rawStructure{}, fmt.Errorf("line %d: unterminated structure %q (missing ';')", nameTok.line, st.Name)
		default:
			key, value, err := p.parseField()
			if err != nil {
				return rawStructure{}, err
			}
			st.Fields[key] = value
		}
	}
}

func (p *parser) parseField() (string, any, error) {
	keyTok, err := p.next()
	if err != nil {
		return "", nil, err
	}
	if keyTok.kind != tokIdent {
		return "", nil, fmt.Errorf("line %d: expected field name, got %q", keyTok.line, keyTok.lit)
	}
	eq, err := p.next()
	if err != nil {
		return "", nil, err
	}
	if !(eq.kind == tokSymbol && eq.lit == "=") {
		return "", nil, fmt.Errorf("line %d: expected '=' after field %q", eq.line, keyTok.lit)
	}
	valTok, err := p.next()
	if err != nil {
		return "", nil, err
	}

	// Composite literal, e.g. type=(string)video/x-raw — parsed as the
	// parenthesized type tag plus the following token, recorded verbatim
	// as a string; spec.md §7 treats these as a native composite literal
	// that the handlers interpret, not the loader.
	if valTok.kind == tokSymbol && valTok.lit == "(" {
		var b strings.Builder
		b.WriteString("(")
		for {
			t, err := p.next()
			if err != nil {
				return "", nil, err
			}
			if t.kind == tokSymbol && t.lit == ")" {
				b.WriteString(")")
				break
			}
			if t.kind == tokEOF {
				return "", nil, fmt.Errorf("line %d: unterminated composite literal for field %q", keyTok.line, keyTok.lit)
			}
			b.WriteString(t.lit)
		}
		tail, err := p.next()
		if err != nil {
			return "", nil, err
		}
		b.WriteString(tail.lit)
		return keyTok.lit, b.String(), nil
	}

	switch valTok.kind {
	case tokNumber:
		if i, err := strconv.Atoi(valTok.lit); err == nil && !strings.ContainsAny(valTok.lit, ".eE") {
			return keyTok.lit, i, nil
		}
		f, err := strconv.ParseFloat(valTok.lit, 64)
		if err != nil {
			return "", nil, fmt.Errorf("line %d: invalid number %q: %w", valTok.line, valTok.lit, err)
		}
		return keyTok.lit, f, nil
	case tokString, tokIdent:
		if valTok.lit == "true" {
			return keyTok.lit, true, nil
		}
		if valTok.lit == "false" {
			return keyTok.lit, false, nil
		}
		return keyTok.lit, valTok.lit, nil
	default:
		return "", nil, fmt.Errorf("line %d: unexpected value token %q for field %q", valTok.line, valTok.lit, keyTok.lit)
	}
}
