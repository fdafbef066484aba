// Package casepath implements the dot/bracket path grammar shared by context
// minimization and evidence citations: "timing.arrivalTime", "notes[3].text",
// and in patterns "notes[*].text" where [*] stands for any non-negative index.
package casepath

import (
	"fmt"
	"strconv"
	"strings"
)

type Segment struct {
	Field    string
	Index    int
	IsIndex  bool
	Wildcard bool
}

func (s Segment) String() string {
	switch {
	case s.Wildcard:
		return "[*]"
	case s.IsIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	default:
		return s.Field
	}
}

// Pattern is a parsed path pattern. The zero value matches nothing.
type Pattern struct {
	raw  string
	segs []Segment
}

func Compile(raw string) (Pattern, error) {
	segs, err := parse(raw, true)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{raw: raw, segs: segs}, nil
}

func MustCompile(raw string) Pattern {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pattern) String() string { return p.raw }

// Match reports whether path matches the whole pattern. Matching is anchored:
// a pattern never matches a longer or shorter path.
func (p Pattern) Match(path string) bool {
	segs, err := parse(path, false)
	if err != nil {
		return false
	}
	return len(segs) == len(p.segs) && p.matchSegments(segs)
}

// MatchPrefix reports whether the pattern matches path or one of its
// ancestors, so "surgical" selects "surgical.cptCodes[0]".
func (p Pattern) MatchPrefix(path string) bool {
	segs, err := parse(path, false)
	if err != nil {
		return false
	}
	return len(segs) >= len(p.segs) && p.matchSegments(segs[:len(p.segs)])
}

func (p Pattern) matchSegments(segs []Segment) bool {
	if len(p.segs) == 0 {
		return false
	}
	for i, want := range p.segs {
		got := segs[i]
		switch {
		case want.Wildcard:
			if !got.IsIndex {
				return false
			}
		case want.IsIndex:
			if !got.IsIndex || got.Index != want.Index {
				return false
			}
		default:
			if got.IsIndex || got.Field != want.Field {
				return false
			}
		}
	}
	return true
}

// Match compiles pattern and matches it against path.
func Match(pattern, path string) bool {
	p, err := Compile(pattern)
	if err != nil {
		return false
	}
	return p.Match(path)
}

// Valid reports whether path is a concrete path (no wildcards).
func Valid(path string) bool {
	_, err := parse(path, false)
	return err == nil
}

func Join(segs ...Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 && !s.IsIndex && !s.Wildcard {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

func parse(raw string, allowWildcard bool) ([]Segment, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty path")
	}
	segs := make([]Segment, 0, 4)
	i := 0
	expectField := true
	for i < len(raw) {
		c := raw[i]
		switch {
		case c == '[':
			if len(segs) == 0 {
				return nil, fmt.Errorf("path %q: index before first field", raw)
			}
			end := strings.IndexByte(raw[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated index", raw)
			}
			body := raw[i+1 : i+end]
			seg, err := parseIndex(body, allowWildcard)
			if err != nil {
				return nil, fmt.Errorf("path %q: %w", raw, err)
			}
			segs = append(segs, seg)
			i += end + 1
			expectField = false
		case c == '.':
			if expectField {
				return nil, fmt.Errorf("path %q: empty field at offset %d", raw, i)
			}
			i++
			expectField = true
			if i == len(raw) {
				return nil, fmt.Errorf("path %q: trailing dot", raw)
			}
		default:
			if !expectField {
				return nil, fmt.Errorf("path %q: missing dot at offset %d", raw, i)
			}
			j := i
			for j < len(raw) && isIdentByte(raw[j], j == i) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("path %q: invalid character %q", raw, c)
			}
			segs = append(segs, Segment{Field: raw[i:j]})
			i = j
			expectField = false
		}
	}
	return segs, nil
}

func parseIndex(body string, allowWildcard bool) (Segment, error) {
	if body == "*" {
		if !allowWildcard {
			return Segment{}, fmt.Errorf("wildcard index not allowed in a concrete path")
		}
		return Segment{Wildcard: true}, nil
	}
	if body == "" {
		return Segment{}, fmt.Errorf("empty index")
	}
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			return Segment{}, fmt.Errorf("index %q is not a non-negative integer", body)
		}
	}
	n, err := strconv.Atoi(body)
	if err != nil {
		return Segment{}, fmt.Errorf("index %q: %w", body, err)
	}
	return Segment{Index: n, IsIndex: true}, nil
}

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

// Flatten walks a decoded JSON tree and returns every leaf keyed by its
// concrete path. Empty objects and arrays produce no entries.
func Flatten(tree map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range tree {
		if !validField(k) {
			continue
		}
		flatten(out, []Segment{{Field: k}}, v)
	}
	return out
}

func flatten(out map[string]any, prefix []Segment, v any) {
	switch vv := v.(type) {
	case map[string]any:
		for k, child := range vv {
			if !validField(k) {
				continue
			}
			flatten(out, appendSeg(prefix, Segment{Field: k}), child)
		}
	case []any:
		for i, child := range vv {
			flatten(out, appendSeg(prefix, Segment{Index: i, IsIndex: true}), child)
		}
	default:
		out[Join(prefix...)] = v
	}
}

func appendSeg(prefix []Segment, s Segment) []Segment {
	next := make([]Segment, len(prefix), len(prefix)+1)
	copy(next, prefix)
	return append(next, s)
}

func validField(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i], i == 0) {
			return false
		}
	}
	return true
}
