package casedata

import (
	"regexp"
	"sort"

	"github.com/ogulcanaydogan/caseprompt/internal/casepath"
	"github.com/ogulcanaydogan/caseprompt/internal/hash"
)

// DefaultIntent is reported when a follow-up matches no intent rule.
const DefaultIntent = "_default"

// Selection names what a rule contributes to a minimized context. Fields are
// path patterns and select whole subtrees. Notes are included when AllNotes
// is set or when NoteMatch matches the note kind or text.
type Selection struct {
	Fields    []string
	NoteMatch *regexp.Regexp
	AllNotes  bool
}

type Rule struct {
	Category Category
	Select   Selection
}

type IntentRule struct {
	Intent  string
	Trigger *regexp.Regexp
	Select  Selection
}

var (
	timingNotes     = regexp.MustCompile(`(?i)\b(arriv\w*|start\w*|delay\w*|late|wheels|in room|incision time)\b`)
	infectionNotes  = regexp.MustCompile(`(?i)\b(infect\w*|cultur\w*|antibiotic\w*|fever|wound|ssi|purulen\w*|cefazolin|vancomycin)\b`)
	procedureNotes  = regexp.MustCompile(`(?i)\b(procedure\w*|operative|op note|cpt|laterality|implant\w*|incision)\b`)
	anesthesiaNotes = regexp.MustCompile(`(?i)\b(anesthe\w*|npo|intubat\w*|airway|sedat\w*|asa)\b`)
	npoNotes        = regexp.MustCompile(`(?i)\b(npo|fast\w*|ate|drank|intake|clear liquids?|solids?)\b`)
)

// DefaultRules is the category selection table.
var DefaultRules = []Rule{
	{CategoryTiming, Selection{Fields: []string{"caseId", "timing.arrivalTime", "timing.startTime"}, NoteMatch: timingNotes}},
	{CategoryInfection, Selection{Fields: []string{"caseId", "infection.cultures[*].collectedAt", "infection.antibiotics"}, NoteMatch: infectionNotes}},
	{CategoryProcedure, Selection{Fields: []string{"caseId", "surgical"}, NoteMatch: procedureNotes}},
	{CategoryAnesthesia, Selection{Fields: []string{"caseId", "anesthesia"}, NoteMatch: anesthesiaNotes}},
}

// UnknownSelection applies to categories without a rule.
var UnknownSelection = Selection{Fields: []string{"caseId", "timing"}}

// DefaultIntentRules widen a selection when the follow-up text asks about
// something outside the category. Table order decides the primary intent.
var DefaultIntentRules = []IntentRule{
	{"procedure", regexp.MustCompile(`(?i)(procedure|miscod|coding|cpt)`), Selection{Fields: []string{"surgical"}, AllNotes: true}},
	{"npo", regexp.MustCompile(`(?i)(\bnpo\b|violation|fasting)`), Selection{Fields: []string{"anesthesia"}, NoteMatch: npoNotes}},
	{"infection", regexp.MustCompile(`(?i)(infection|culture|antibiotic)`), Selection{Fields: []string{"infection"}, NoteMatch: infectionNotes}},
	{"timing", regexp.MustCompile(`(?i)(delay|\blate\b|timeline)`), Selection{Fields: []string{"timing"}, NoteMatch: timingNotes}},
}

type SelectedNote struct {
	Index int  `json:"index"`
	Note  Note `json:"note"`
}

// Context is a minimized case slice. Field paths and note indexes use the
// coordinates of the full record so citations stay meaningful.
type Context struct {
	Category Category       `json:"category"`
	Intents  []string       `json:"intents,omitempty"`
	Fields   map[string]any `json:"fields"`
	Notes    []SelectedNote `json:"notes,omitempty"`
}

func (c Context) PrimaryIntent() string {
	if len(c.Intents) == 0 {
		return DefaultIntent
	}
	return c.Intents[0]
}

// Ref is a content digest of the context, used to group runs that saw the
// same data.
func (c Context) Ref() (string, error) {
	return hash.Digest(c)
}

// Paths lists every concrete path present in the context in sorted order.
func (c Context) Paths() []string {
	out := make([]string, 0, len(c.Fields)+len(c.Notes))
	for p := range c.Fields {
		out = append(out, p)
	}
	for _, n := range c.Notes {
		for p := range casepath.Flatten(map[string]any{"notes": []any{noteTree(n.Note)}}) {
			out = append(out, replaceIndex(p, n.Index))
		}
	}
	sort.Strings(out)
	return out
}

type Minimizer struct {
	rules   map[Category]Selection
	unknown Selection
	intents []IntentRule
	compile map[string]casepath.Pattern
}

func NewMinimizer(rules []Rule, unknown Selection, intents []IntentRule) *Minimizer {
	m := &Minimizer{
		rules:   make(map[Category]Selection, len(rules)),
		unknown: unknown,
		intents: intents,
		compile: make(map[string]casepath.Pattern),
	}
	for _, r := range rules {
		m.rules[r.Category] = r.Select
	}
	all := []Selection{unknown}
	for _, r := range rules {
		all = append(all, r.Select)
	}
	for _, r := range intents {
		all = append(all, r.Select)
	}
	for _, s := range all {
		for _, f := range s.Fields {
			if _, ok := m.compile[f]; ok {
				continue
			}
			m.compile[f] = casepath.MustCompile(f)
		}
	}
	return m
}

func DefaultMinimizer() *Minimizer {
	return NewMinimizer(DefaultRules, UnknownSelection, DefaultIntentRules)
}

func (m *Minimizer) Minimize(rec Record, category Category, followUp string) Context {
	sels := []Selection{m.selectionFor(category)}
	ctx := Context{Category: category, Fields: map[string]any{}}
	for _, ir := range m.intents {
		if followUp != "" && ir.Trigger.MatchString(followUp) {
			ctx.Intents = append(ctx.Intents, ir.Intent)
			sels = append(sels, ir.Select)
		}
	}

	tree, err := rec.tree()
	if err == nil {
		delete(tree, "notes")
		for path, value := range casepath.Flatten(tree) {
			if m.selected(sels, path) {
				ctx.Fields[path] = value
			}
		}
	}

	for i, n := range rec.Notes {
		if noteSelected(sels, n) {
			ctx.Notes = append(ctx.Notes, SelectedNote{Index: i, Note: n})
		}
	}
	return ctx
}

func (m *Minimizer) selectionFor(category Category) Selection {
	if s, ok := m.rules[category]; ok {
		return s
	}
	return m.unknown
}

func (m *Minimizer) selected(sels []Selection, path string) bool {
	for _, s := range sels {
		for _, f := range s.Fields {
			if m.compile[f].MatchPrefix(path) {
				return true
			}
		}
	}
	return false
}

func noteSelected(sels []Selection, n Note) bool {
	for _, s := range sels {
		if s.AllNotes {
			return true
		}
		if s.NoteMatch != nil && (s.NoteMatch.MatchString(n.Text) || s.NoteMatch.MatchString(n.Kind)) {
			return true
		}
	}
	return false
}

func noteTree(n Note) map[string]any {
	out := map[string]any{"text": n.Text}
	if n.Author != "" {
		out["author"] = n.Author
	}
	if n.Kind != "" {
		out["kind"] = n.Kind
	}
	if n.At != "" {
		out["at"] = n.At
	}
	return out
}

// replaceIndex rewrites the leading notes[0] produced by flattening a single
// note into its full-record index.
func replaceIndex(path string, idx int) string {
	return casepath.Join(casepath.Segment{Field: "notes"}, casepath.Segment{Index: idx, IsIndex: true}) + path[len("notes[0]"):]
}
