package casepath

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"notes[*].text", "notes[0].text", true},
		{"notes[*].text", "notes[57].text", true},
		{"notes[*].text", "notes.text", false},
		{"notes[*].text", "notes[x].text", false},
		{"notes[*].text", "notes[0].texts", false},
		{"notes[*].text", "notes[-1].text", false},
		{"notes[*].text", "notes[0].text.extra", false},
		{"notes[*].text", "xnotes[0].text", false},
		{"notes[*].text", "notes[].text", false},
		{"notes[2].text", "notes[2].text", true},
		{"notes[2].text", "notes[3].text", false},
		{"timing.arrivalTime", "timing.arrivalTime", true},
		{"timing.arrivalTime", "timing", false},
		{"infection.cultures[*].collectedAt", "infection.cultures[1].collectedAt", true},
		{"matrix[*][*]", "matrix[1][2]", true},
		{"matrix[*][*]", "matrix[1]", false},
	}
	for _, tc := range cases {
		if got := Match(tc.pattern, tc.path); got != tc.want {
			t.Errorf("Match(%q, %q) = %t, want %t", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestCompileRejectsMalformedPatterns(t *testing.T) {
	for _, raw := range []string{"", ".notes", "notes.", "notes..text", "[0].text", "notes[*", "notes[0]text", "notes[-1]", "no tes", "notes[?]"} {
		if _, err := Compile(raw); err == nil {
			t.Errorf("Compile(%q) should fail", raw)
		}
	}
}

func TestWildcardNotAllowedInConcretePath(t *testing.T) {
	if Valid("notes[*].text") {
		t.Fatal("concrete path must not contain wildcards")
	}
	if !Valid("notes[12].text") {
		t.Fatal("expected concrete path to be valid")
	}
}

func TestMatchPrefixSelectsSubtrees(t *testing.T) {
	p := MustCompile("surgical")
	if !p.MatchPrefix("surgical.cptCodes[0]") {
		t.Fatal("expected subtree match")
	}
	if !p.MatchPrefix("surgical") {
		t.Fatal("expected exact match to count as prefix")
	}
	if p.MatchPrefix("surgicalNotes") {
		t.Fatal("prefix match must respect segment boundaries")
	}
	if p.Match("surgical.procedure") {
		t.Fatal("anchored match must not accept descendants")
	}
}

func TestZeroPatternMatchesNothing(t *testing.T) {
	var p Pattern
	if p.Match("notes[0].text") || p.MatchPrefix("notes") {
		t.Fatal("zero pattern should never match")
	}
}

func TestFlatten(t *testing.T) {
	tree := map[string]any{
		"caseId": "c1",
		"timing": map[string]any{"arrivalTime": "07:00"},
		"notes": []any{
			map[string]any{"text": "a"},
			map[string]any{"text": "b", "bad key": 1},
		},
		"empty":   map[string]any{},
		"bad-key": "ignored",
	}
	flat := Flatten(tree)
	want := map[string]any{
		"caseId":             "c1",
		"timing.arrivalTime": "07:00",
		"notes[0].text":      "a",
		"notes[1].text":      "b",
	}
	if len(flat) != len(want) {
		t.Fatalf("flatten = %v", flat)
	}
	for k, v := range want {
		if flat[k] != v {
			t.Errorf("flat[%q] = %v, want %v", k, flat[k], v)
		}
	}
}

func TestWildcardProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)
	p := MustCompile("notes[*].text")

	properties.Property("any non-negative index matches", prop.ForAll(
		func(n int) bool {
			return p.Match(fmt.Sprintf("notes[%d].text", n))
		},
		gen.IntRange(0, 1<<30),
	))
	properties.Property("negative indexes never match", prop.ForAll(
		func(n int) bool {
			return !p.Match(fmt.Sprintf("notes[%d].text", n))
		},
		gen.IntRange(-(1<<30), -1),
	))
	properties.Property("field suffixes break the match", prop.ForAll(
		func(n int, suffix string) bool {
			if suffix == "" {
				return true
			}
			return !p.Match(fmt.Sprintf("notes[%d].text%s", n, suffix))
		},
		gen.IntRange(0, 1000),
		gen.AlphaString(),
	))
	properties.TestingRun(t)
}
