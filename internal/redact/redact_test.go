package redact

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDefaultPatterns(t *testing.T) {
	p := Default()
	cases := []struct {
		in   string
		leak string
	}{
		{"SSN 123-45-6789 on file", "123-45-6789"},
		{"MRN: 00123456 admitted", "00123456"},
		{"DOB: 04/12/1961", "1961"},
		{"contact jane.doe@example.org", "jane.doe@example.org"},
		{"call (555) 123-4567 today", "123-4567"},
		{"call 555-123-4567 today", "555-123-4567"},
		{"Patient: John Smith arrived late", "John Smith"},
		{"Pt: Maria arrived", "Maria"},
	}
	for _, tc := range cases {
		got := p.RedactString(tc.in)
		if strings.Contains(got, tc.leak) || !strings.Contains(got, Token) {
			t.Errorf("RedactString(%q) = %q", tc.in, got)
		}
	}
	if got := p.RedactString("arrived 07:42, started 08:15"); got != "arrived 07:42, started 08:15" {
		t.Fatalf("clinical times should survive, got %q", got)
	}
}

func TestDefaultPatternsStayOnOneLine(t *testing.T) {
	p := Default()
	cases := []string{
		"Result: Patient: John Smith\nReason: Late start\nEvidence: notes[0].text",
		"Result: MRN:\nReason: Late start\nEvidence: notes[0].text",
		"Result: Pt:\nReason: Late start\nEvidence: notes[0].text",
	}
	for _, in := range cases {
		got := p.RedactString(in)
		lines := strings.Split(got, "\n")
		if len(lines) != 3 {
			t.Fatalf("RedactString(%q) = %q, want three lines", in, got)
		}
		if !strings.HasPrefix(lines[1], "Reason: Late start") || lines[2] != "Evidence: notes[0].text" {
			t.Fatalf("labels after the first line were altered: %q", got)
		}
	}
	if got := p.RedactString(cases[0]); strings.Contains(got, "John Smith") {
		t.Fatalf("name leaked: %q", got)
	}
}

func TestDisabledPolicyIsIdentity(t *testing.T) {
	p := Default()
	p.Enabled = false
	if got := p.RedactString("SSN 123-45-6789"); got != "SSN 123-45-6789" {
		t.Fatalf("disabled policy redacted: %q", got)
	}
}

func TestValueRecursesAndPreservesLeaves(t *testing.T) {
	in := map[string]any{
		"text":  "Patient: John Smith",
		"count": 3,
		"ok":    true,
		"nested": []any{
			map[string]any{"email": "a@b.io", "score": 0.5},
			nil,
		},
		"tags": []string{"123-45-6789", "plain"},
	}
	out := Value(Default(), in).(map[string]any)
	if out["count"] != 3 || out["ok"] != true {
		t.Fatalf("non-string leaves changed: %v", out)
	}
	nested := out["nested"].([]any)
	if nested[0].(map[string]any)["email"] != Token || nested[0].(map[string]any)["score"] != 0.5 || nested[1] != nil {
		t.Fatalf("nested not redacted correctly: %v", nested)
	}
	if tags := out["tags"].([]string); tags[0] != Token || tags[1] != "plain" {
		t.Fatalf("tags = %v", tags)
	}
	if in["text"] != "Patient: John Smith" {
		t.Fatal("input mutated")
	}
}

func TestValueIdempotentOnStructures(t *testing.T) {
	in := map[string]any{"a": []any{"MRN 123456 Pt: Ann Lee", map[string]any{"b": "x@y.com"}}}
	once := Value(Default(), in)
	twice := Value(Default(), once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent: %v vs %v", once, twice)
	}
}

func TestWithPatterns(t *testing.T) {
	p, err := Default().WithPatterns(`\bBed \d+\b`)
	if err != nil {
		t.Fatalf("with patterns: %v", err)
	}
	if got := p.RedactString("moved to Bed 12"); got != "moved to "+Token {
		t.Fatalf("got %q", got)
	}
	if _, err := Default().WithPatterns(`(`); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := Default().WithPatterns(`REDACTED`); err == nil {
		t.Fatal("patterns matching the token must be rejected")
	}
}

func TestRedactionIdempotenceProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)
	p := Default()

	fragment := gen.OneConstOf(
		"123-45-6789", "MRN 0099881", "DOB 1/2/1970", "ann@example.com",
		"(555) 010-9999", "Patient: John Smith", "Pt: Li", "arrived late", " ", "notes[2].text", "07:42",
	)
	properties.Property("redact(redact(x)) == redact(x)", prop.ForAll(
		func(parts []string, noise string) bool {
			x := strings.Join(parts, noise)
			once := p.RedactString(x)
			return p.RedactString(once) == once
		},
		gen.SliceOf(fragment, reflect.TypeOf("")),
		gen.AnyString(),
	))
	properties.Property("arbitrary text is idempotent", prop.ForAll(
		func(x string) bool {
			once := p.RedactString(x)
			return p.RedactString(once) == once
		},
		gen.AnyString(),
	))
	properties.TestingRun(t)
}
