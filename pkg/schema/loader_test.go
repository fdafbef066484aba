package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const reasonSchema = `{
  "type": "object",
  "required": ["reason"],
  "properties": {
    "reason": {"type": "string", "minLength": 1}
  }
}`

func TestCompiledSchemaAcceptsValidDocument(t *testing.T) {
	s, err := Compile("reason", []byte(reasonSchema))
	if err != nil {
		t.Fatal(err)
	}
	errs, err := s.Validate(map[string]any{"reason": "ok"})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestCompiledSchemaReportsViolations(t *testing.T) {
	s := MustCompile("reason", []byte(reasonSchema))
	errs, err := s.Validate(map[string]any{"reason": ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one violation, got %v", errs)
	}
	if !strings.Contains(errs[0], "reason") {
		t.Fatalf("violation should name the field: %q", errs[0])
	}
}

func TestCompileRejectsBrokenSchema(t *testing.T) {
	if _, err := Compile("broken", []byte(`{"type": 12}`)); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestMustCompilePanicsOnBrokenSchema(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustCompile("broken", []byte(`not json`))
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "reason.schema.json")
	if err := os.WriteFile(p, []byte(reasonSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	errs, err := ValidateFile(p, map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("expected missing field violation")
	}
}

func TestValidateMissingSchemaFile(t *testing.T) {
	if _, err := ValidateFile(filepath.Join(t.TempDir(), "nope.json"), map[string]any{}); err == nil {
		t.Fatal("expected error for missing schema file")
	}
}
