package report

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteJSON writes v as indented JSON with a trailing newline. The parent
// directory must exist.
func WriteJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return writeReport(path, append(raw, '\n'))
}

func WriteMarkdown(path, content string) error {
	return writeReport(path, []byte(content))
}

func writeReport(path string, raw []byte) error {
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
