package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
	"github.com/ogulcanaydogan/caseprompt/pkg/types"
)

// runInputs is the typed view of a run's Params and Variables.
type runInputs struct {
	kind        string
	category    string
	intent      string
	temperature float64
	constraints prompt.Constraints
	allowList   []string
	citationIDs []string
	signalDefs  []types.SignalDef
}

func readInputs(r ledger.Run) runInputs {
	in := runInputs{
		kind:        stringVar(r.Params, "kind"),
		category:    stringVar(r.Params, "category"),
		intent:      stringVar(r.Params, "intent"),
		temperature: floatVar(r.Params, "temperature"),
		constraints: prompt.Constraints{
			MaxReasonWords: intVar(r.Params, "maxReasonWords"),
			MaxLines:       intVar(r.Params, "maxLines"),
		},
		allowList:   stringsVar(r.Params, "allowList"),
		citationIDs: stringsVar(r.Params, "citationIds"),
	}
	if raw := stringVar(r.Variables, "SignalsJSON"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &in.signalDefs)
	}
	return in
}

func render(tmpl string, vars map[string]any) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func stringVar(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intVar(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatVar(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func stringsVar(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
