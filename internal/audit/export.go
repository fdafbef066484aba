// Package audit moves redacted ledger contents out of process: JSONL files,
// Redis pub/sub and signed exports.
package audit

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/caseprompt/internal/ledger"
	"github.com/ogulcanaydogan/caseprompt/internal/redact"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
	"github.com/ogulcanaydogan/caseprompt/pkg/schema"
)

const ExportVersion = 1

//go:embed export.schema.json
var exportSchemaJSON []byte

var exportSchema = schema.MustCompile("ledger export", exportSchemaJSON)

// Export is the signed document: every retained run, redacted.
type Export struct {
	Version    int          `json:"version"`
	ExportedAt time.Time    `json:"exportedAt"`
	Capacity   int          `json:"capacity"`
	Selected   string       `json:"selectedContext,omitempty"`
	Runs       []ledger.Run `json:"runs"`
}

// Record is one line of an audit stream.
type Record struct {
	Type ledger.EventType `json:"type"`
	Run  ledger.Run       `json:"run"`
}

func recordFor(ev ledger.Event, r redact.Redactor) Record {
	return Record{Type: ev.Type, Run: ev.Run.Redacted(r)}
}

func Snapshot(led *ledger.Ledger, r redact.Redactor, now time.Time) Export {
	runs := led.List()
	for i := range runs {
		runs[i] = runs[i].Redacted(r)
	}
	return Export{
		Version:    ExportVersion,
		ExportedAt: now.UTC(),
		Capacity:   led.Capacity(),
		Selected:   led.Selected(),
		Runs:       runs,
	}
}

// SignExport snapshots led and wraps it in a DSSE bundle.
func SignExport(led *ledger.Ledger, r redact.Redactor, signer sign.Signer, now time.Time) (sign.Bundle, error) {
	if signer == nil {
		return sign.Bundle{}, fmt.Errorf("export: no signing key configured")
	}
	return sign.CreateBundle(Snapshot(led, r, now), sign.LedgerPayloadType, signer, now)
}

// ValidateExport checks a decoded export document against the export schema.
func ValidateExport(doc any) ([]string, error) {
	return exportSchema.Validate(doc)
}
