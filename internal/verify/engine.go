// Package verify checks signed ledger exports.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ogulcanaydogan/caseprompt/internal/audit"
	"github.com/ogulcanaydogan/caseprompt/internal/sign"
)

type Options struct {
	// SourcePath is a bundle file or a directory of *.bundle.json files.
	SourcePath string
	// TrustedKeyPEM, when set, pins the public key bundles must be signed with.
	TrustedKeyPEM string
}

func Run(opts Options) Report {
	report := Report{Passed: true, ExitCode: ExitPass}
	paths, err := bundlePaths(opts.SourcePath)
	if err != nil {
		report.addFailure(opts.SourcePath, "bundle_read", ExitMissing, err)
		return report
	}
	if len(paths) == 0 {
		report.addFailure(opts.SourcePath, "bundle_read", ExitMissing, fmt.Errorf("no bundle files found"))
		return report
	}
	report.BundleCount = len(paths)

	for _, p := range paths {
		bundle, err := sign.ReadBundle(p)
		if err != nil {
			report.addFailure(p, "bundle_read", ExitMissing, err)
			continue
		}
		if err := VerifyDigest(bundle); err != nil {
			report.addFailure(p, "payload_digest", ExitDigestMismatch, err)
			continue
		}
		report.pass(p, "payload_digest")

		if err := VerifySignature(bundle); err != nil {
			report.addFailure(p, "signature", ExitSignatureFail, err)
			continue
		}
		report.pass(p, "signature")

		if strings.TrimSpace(opts.TrustedKeyPEM) != "" {
			if err := VerifyTrustedKey(bundle, opts.TrustedKeyPEM); err != nil {
				report.addFailure(p, "trusted_key", ExitUntrustedKey, err)
				continue
			}
			report.pass(p, "trusted_key")
		}

		var doc map[string]any
		if err := sign.DecodePayload(bundle, &doc); err != nil {
			report.addFailure(p, "payload_decode", ExitSchemaFail, err)
			continue
		}
		if err := VerifyExportSchema(doc); err != nil {
			report.addFailure(p, "schema", ExitSchemaFail, err)
			continue
		}
		report.pass(p, "schema")

		runs, _ := doc["runs"].([]any)
		exportedAt, _ := doc["exportedAt"].(string)
		report.Exports = append(report.Exports, ExportSummary{
			Bundle:     p,
			KeyID:      bundle.Envelope.Signatures[0].KeyID,
			ExportedAt: exportedAt,
			RunCount:   len(runs),
		})
	}

	if report.Passed {
		report.ExitCode = ExitPass
	}
	return report
}

func VerifyExportSchema(doc map[string]any) error {
	violations, err := audit.ValidateExport(doc)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("export schema invalid: %s", strings.Join(violations, "; "))
	}
	return nil
}

func (r *Report) pass(bundle, check string) {
	r.Checks = append(r.Checks, CheckResult{Bundle: bundle, Check: check, Passed: true, Message: "ok"})
}

func (r *Report) addFailure(bundle, check string, exit int, err error) {
	r.Passed = false
	if r.ExitCode == ExitPass || exit > r.ExitCode {
		r.ExitCode = exit
	}
	msg := err.Error()
	r.Checks = append(r.Checks, CheckResult{Bundle: bundle, Check: check, Passed: false, Message: msg})
	r.Violations = append(r.Violations, fmt.Sprintf("%s: %s", check, msg))
}

func bundlePaths(source string) ([]string, error) {
	fi, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{source}, nil
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".bundle.json") {
			files = append(files, filepath.Join(source, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
