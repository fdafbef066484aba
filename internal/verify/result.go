package verify

const (
	ExitPass           = 0
	ExitMissing        = 10
	ExitSignatureFail  = 11
	ExitDigestMismatch = 12
	ExitUntrustedKey   = 13
	ExitSchemaFail     = 14
)

type CheckResult struct {
	Bundle  string `json:"bundle"`
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

type ExportSummary struct {
	Bundle     string `json:"bundle"`
	KeyID      string `json:"key_id"`
	ExportedAt string `json:"exported_at"`
	RunCount   int    `json:"run_count"`
}

type Report struct {
	Passed      bool            `json:"passed"`
	ExitCode    int             `json:"exit_code"`
	BundleCount int             `json:"bundle_count"`
	Checks      []CheckResult   `json:"checks"`
	Violations  []string        `json:"violations"`
	Exports     []ExportSummary `json:"exports"`
}
