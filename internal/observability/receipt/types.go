// Package receipt writes a JSON record of each installer invocation.
package receipt

const ReceiptSchemaVersion = "1.0"

type Receipt struct {
	SchemaVersion string          `json:"schema_version"`
	OpID          string          `json:"op_id"`
	TsStart       string          `json:"ts_start"`
	TsEnd         string          `json:"ts_end"`
	Command       string          `json:"command"`
	Args          []string        `json:"args"`
	ArgsRedacted  bool            `json:"args_redacted,omitempty"`
	Result        Result          `json:"result"`
	Profile       *ProfileRef     `json:"profile,omitempty"`
	Install       *InstallSummary `json:"install,omitempty"`
	Diff          *DiffSummary    `json:"diff,omitempty"`
}

type Result struct {
	Status string `json:"status"` // success|fail|canceled
	Error  string `json:"error,omitempty"`
}

// ProfileRef identifies the install profile that drove the run.
type ProfileRef struct {
	Path    string `json:"path"`
	SHA256  string `json:"sha256,omitempty"`
	Version string `json:"version,omitempty"`
}

type InstallSummary struct {
	Action             string   `json:"action"` // server|extract
	Target             string   `json:"target"`
	Side               string   `json:"side,omitempty"`
	LibrariesSatisfied int      `json:"libraries_satisfied"`
	LibrariesFetched   int      `json:"libraries_fetched"`
	LibrariesSkipped   int      `json:"libraries_skipped"`
	LibrariesFailed    []string `json:"libraries_failed,omitempty"`
	ProcessorsExecuted int      `json:"processors_executed"`
	ProcessorsSkipped  int      `json:"processors_skipped"`
}

type DiffSummary struct {
	Changes int    `json:"changes"`
	Summary string `json:"summary,omitempty"`
}
