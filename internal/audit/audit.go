// Package audit writes the optional JSON run-summary file. No library in
// the corpus specializes in this narrow a concern (a small, flat,
// one-shot JSON document), so this uses stdlib encoding/json directly —
// see DESIGN.md for the standard-library justification.
package audit

import (
	"encoding/json"
	"os"
	"time"
)

// TableCount is the per-table row count reported in the audit file.
type TableCount struct {
	Schema string `json:"schema"`
	Table  string `json:"name"`
	Rows   int    `json:"rows"`
}

// Report is the full audit document for one sampling run.
type Report struct {
	Timestamp    string       `json:"timestamp"`
	Database     string       `json:"database"`
	TablesCount  int          `json:"tables_sampled"`
	TotalRows    int          `json:"total_rows"`
	PerTable     []TableCount `json:"tables"`
}

// New builds a Report from per-table row counts, stamping Timestamp as
// ISO-8601/RFC 3339 at the moment of construction.
func New(database string, counts []TableCount) Report {
	total := 0
	for _, c := range counts {
		total += c.Rows
	}
	return Report{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Database:    database,
		TablesCount: len(counts),
		TotalRows:   total,
		PerTable:    counts,
	}
}

// Write serializes r as indented JSON to path.
func Write(path string, r Report) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
