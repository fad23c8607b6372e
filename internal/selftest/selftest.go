// Package selftest replays a generated dump file against a throwaway
// PostgreSQL instance and checks that every table loads the row count
// the sampling engine produced. Harness is specified only at its
// interface so the dump-verification step can be swapped or stubbed in
// tests without dragging in embedded-postgres.
package selftest

import "context"

// TableResult is the per-table outcome of replaying the dump.
type TableResult struct {
	Schema    string
	Table     string
	Expected  int
	Loaded    int
	Mismatch  bool
	LoadError string
}

// Report summarizes one self-test run.
type Report struct {
	OK     bool
	Tables []TableResult
}

// Harness replays a dump file and reports whether it reloads cleanly
// with the expected row counts.
type Harness interface {
	Run(ctx context.Context, dumpPath string) (Report, error)
}
