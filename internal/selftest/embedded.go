package selftest

import (
	"bufio"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pgsample/pgsample/internal/errs"
	"github.com/pgsample/pgsample/internal/logger"
)

// EmbeddedHarness replays a dump through a scratch embedded-postgres
// instance, grounded on pgschema's StartEmbeddedPostgres: same
// timestamped runtime-path naming, same net.Listen port probe, same
// discard-everything startup logging.
type EmbeddedHarness struct {
	Version        embeddedpostgres.PostgresVersion
	ExpectedCounts map[string]int // "schema.table" -> row count
}

// NewEmbeddedHarness defaults Version to 17.5.0 when unset.
func NewEmbeddedHarness(expected map[string]int) *EmbeddedHarness {
	return &EmbeddedHarness{
		Version:        embeddedpostgres.PostgresVersion("17.5.0"),
		ExpectedCounts: expected,
	}
}

func findAvailablePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Run starts a throwaway instance, replays dumpPath's SQL, counts rows
// per table, and compares against ExpectedCounts.
func (h *EmbeddedHarness) Run(ctx context.Context, dumpPath string) (Report, error) {
	log := logger.FromContext(ctx)

	port, err := findAvailablePort()
	if err != nil {
		return Report{}, errs.Internal("selftest: finding port", err)
	}

	timestamp := time.Now().Format("20060102_150405_999999")
	runtimePath := filepath.Join(os.TempDir(), fmt.Sprintf("pgsample-selftest-%s", timestamp))
	database, username, password := "pgsample_selftest", "pgsample", "pgsample"

	config := embeddedpostgres.DefaultConfig().
		Version(h.Version).
		Database(database).
		Username(username).
		Password(password).
		Port(uint32(port)).
		RuntimePath(runtimePath).
		DataPath(filepath.Join(runtimePath, "data")).
		Logger(io.Discard).
		StartParameters(map[string]string{
			"logging_collector":          "off",
			"log_destination":            "stderr",
			"log_min_messages":           "PANIC",
			"log_statement":              "none",
			"log_min_duration_statement": "-1",
		})

	instance := embeddedpostgres.NewDatabase(config)
	if err := instance.Start(); err != nil {
		return Report{}, errs.Internal("selftest: starting embedded postgres", err)
	}
	defer func() {
		if err := instance.Stop(); err != nil {
			log.WarnContext(ctx, "selftest: stopping embedded postgres", "error", err)
		}
		if err := os.RemoveAll(runtimePath); err != nil {
			log.WarnContext(ctx, "selftest: cleaning runtime path", "path", runtimePath, "error", err)
		}
	}()

	dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", username, password, port, database)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return Report{}, errs.Internal("selftest: opening embedded connection", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return Report{}, errs.Internal("selftest: pinging embedded postgres", err)
	}

	sqlText, err := readDump(dumpPath)
	if err != nil {
		return Report{}, errs.IO("selftest: reading dump", err)
	}
	if _, err := db.ExecContext(ctx, sqlText); err != nil {
		return Report{}, errs.Internal("selftest: replaying dump", err)
	}

	report := Report{OK: true}
	for qualified, expected := range h.ExpectedCounts {
		schema, table := splitQualified(qualified)
		result := TableResult{Schema: schema, Table: table, Expected: expected}

		var loaded int
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteQualified(schema, table))
		if err := db.QueryRowContext(ctx, q).Scan(&loaded); err != nil {
			result.LoadError = err.Error()
			result.Mismatch = true
		} else {
			result.Loaded = loaded
			result.Mismatch = loaded != expected
		}
		if result.Mismatch {
			report.OK = false
		}
		report.Tables = append(report.Tables, result)
	}

	return report, nil
}

func readDump(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			return "", err
		}
		defer gz.Close()
		r = gz
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func splitQualified(q string) (schema, table string) {
	if idx := strings.Index(q, "."); idx >= 0 {
		return q[:idx], q[idx+1:]
	}
	return "public", q
}

func quoteQualified(schema, table string) string {
	return fmt.Sprintf("%q.%q", schema, table)
}
