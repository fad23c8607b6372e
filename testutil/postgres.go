// Package testutil provides a shared embedded-PostgreSQL fixture for
// pgsample's integration tests, grounded on pgschema's own
// testutil/postgres.go (SetupTestPostgres/Terminate), trimmed to the
// single-version, single-purpose shape pgsample's test suites need.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func findAvailablePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// TestPostgres holds connection details for one throwaway instance.
type TestPostgres struct {
	Database    *embeddedpostgres.EmbeddedPostgres
	Host        string
	Port        int
	DSN         string
	Conn        *sql.DB
	RuntimePath string
}

// SetupTestPostgres starts a fresh instance with standard test credentials.
func SetupTestPostgres(ctx context.Context, t *testing.T) *TestPostgres {
	database, username, password := "pgsample_test", "pgsample", "pgsample"

	testName := "shared"
	if t != nil {
		testName = strings.ReplaceAll(t.Name(), "/", "_")
	}
	timestamp := time.Now().Format("20060102_150405.000000000")
	runtimePath := filepath.Join(os.TempDir(), fmt.Sprintf("pgsample-test-%s-%s", testName, timestamp))

	port, err := findAvailablePort()
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}

	config := embeddedpostgres.DefaultConfig().
		Version(embeddedpostgres.PostgresVersion("17.5.0")).
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
		t.Fatalf("failed to start embedded postgres: %v", err)
	}

	host := "localhost"
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", username, password, host, port, database)

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		instance.Stop()
		t.Fatalf("failed to connect to embedded postgres: %v", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		instance.Stop()
		t.Fatalf("failed to ping embedded postgres: %v", err)
	}

	return &TestPostgres{Database: instance, Host: host, Port: port, DSN: dsn, Conn: conn, RuntimePath: runtimePath}
}

// Terminate stops the instance and cleans up its runtime directory.
func (tp *TestPostgres) Terminate(t *testing.T) {
	tp.Conn.Close()
	if err := tp.Database.Stop(); err != nil && t != nil {
		t.Logf("failed to stop embedded postgres: %v", err)
	}
	if tp.RuntimePath != "" {
		if err := os.RemoveAll(tp.RuntimePath); err != nil && t != nil {
			t.Logf("failed to clean up runtime directory: %v", err)
		}
	}
}

// ApplyFixture runs schemaSQL against the instance, for seeding the
// tables an integration test will sample.
func (tp *TestPostgres) ApplyFixture(ctx context.Context, t *testing.T, schemaSQL string) {
	t.Helper()
	if _, err := tp.Conn.ExecContext(ctx, schemaSQL); err != nil {
		t.Fatalf("failed to apply fixture: %v", err)
	}
}
