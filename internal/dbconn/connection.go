// Package dbconn builds a PostgreSQL connection from flags, environment
// fallback, and URI form, grounded on pgschema's cmd/util/connection.go
// (ConnectionConfig/buildDSN/Connect) and cmd/util/env.go's PG*
// environment-variable precedence.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pgsample/pgsample/internal/errs"
)

// Config holds the resolved connection parameters for one run.
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	SSLCert         string
	SSLKey          string
	SSLRootCert     string
	ApplicationName string
	ConnectionURI   string // when set, wins over every other field
}

// ApplyEnvDefaults fills unset fields from the standard PG* environment
// variables, mirroring libpq's own client environment fallback.
func (c *Config) ApplyEnvDefaults() {
	if c.Host == "" {
		c.Host = envOrDefault("PGHOST", "localhost")
	}
	if c.Port == 0 {
		c.Port = envIntOrDefault("PGPORT", 5432)
	}
	if c.Database == "" {
		c.Database = os.Getenv("PGDATABASE")
	}
	if c.User == "" {
		c.User = os.Getenv("PGUSER")
	}
	if c.Password == "" {
		c.Password = os.Getenv("PGPASSWORD")
	}
	if c.ApplicationName == "" {
		c.ApplicationName = envOrDefault("PGAPPNAME", "pgsample")
	}
	if c.SSLMode == "" {
		c.SSLMode = envOrDefault("PGSSLMODE", "prefer")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Validate checks the minimum fields needed to attempt a connection,
// mapped to a Configuration-kind error per spec §7.
func (c *Config) Validate() error {
	if c.ConnectionURI != "" {
		return nil
	}
	if c.Database == "" {
		return errs.Configuration("connection config", fmt.Errorf("database name is required (use --dbname or PGDATABASE)"))
	}
	if c.User == "" {
		return errs.Configuration("connection config", fmt.Errorf("database user is required (use --username or PGUSER)"))
	}
	return nil
}

// DSN builds a libpq keyword/value connection string, or returns the
// ConnectionURI verbatim when one was given.
func (c *Config) DSN() string {
	if c.ConnectionURI != "" {
		return c.ConnectionURI
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("host=%s", c.Host))
	parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	parts = append(parts, fmt.Sprintf("dbname=%s", c.Database))
	parts = append(parts, fmt.Sprintf("user=%s", c.User))
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	if c.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", c.SSLMode))
	}
	if c.SSLCert != "" {
		parts = append(parts, fmt.Sprintf("sslcert=%s", c.SSLCert))
	}
	if c.SSLKey != "" {
		parts = append(parts, fmt.Sprintf("sslkey=%s", c.SSLKey))
	}
	if c.SSLRootCert != "" {
		parts = append(parts, fmt.Sprintf("sslrootcert=%s", c.SSLRootCert))
	}
	if c.ApplicationName != "" {
		parts = append(parts, fmt.Sprintf("application_name=%s", c.ApplicationName))
	}
	return strings.Join(parts, " ")
}

// Scrubbed returns a display-safe form of the DSN/URI with any password
// component removed, for logging and dump headers.
func (c *Config) Scrubbed() string {
	if c.ConnectionURI == "" {
		return fmt.Sprintf("host=%s port=%d dbname=%s user=%s", c.Host, c.Port, c.Database, c.User)
	}
	uri := c.ConnectionURI
	if idx := strings.Index(uri, "@"); idx >= 0 {
		if schemeIdx := strings.Index(uri, "://"); schemeIdx >= 0 {
			return uri[:schemeIdx+3] + "***@" + uri[idx+1:]
		}
	}
	return uri
}

// Open connects via database/sql using the jackc/pgx/v5 driver and pings
// to fail fast on unreachable hosts or bad credentials.
func Open(ctx context.Context, c Config) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", c.DSN())
	if err != nil {
		return nil, errs.Connection("opening connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Connection("pinging database", err)
	}
	return db, nil
}
