// Package staging owns the scratch schema used by the sampling engine's
// staging mode, grounded on dbsample/staging.py's StagingManager
// (create_schema/drop_schema/create_staging_table/copy_data_to_staging/
// create_staging_indexes/get_staging_data), re-expressed with Go's
// defer-based rollback scoping instead of the Python's repeated
// try/rollback blocks.
package staging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/errs"
	"github.com/pgsample/pgsample/internal/logger"
	"github.com/pgsample/pgsample/internal/sampling"
)

// DefaultSchemaName is the staging namespace used when the operator gives
// none, matching the original tool's "_dbsample" default.
const DefaultSchemaName = "_dbsample"

// Manager owns the lifecycle of one staging schema over one connection.
// It knows nothing about sampling policy: callers decide what to copy.
type Manager struct {
	db      *sql.DB
	schema  string
	created bool
}

func New(db *sql.DB, schemaName string) *Manager {
	if schemaName == "" {
		schemaName = DefaultSchemaName
	}
	return &Manager{db: db, schema: schemaName}
}

func (m *Manager) exec(ctx context.Context, query string, args ...any) error {
	_, err := m.db.ExecContext(ctx, query, args...)
	return err
}

// Create creates the staging schema. If it already exists and force is
// false, this is a soft failure (returns an error the caller treats as
// a permission-style downgrade signal per spec §4.4.4); force=true drops
// it first.
func (m *Manager) Create(ctx context.Context, force bool) error {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1)`, m.schema,
	).Scan(&exists)
	if err != nil {
		return errs.Connection("checking staging schema existence", err)
	}

	log := logger.FromContext(ctx)
	if exists {
		if !force {
			return errs.Permission("staging schema exists",
				fmt.Errorf("staging schema %q already exists", m.schema))
		}
		log.InfoContext(ctx, "dropping existing staging schema", "schema", m.schema)
		if err := m.exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, quoteIdent(m.schema))); err != nil {
			return errs.Permission("dropping staging schema", err)
		}
	}

	log.InfoContext(ctx, "creating staging schema", "schema", m.schema)
	if err := m.exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(m.schema))); err != nil {
		return errs.Permission("creating staging schema", err)
	}
	m.created = true
	return nil
}

// Drop removes the staging schema. It is a no-op if Create never
// succeeded, making repeated calls (e.g. from a deferred cleanup) safe.
func (m *Manager) Drop(ctx context.Context) error {
	if !m.created {
		return nil
	}
	log := logger.FromContext(ctx)
	log.InfoContext(ctx, "dropping staging schema", "schema", m.schema)
	if err := m.exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, quoteIdent(m.schema))); err != nil {
		log.WarnContext(ctx, "failed to drop staging schema", "schema", m.schema, "error", err)
		return err
	}
	m.created = false
	return nil
}

// CreateTable creates a staging table mirroring t's column list: types
// copied verbatim, NOT NULL preserved, defaults/constraints/indexes
// beyond the PK omitted unless added explicitly via AddIndexes.
func (m *Manager) CreateTable(ctx context.Context, t catalog.Table) error {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		def := quoteIdent(c.Name) + " " + c.DataType
		if c.NotNull {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	if t.HasPK() {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoteIdentList(t.PrimaryKey), ", ")+")")
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (%s)`,
		quoteIdent(m.schema), quoteIdent(t.Name), strings.Join(defs, ", "))
	if err := m.exec(ctx, query); err != nil {
		return errs.Connection("creating staging table "+t.Name, err)
	}
	return nil
}

// Copy runs query (a SELECT against the source) as an INSERT...SELECT
// into the staging table for t, returning the row count inserted.
func (m *Manager) Copy(ctx context.Context, t catalog.Table, query string, args []any) (int64, error) {
	insert := fmt.Sprintf(`INSERT INTO %s.%s %s`, quoteIdent(m.schema), quoteIdent(t.Name), query)
	res, err := m.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, errs.Connection("copying into staging."+t.Name, err)
	}
	return res.RowsAffected()
}

// AddIndexes mirrors t's secondary indexes onto its staging table, to
// accelerate closure lookups. Failures are logged and skipped per index;
// an index is an optimization, not a correctness requirement.
func (m *Manager) AddIndexes(ctx context.Context, t catalog.Table) error {
	log := logger.FromContext(ctx)
	for _, idx := range t.Indexes {
		def := adaptIndexDef(idx.Def, t.Schema, t.Name, m.schema)
		if err := m.exec(ctx, def); err != nil {
			log.DebugContext(ctx, "could not mirror index onto staging table", "index", idx.Name, "error", err)
		}
	}
	return nil
}

func adaptIndexDef(def, sourceSchema, sourceTable, stagingSchema string) string {
	from := quoteIdent(sourceSchema) + "." + quoteIdent(sourceTable)
	to := quoteIdent(stagingSchema) + "." + quoteIdent(sourceTable)
	return strings.Replace(def, from, to, 1)
}

// Read streams rows back out of the staging table for t, column list in
// ordinal order.
func (m *Manager) Read(ctx context.Context, t catalog.Table) ([]sampling.Row, error) {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quoteIdent(c.Name)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s.%s`, strings.Join(cols, ", "), quoteIdent(m.schema), quoteIdent(t.Name))
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.Connection("reading staging."+t.Name, err)
	}
	defer rows.Close()

	var out []sampling.Row
	for rows.Next() {
		scanned := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(sampling.Row, len(cols))
		for i, v := range scanned {
			row[i] = sampling.FromDriverValue(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ResolveForeignKey runs one server-side closure round for fk: rows in the
// referenced source table whose PK is not yet present in the referenced
// staging table, but is referenced by a row in the owning staging table,
// are copied in. Returns the number of rows added.
func (m *Manager) ResolveForeignKey(ctx context.Context, fk catalog.ForeignKey) (int64, error) {
	localCols := quoteIdentList(fk.LocalColumns)
	refCols := quoteIdentList(fk.RefColumns)

	query := fmt.Sprintf(`
INSERT INTO %[1]s.%[2]s
SELECT src.* FROM %[3]s.%[4]s src
WHERE (%[5]s) IN (
  SELECT %[6]s FROM %[1]s.%[7]s
  WHERE NOT EXISTS (
    SELECT 1 FROM %[1]s.%[2]s ref WHERE (%[8]s) = (%[6]s)
  )
)
ON CONFLICT DO NOTHING`,
		quoteIdent(m.schema), quoteIdent(fk.RefTable),
		quoteIdent(fk.RefSchema), quoteIdent(fk.RefTable),
		strings.Join(refCols, ", "),
		strings.Join(localCols, ", "),
		quoteIdent(fk.OwnerTable),
		strings.Join(refCols, ", "),
	)
	res, err := m.db.ExecContext(ctx, query)
	if err != nil {
		return 0, errs.Connection("staging closure for "+fk.ConstraintName, err)
	}
	return res.RowsAffected()
}

func quoteIdentList(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}
