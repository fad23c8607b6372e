package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// defaultExcludedSchemas are the catalog/metadata/toast namespaces never
// discovered unless explicitly included.
var defaultExcludedSchemas = map[string]bool{
	"pg_catalog":         true,
	"information_schema": true,
	"pg_toast":           true,
}

// Filter selects which schemas and tables discover() considers.
type Filter struct {
	// Include, when non-empty, wins over Exclude entirely.
	Include       []string
	ExcludeSchema []string
	ExcludeTable  []string // glob, matched against qualified and bare names
}

// Reader queries the live catalog over a *sql.DB, grounded on the
// per-concern build* split pgschema's ir.Inspector uses.
type Reader struct {
	db *sql.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

func schemaAllowed(schema string, f Filter) bool {
	if len(f.Include) > 0 {
		for _, s := range f.Include {
			if globToRegex(s).MatchString(schema) {
				return true
			}
		}
		return false
	}
	if defaultExcludedSchemas[schema] {
		return false
	}
	for _, s := range f.ExcludeSchema {
		if globToRegex(s).MatchString(schema) {
			return false
		}
	}
	return true
}

func tableExcluded(schema, name string, globs []string) bool {
	qualified := schema + "." + name
	for _, g := range globs {
		re := globToRegex(g)
		if re.MatchString(qualified) || re.MatchString(name) {
			return true
		}
	}
	return false
}

func globToRegex(glob string) *regexp.Regexp {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	pattern := "(?i)^" + strings.Join(parts, ".*") + "$"
	return regexp.MustCompile(pattern)
}

// Discover returns every table matching f, fully enriched with columns,
// constraints, indexes, and triggers. Any enrichment failure aborts the
// whole discovery: partial enrichment is never surfaced.
func (r *Reader) Discover(ctx context.Context, f Filter) ([]Table, error) {
	tables, err := r.listTables(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	eg, gctx := errgroup.WithContext(ctx)
	for i := range tables {
		t := &tables[i]
		eg.Go(func() error {
			if err := r.enrichColumns(gctx, t); err != nil {
				return fmt.Errorf("columns for %s: %w", t.QualifiedName(), err)
			}
			return nil
		})
		eg.Go(func() error {
			pk, fks, uniques, checks, err := r.enrichConstraints(gctx, t.Schema, t.Name)
			if err != nil {
				return fmt.Errorf("constraints for %s: %w", t.QualifiedName(), err)
			}
			t.PrimaryKey = pk
			t.ForeignKeys = fks
			t.Uniques = uniques
			t.Checks = checks
			return nil
		})
		eg.Go(func() error {
			idx, err := r.enrichIndexes(gctx, t.Schema, t.Name)
			if err != nil {
				return fmt.Errorf("indexes for %s: %w", t.QualifiedName(), err)
			}
			t.Indexes = idx
			return nil
		})
		eg.Go(func() error {
			trig, err := r.enrichTriggers(gctx, t.Schema, t.Name)
			if err != nil {
				return fmt.Errorf("triggers for %s: %w", t.QualifiedName(), err)
			}
			t.Triggers = trig
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Schema != tables[j].Schema {
			return tables[i].Schema < tables[j].Schema
		}
		return tables[i].Name < tables[j].Name
	})

	return tables, nil
}

const listTablesQuery = `
SELECT n.nspname AS schema, c.relname AS name, c.relkind, c.relpersistence
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'p')
ORDER BY n.nspname, c.relname
`

func (r *Reader) listTables(ctx context.Context, f Filter) ([]Table, error) {
	rows, err := r.db.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var schema, name string
		var relkind, relpersistence string
		if err := rows.Scan(&schema, &name, &relkind, &relpersistence); err != nil {
			return nil, err
		}
		if !schemaAllowed(schema, f) {
			continue
		}
		if tableExcluded(schema, name, f.ExcludeTable) {
			continue
		}
		if relpersistence == "t" {
			continue // temporary tables always skipped
		}
		kind := KindOrdinary
		if relkind == "p" {
			kind = KindPartitioned
		}
		out = append(out, Table{Schema: schema, Name: name, Kind: kind})
	}
	return out, rows.Err()
}

const columnsQuery = `
SELECT
  a.attname,
  format_type(a.atttypid, a.atttypmod),
  a.attnotnull,
  COALESCE(pg_get_expr(ad.adbin, ad.adrelid), ''),
  ad.adbin IS NOT NULL,
  a.attnum,
  CASE a.attidentity WHEN 'a' THEN 'always' WHEN 'd' THEN 'by_default' ELSE '' END,
  COALESCE(pg_get_serial_sequence(c.oid::regclass::text, a.attname), '')
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = c.oid AND ad.adnum = a.attnum
WHERE n.nspname = $1 AND c.relname = $2
  AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum
`

func (r *Reader) enrichColumns(ctx context.Context, t *Table) error {
	rows, err := r.db.QueryContext(ctx, columnsQuery, t.Schema, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var identity string
		var ownedSeq string
		if err := rows.Scan(&c.Name, &c.DataType, &c.NotNull, &c.Default, &c.HasDefault,
			&c.Ordinal, &identity, &ownedSeq); err != nil {
			return err
		}
		c.Identity = IdentityKind(identity)
		c.OwnedSeq = ownedSeq
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	t.Columns = cols
	return nil
}

const pkQuery = `
SELECT a.attname
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
WHERE con.contype = 'p' AND n.nspname = $1 AND c.relname = $2
ORDER BY k.ord
`

const fksQuery = `
SELECT
  con.conname,
  array_agg(la.attname ORDER BY k.ord) AS local_cols,
  rn.nspname, rc.relname,
  array_agg(ra.attname ORDER BY k.ord) AS ref_cols,
  CASE con.confdeltype WHEN 'c' THEN 'cascade' WHEN 'n' THEN 'set null' WHEN 'd' THEN 'set default' WHEN 'r' THEN 'restrict' ELSE 'no action' END,
  CASE con.confupdtype WHEN 'c' THEN 'cascade' WHEN 'n' THEN 'set null' WHEN 'd' THEN 'set default' WHEN 'r' THEN 'restrict' ELSE 'no action' END
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_class rc ON rc.oid = con.confrelid
JOIN pg_catalog.pg_namespace rn ON rn.oid = rc.relnamespace
JOIN unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_catalog.pg_attribute la ON la.attrelid = c.oid AND la.attnum = k.attnum
JOIN unnest(con.confkey) WITH ORDINALITY AS rk(attnum, ord) ON rk.ord = k.ord
JOIN pg_catalog.pg_attribute ra ON ra.attrelid = rc.oid AND ra.attnum = rk.attnum
WHERE con.contype = 'f' AND n.nspname = $1 AND c.relname = $2
GROUP BY con.conname, rn.nspname, rc.relname, con.confdeltype, con.confupdtype
`

const uniquesQuery = `
SELECT con.conname, array_agg(a.attname ORDER BY k.ord)
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
WHERE con.contype = 'u' AND n.nspname = $1 AND c.relname = $2
GROUP BY con.conname
`

const checksQuery = `
SELECT con.conname, pg_get_constraintdef(con.oid)
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE con.contype = 'c' AND n.nspname = $1 AND c.relname = $2
`

func (r *Reader) enrichConstraints(ctx context.Context, schema, name string) ([]string, []ForeignKey, []Constraint, []Constraint, error) {
	var pk []string
	rows, err := r.db.QueryContext(ctx, pkQuery, schema, name)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			rows.Close()
			return nil, nil, nil, nil, err
		}
		pk = append(pk, col)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, nil, nil, err
	}
	rows.Close()

	var fks []ForeignKey
	fkRows, err := r.db.QueryContext(ctx, fksQuery, schema, name)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	for fkRows.Next() {
		var fk ForeignKey
		var localCols, refCols pq.StringArray
		if err := fkRows.Scan(&fk.ConstraintName, &localCols, &fk.RefSchema, &fk.RefTable,
			&refCols, &fk.OnDelete, &fk.OnUpdate); err != nil {
			fkRows.Close()
			return nil, nil, nil, nil, err
		}
		fk.OwnerSchema = schema
		fk.OwnerTable = name
		fk.LocalColumns = localCols
		fk.RefColumns = refCols
		fks = append(fks, fk)
	}
	if err := fkRows.Err(); err != nil {
		fkRows.Close()
		return nil, nil, nil, nil, err
	}
	fkRows.Close()

	var uniques []Constraint
	uRows, err := r.db.QueryContext(ctx, uniquesQuery, schema, name)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	for uRows.Next() {
		var u Constraint
		var cols pq.StringArray
		if err := uRows.Scan(&u.Name, &cols); err != nil {
			uRows.Close()
			return nil, nil, nil, nil, err
		}
		u.Kind = "unique"
		u.Columns = cols
		uniques = append(uniques, u)
	}
	if err := uRows.Err(); err != nil {
		uRows.Close()
		return nil, nil, nil, nil, err
	}
	uRows.Close()

	var checks []Constraint
	cRows, err := r.db.QueryContext(ctx, checksQuery, schema, name)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	for cRows.Next() {
		var c Constraint
		if err := cRows.Scan(&c.Name, &c.Def); err != nil {
			cRows.Close()
			return nil, nil, nil, nil, err
		}
		c.Kind = "check"
		checks = append(checks, c)
	}
	if err := cRows.Err(); err != nil {
		cRows.Close()
		return nil, nil, nil, nil, err
	}
	cRows.Close()

	return pk, fks, uniques, checks, nil
}

const indexesQuery = `
SELECT i.relname, pg_get_indexdef(ix.indexrelid), ix.indisunique
FROM pg_catalog.pg_index ix
JOIN pg_catalog.pg_class c ON c.oid = ix.indrelid
JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND NOT ix.indisprimary
`

func (r *Reader) enrichIndexes(ctx context.Context, schema, name string) ([]Index, error) {
	rows, err := r.db.QueryContext(ctx, indexesQuery, schema, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Def, &idx.Unique); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

const triggersQuery = `
SELECT t.tgname, pg_get_triggerdef(t.oid)
FROM pg_catalog.pg_trigger t
JOIN pg_catalog.pg_class c ON c.oid = t.tgrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND NOT t.tgisinternal
`

func (r *Reader) enrichTriggers(ctx context.Context, schema, name string) ([]Trigger, error) {
	rows, err := r.db.QueryContext(ctx, triggersQuery, schema, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var tr Trigger
		if err := rows.Scan(&tr.Name, &tr.Def); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
