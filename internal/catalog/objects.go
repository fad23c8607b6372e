package catalog

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// DiscoverObjects returns catalog entities outside the table graph: types,
// sequences, views, materialized views, extensions.
func (r *Reader) DiscoverObjects(ctx context.Context, f Filter) (Objects, error) {
	var obj Objects

	types, err := r.discoverTypes(ctx, f)
	if err != nil {
		return obj, err
	}
	obj.Types = types

	seqs, err := r.discoverSequences(ctx, f)
	if err != nil {
		return obj, err
	}
	obj.Sequences = seqs

	views, matviews, err := r.discoverViews(ctx, f)
	if err != nil {
		return obj, err
	}
	obj.Views = views
	obj.MatViews = matviews

	exts, err := r.discoverExtensions(ctx)
	if err != nil {
		return obj, err
	}
	obj.Extensions = exts

	return obj, nil
}

const enumTypesQuery = `
SELECT n.nspname, t.typname, array_agg(e.enumlabel ORDER BY e.enumsortorder)
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
GROUP BY n.nspname, t.typname
`

const domainTypesQuery = `
SELECT n.nspname, t.typname, format_type(t.typbasetype, t.typtypmod),
       COALESCE(pg_get_constraintdef(con.oid), '')
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
LEFT JOIN pg_catalog.pg_constraint con ON con.contypid = t.oid
WHERE t.typtype = 'd'
`

const compositeTypesQuery = `
SELECT n.nspname, t.typname, a.attname, format_type(a.atttypid, a.atttypmod), a.attnotnull, a.attnum
FROM pg_catalog.pg_type t
JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
JOIN pg_catalog.pg_class c ON c.oid = t.typrelid AND c.relkind = 'c'
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY n.nspname, t.typname, a.attnum
`

func (r *Reader) discoverTypes(ctx context.Context, f Filter) ([]Type, error) {
	var out []Type

	enumRows, err := r.db.QueryContext(ctx, enumTypesQuery)
	if err != nil {
		return nil, err
	}
	for enumRows.Next() {
		var t Type
		var labels pq.StringArray
		if err := enumRows.Scan(&t.Schema, &t.Name, &labels); err != nil {
			enumRows.Close()
			return nil, err
		}
		if !schemaAllowed(t.Schema, f) {
			continue
		}
		t.Kind = TypeEnum
		t.EnumLabels = labels
		out = append(out, t)
	}
	if err := enumRows.Err(); err != nil {
		enumRows.Close()
		return nil, err
	}
	enumRows.Close()

	domRows, err := r.db.QueryContext(ctx, domainTypesQuery)
	if err != nil {
		return nil, err
	}
	for domRows.Next() {
		var t Type
		if err := domRows.Scan(&t.Schema, &t.Name, &t.DomainBase, &t.DomainCheck); err != nil {
			domRows.Close()
			return nil, err
		}
		if !schemaAllowed(t.Schema, f) {
			continue
		}
		t.Kind = TypeDomain
		out = append(out, t)
	}
	if err := domRows.Err(); err != nil {
		domRows.Close()
		return nil, err
	}
	domRows.Close()

	composites := map[string]*Type{}
	var order []string
	compRows, err := r.db.QueryContext(ctx, compositeTypesQuery)
	if err != nil {
		return nil, err
	}
	for compRows.Next() {
		var schema, name, colName, dataType string
		var notNull bool
		var ordinal int
		if err := compRows.Scan(&schema, &name, &colName, &dataType, &notNull, &ordinal); err != nil {
			compRows.Close()
			return nil, err
		}
		if !schemaAllowed(schema, f) {
			continue
		}
		key := schema + "." + name
		t, ok := composites[key]
		if !ok {
			t = &Type{Schema: schema, Name: name, Kind: TypeComposite}
			composites[key] = t
			order = append(order, key)
		}
		t.CompositeFields = append(t.CompositeFields, Column{
			Name: colName, DataType: dataType, NotNull: notNull, Ordinal: ordinal,
		})
	}
	if err := compRows.Err(); err != nil {
		compRows.Close()
		return nil, err
	}
	compRows.Close()
	for _, key := range order {
		out = append(out, *composites[key])
	}

	return out, nil
}

const sequencesQuery = `
SELECT n.nspname, c.relname, format_type(s.seqtypid, null), s.seqstart, s.seqincrement,
       COALESCE(own_n.nspname || '.' || own_c.relname || '.' || own_a.attname, ''),
       ps.last_value
FROM pg_catalog.pg_sequence s
JOIN pg_catalog.pg_class c ON c.oid = s.seqrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_depend d ON d.objid = c.oid AND d.deptype IN ('a', 'i')
LEFT JOIN pg_catalog.pg_class own_c ON own_c.oid = d.refobjid
LEFT JOIN pg_catalog.pg_namespace own_n ON own_n.oid = own_c.relnamespace
LEFT JOIN pg_catalog.pg_attribute own_a ON own_a.attrelid = own_c.oid AND own_a.attnum = d.refobjsubid
LEFT JOIN pg_catalog.pg_sequences ps ON ps.schemaname = n.nspname AND ps.sequencename = c.relname
`

func (r *Reader) discoverSequences(ctx context.Context, f Filter) ([]Sequence, error) {
	rows, err := r.db.QueryContext(ctx, sequencesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sequence
	for rows.Next() {
		var s Sequence
		var lastValue sql.NullInt64
		if err := rows.Scan(&s.Schema, &s.Name, &s.DataType, &s.StartValue, &s.Increment, &s.OwnedBy, &lastValue); err != nil {
			return nil, err
		}
		if !schemaAllowed(s.Schema, f) {
			continue
		}
		// last_value is NULL until the sequence is first advanced (is_called = false);
		// in that case its current position is still its configured start value.
		if lastValue.Valid {
			s.CurrentValue = lastValue.Int64
		} else {
			s.CurrentValue = s.StartValue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const viewsQuery = `
SELECT n.nspname, c.relname, pg_get_viewdef(c.oid), c.relkind = 'm'
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('v', 'm')
`

func (r *Reader) discoverViews(ctx context.Context, f Filter) ([]View, []View, error) {
	rows, err := r.db.QueryContext(ctx, viewsQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var views, matviews []View
	for rows.Next() {
		var v View
		if err := rows.Scan(&v.Schema, &v.Name, &v.Definition, &v.Materialized); err != nil {
			return nil, nil, err
		}
		if !schemaAllowed(v.Schema, f) {
			continue
		}
		if v.Materialized {
			matviews = append(matviews, v)
		} else {
			views = append(views, v)
		}
	}
	return views, matviews, rows.Err()
}

const extensionsQuery = `
SELECT e.extname, n.nspname, e.extversion
FROM pg_catalog.pg_extension e
JOIN pg_catalog.pg_namespace n ON n.oid = e.extnamespace
`

func (r *Reader) discoverExtensions(ctx context.Context) ([]Extension, error) {
	rows, err := r.db.QueryContext(ctx, extensionsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Extension
	for rows.Next() {
		var e Extension
		if err := rows.Scan(&e.Name, &e.Schema, &e.Version); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
