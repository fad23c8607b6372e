package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/depgraph"
	"github.com/pgsample/pgsample/internal/sampling"
)

// Header summarizes the run for the generated dump's comment block.
type Header struct {
	GeneratedAt   time.Time
	SourceDSN     string // scrubbed of credentials by the caller
	RuleSummary   []string
	Ordered       bool
	OrderedDesc   bool
	Random        bool
	ExcludeSchema []string
	ExcludeTable  []string
}

// Options configures one Generate call.
type Options struct {
	DataOnly      bool
	TargetVersion string // e.g. "14", "" means "current"
	Compress      bool
	RowsPerInsert int // multi-row INSERT batch size, default 500
}

// Generator emits a single SQL dump script to a byte sink.
type Generator struct {
	tables  map[string]catalog.Table
	objects catalog.Objects
	graph   *depgraph.Graph
	results map[string]*sampling.Result
	opts    Options
}

func New(tables map[string]catalog.Table, objects catalog.Objects, graph *depgraph.Graph, results map[string]*sampling.Result, opts Options) *Generator {
	if opts.RowsPerInsert <= 0 {
		opts.RowsPerInsert = 500
	}
	return &Generator{tables: tables, objects: objects, graph: graph, results: results, opts: opts}
}

// WriteFile opens path (applying gzip if Compress or the .gz extension is
// present) and writes the dump, restricting the file to owner read/write
// after close, per spec §4.6/§6.
func (g *Generator) WriteFile(path string, header Header) error {
	compress := g.opts.Compress || strings.HasSuffix(path, ".gz")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	bw := bufio.NewWriter(w)
	if err := g.Generate(bw, header); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	return os.Chmod(path, 0o600)
}

// WriteStdout writes the dump to stdout; gzip is never applied here even
// if requested (a warning is the caller's responsibility to log).
func (g *Generator) WriteStdout(w io.Writer, header Header) error {
	bw := bufio.NewWriter(w)
	if err := g.Generate(bw, header); err != nil {
		return err
	}
	return bw.Flush()
}

// Generate writes the full dump to w: header, session setup, schema
// objects, data, constraints/indexes, sequence resets, teardown.
func (g *Generator) Generate(w io.Writer, header Header) error {
	g.writeHeader(w, header)
	g.writeSessionSetup(w)

	if !g.opts.DataOnly {
		g.writeSchemaObjects(w)
	}

	g.writeData(w)

	if !g.opts.DataOnly {
		g.writeConstraintsAndIndexes(w)
	}

	g.writeSequenceResets(w)
	g.writeTeardown(w)
	return nil
}

func (g *Generator) writeHeader(w io.Writer, h Header) {
	fmt.Fprintf(w, "--\n-- pgsample dump\n-- generated: %s\n", h.GeneratedAt.Format(time.RFC3339))
	if h.SourceDSN != "" {
		fmt.Fprintf(w, "-- source: %s\n", h.SourceDSN)
	}
	if len(h.RuleSummary) > 0 {
		fmt.Fprintf(w, "-- rules: %s\n", strings.Join(h.RuleSummary, "; "))
	}
	if h.Ordered {
		dir := "DESC"
		if !h.OrderedDesc {
			dir = "ASC"
		}
		fmt.Fprintf(w, "-- ordered: %s\n", dir)
	}
	if h.Random {
		fmt.Fprintln(w, "-- random: true")
	}
	if len(h.ExcludeSchema) > 0 {
		fmt.Fprintf(w, "-- exclude-schema: %s\n", strings.Join(h.ExcludeSchema, ", "))
	}
	if len(h.ExcludeTable) > 0 {
		fmt.Fprintf(w, "-- exclude-table: %s\n", strings.Join(h.ExcludeTable, ", "))
	}
	fmt.Fprintln(w, "--")
	fmt.Fprintln(w)
}

func (g *Generator) writeSessionSetup(w io.Writer) {
	fmt.Fprintln(w, "SET session_replication_role = 'replica';")
	fmt.Fprintln(w, "SET client_encoding = 'UTF8';")
	fmt.Fprintln(w, "SET standard_conforming_strings = on;")
	fmt.Fprintln(w)
}

func (g *Generator) writeTeardown(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SET session_replication_role = 'origin';")
}

func (g *Generator) writeSchemaObjects(w io.Writer) {
	for _, ext := range g.objects.Extensions {
		fmt.Fprintf(w, "CREATE EXTENSION IF NOT EXISTS %s;\n", QuoteIdent(ext.Name))
	}
	if len(g.objects.Extensions) > 0 {
		fmt.Fprintln(w)
	}

	for _, t := range g.objects.Types {
		g.writeType(w, t)
	}

	for _, s := range g.objects.Sequences {
		g.writeSequenceDef(w, s)
	}

	for _, qname := range g.graph.InsertionOrder() {
		t, ok := g.tables[qname]
		if !ok {
			continue
		}
		g.writeCreateTable(w, t)
	}

	for _, v := range g.objects.Views {
		fmt.Fprintf(w, "CREATE VIEW %s AS\n%s;\n\n", QualifyName(v.Schema, v.Name), v.Definition)
	}
	for _, v := range g.objects.MatViews {
		fmt.Fprintf(w, "CREATE MATERIALIZED VIEW %s AS\n%s;\n\n", QualifyName(v.Schema, v.Name), v.Definition)
	}
}

func (g *Generator) writeType(w io.Writer, t catalog.Type) {
	name := QualifyName(t.Schema, t.Name)
	switch t.Kind {
	case catalog.TypeEnum:
		labels := make([]string, len(t.EnumLabels))
		for i, l := range t.EnumLabels {
			labels[i] = quoteLiteral(l)
		}
		fmt.Fprintf(w, "CREATE TYPE %s AS ENUM (%s);\n", name, strings.Join(labels, ", "))
	case catalog.TypeComposite:
		fields := make([]string, len(t.CompositeFields))
		for i, f := range t.CompositeFields {
			fields[i] = QuoteIdent(f.Name) + " " + f.DataType
		}
		fmt.Fprintf(w, "CREATE TYPE %s AS (%s);\n", name, strings.Join(fields, ", "))
	case catalog.TypeDomain:
		fmt.Fprintf(w, "CREATE DOMAIN %s AS %s", name, t.DomainBase)
		if t.DomainCheck != "" {
			fmt.Fprintf(w, " %s", t.DomainCheck)
		}
		fmt.Fprintln(w, ";")
	}
}

func (g *Generator) writeSequenceDef(w io.Writer, s catalog.Sequence) {
	fmt.Fprintf(w, "CREATE SEQUENCE IF NOT EXISTS %s", QualifyName(s.Schema, s.Name))
	if s.Increment != 0 {
		fmt.Fprintf(w, " INCREMENT BY %d", s.Increment)
	}
	fmt.Fprintln(w, ";")
}

func (g *Generator) writeCreateTable(w io.Writer, t catalog.Table) {
	ifNotExists := "IF NOT EXISTS "
	if v := g.opts.TargetVersion; v != "" {
		var major, minor int
		fmt.Sscanf(v, "%d.%d", &major, &minor)
		if major < 9 || (major == 9 && minor < 1) {
			ifNotExists = "" // IF NOT EXISTS for tables requires 9.1+
		}
	}
	fmt.Fprintf(w, "CREATE TABLE %s%s (\n", ifNotExists, QualifyName(t.Schema, t.Name))

	lines := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		line := "  " + QuoteIdent(c.Name) + " " + c.DataType
		if c.Identity == catalog.IdentityAlways {
			line += " GENERATED ALWAYS AS IDENTITY"
		} else if c.Identity == catalog.IdentityByDefault {
			line += " GENERATED BY DEFAULT AS IDENTITY"
		}
		if c.NotNull {
			line += " NOT NULL"
		}
		if c.HasDefault && c.Default != "" {
			line += " DEFAULT " + c.Default
		}
		lines = append(lines, line)
	}
	if t.HasPK() {
		cols := make([]string, len(t.PrimaryKey))
		for i, c := range t.PrimaryKey {
			cols[i] = QuoteIdent(c)
		}
		lines = append(lines, "  PRIMARY KEY ("+strings.Join(cols, ", ")+")")
	}
	fmt.Fprintln(w, strings.Join(lines, ",\n"))
	fmt.Fprintln(w, ");")
	fmt.Fprintln(w)
}

func (g *Generator) writeData(w io.Writer) {
	for _, qname := range g.graph.InsertionOrder() {
		t, ok := g.tables[qname]
		if !ok {
			continue
		}
		res := g.results[qname]
		if res == nil || len(res.Rows) == 0 {
			continue
		}
		g.writeInserts(w, t, res)
	}
}

func (g *Generator) writeInserts(w io.Writer, t catalog.Table, res *sampling.Result) {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = QuoteIdent(c.Name)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES\n", QualifyName(t.Schema, t.Name), strings.Join(cols, ", "))

	for start := 0; start < len(res.Rows); start += g.opts.RowsPerInsert {
		end := start + g.opts.RowsPerInsert
		if end > len(res.Rows) {
			end = len(res.Rows)
		}
		fmt.Fprint(w, prefix)
		for i, row := range res.Rows[start:end] {
			vals := make([]string, len(row))
			for j, v := range row {
				vals[j] = Literal(v)
			}
			sep := ","
			if i == end-start-1 {
				sep = ";"
			}
			fmt.Fprintf(w, "  (%s)%s\n", strings.Join(vals, ", "), sep)
		}
	}
	fmt.Fprintln(w)
}

func (g *Generator) writeConstraintsAndIndexes(w io.Writer) {
	for _, qname := range g.graph.ConstraintCreationOrder() {
		t, ok := g.tables[qname]
		if !ok {
			continue
		}
		for _, fk := range t.ForeignKeys {
			local := make([]string, len(fk.LocalColumns))
			for i, c := range fk.LocalColumns {
				local[i] = QuoteIdent(c)
			}
			ref := make([]string, len(fk.RefColumns))
			for i, c := range fk.RefColumns {
				ref[i] = QuoteIdent(c)
			}
			fmt.Fprintf(w, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
				QualifyName(t.Schema, t.Name), QuoteIdent(fk.ConstraintName), strings.Join(local, ", "),
				QualifyName(fk.RefSchema, fk.RefTable), strings.Join(ref, ", "))
			if fk.OnDelete != "" && fk.OnDelete != "no action" {
				fmt.Fprintf(w, " ON DELETE %s", strings.ToUpper(fk.OnDelete))
			}
			if fk.OnUpdate != "" && fk.OnUpdate != "no action" {
				fmt.Fprintf(w, " ON UPDATE %s", strings.ToUpper(fk.OnUpdate))
			}
			fmt.Fprintln(w, ";")
		}
		for _, u := range t.Uniques {
			cols := make([]string, len(u.Columns))
			for i, c := range u.Columns {
				cols[i] = QuoteIdent(c)
			}
			fmt.Fprintf(w, "ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s);\n",
				QualifyName(t.Schema, t.Name), QuoteIdent(u.Name), strings.Join(cols, ", "))
		}
		for _, c := range t.Checks {
			fmt.Fprintf(w, "ALTER TABLE %s ADD CONSTRAINT %s %s;\n",
				QualifyName(t.Schema, t.Name), QuoteIdent(c.Name), c.Def)
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(w, "%s;\n", idx.Def)
		}
	}
	fmt.Fprintln(w)
}

func (g *Generator) writeSequenceResets(w io.Writer) {
	for _, s := range g.objects.Sequences {
		max := g.maxObservedValue(s)
		fmt.Fprintf(w, "SELECT setval(%s, %d, true);\n", quoteLiteral(s.QualifiedName()), max)
	}
	if len(g.objects.Sequences) > 0 {
		fmt.Fprintln(w)
	}
}

// maxObservedValue returns the highest value observed in the sample for
// s's owning column, or the sequence's current server-side value if no
// sampled row references it.
func (g *Generator) maxObservedValue(s catalog.Sequence) int64 {
	if s.OwnedBy == "" {
		return s.CurrentValue
	}
	parts := strings.SplitN(s.OwnedBy, ".", 3)
	if len(parts) != 3 {
		return s.CurrentValue
	}
	schema, table, column := parts[0], parts[1], parts[2]
	res, ok := g.results[schema+"."+table]
	if !ok {
		return s.CurrentValue
	}
	t, ok := g.tables[schema+"."+table]
	if !ok {
		return s.CurrentValue
	}
	colIdx := -1
	for i, c := range t.Columns {
		if c.Name == column {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return s.CurrentValue
	}
	var max int64
	seen := false
	for _, row := range res.Rows {
		v := row[colIdx]
		if v.Kind == sampling.KindInt64 && (!seen || v.Int64 > max) {
			max, seen = v.Int64, true
		}
	}
	if !seen {
		return s.CurrentValue
	}
	return max
}
