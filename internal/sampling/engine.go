package sampling

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/depgraph"
	"github.com/pgsample/pgsample/internal/errs"
	"github.com/pgsample/pgsample/internal/logger"
	"github.com/pgsample/pgsample/internal/rules"
)

// Mode selects the physical sampling strategy.
type Mode int

const (
	ModeAuto Mode = iota
	ModeDirect
	ModeStaging
)

// autoStagingTableThreshold and autoStagingFKThreshold implement the
// auto-mode-selection heuristic from spec §4.4.3.
const (
	autoStagingTableThreshold = 50
	autoStagingFKThreshold    = 5
)

// SelectMode resolves ModeAuto against the table set, per spec §4.4.3.
func SelectMode(requested Mode, tables []catalog.Table) Mode {
	if requested != ModeAuto {
		return requested
	}
	if len(tables) > autoStagingTableThreshold {
		return ModeStaging
	}
	for _, t := range tables {
		if len(t.ForeignKeys) > autoStagingFKThreshold {
			return ModeStaging
		}
	}
	return ModeDirect
}

// StagingBackend is the contract internal/staging.Manager satisfies; the
// engine depends on this narrow interface rather than the concrete type so
// tests can fake it, and so internal/sampling never has to import
// internal/staging (staging imports sampling for Row and FromDriverValue).
type StagingBackend interface {
	Create(ctx context.Context, force bool) error
	Drop(ctx context.Context) error
	CreateTable(ctx context.Context, t catalog.Table) error
	Copy(ctx context.Context, t catalog.Table, query string, args []any) (int64, error)
	AddIndexes(ctx context.Context, t catalog.Table) error
	Read(ctx context.Context, t catalog.Table) ([]Row, error)
	ResolveForeignKey(ctx context.Context, fk catalog.ForeignKey) (int64, error)
}

// Options configures one sampling run.
type Options struct {
	Mode          Mode
	ExcludeColumn []string // glob, "table.column" or bare "column"
	Ordered       bool
	OrderedDesc   bool // descending when true; the zero value sorts ascending, so Ordered alone gives ascending order
	Random        bool
}

// Engine samples every table in tables, per the policy Rules assigns,
// then closes the result over FK references.
type Engine struct {
	db      *sql.DB
	graph   *depgraph.Graph
	tables  map[string]catalog.Table
	rules   *rules.Engine
	opts    Options
	staging StagingBackend
}

func New(db *sql.DB, graph *depgraph.Graph, tables []catalog.Table, ruleEngine *rules.Engine, opts Options, staging StagingBackend) *Engine {
	byName := make(map[string]catalog.Table, len(tables))
	for _, t := range tables {
		byName[t.QualifiedName()] = t
	}
	return &Engine{db: db, graph: graph, tables: byName, rules: ruleEngine, opts: opts, staging: staging}
}

// SampleAll samples every table, then closes the result set over FK
// references, returning a map keyed by qualified table name.
func (e *Engine) SampleAll(ctx context.Context) (map[string]*Result, error) {
	log := logger.FromContext(ctx)
	mode := SelectMode(e.opts.Mode, e.tablesSlice())

	if mode == ModeStaging {
		if err := e.staging.Create(ctx, false); err != nil {
			log.WarnContext(ctx, "staging schema creation failed, downgrading to direct mode", "error", err)
			mode = ModeDirect
		}
	}

	results := make(map[string]*Result, len(e.tables))
	order := e.graph.InsertionOrder()

	for _, qname := range order {
		t := e.tables[qname]
		policy := e.rules.Match(t.Schema, t.Name)
		res, err := e.sampleTable(ctx, t, policy, mode)
		if err != nil {
			return nil, errs.Connection("sampling "+qname, err)
		}
		results[qname] = res
	}

	if mode == ModeDirect {
		if err := e.closeForeignKeysDirect(ctx, results); err != nil {
			return nil, err
		}
	} else {
		if err := e.closeForeignKeysStaging(ctx); err != nil {
			return nil, err
		}
		for _, qname := range order {
			t := e.tables[qname]
			rows, err := e.staging.Read(ctx, t)
			if err != nil {
				return nil, errs.Connection("reading back staging."+qname, err)
			}
			results[qname].Rows = rows
		}
	}

	return results, nil
}

func (e *Engine) tablesSlice() []catalog.Table {
	out := make([]catalog.Table, 0, len(e.tables))
	for _, t := range e.tables {
		out = append(out, t)
	}
	return out
}

func (e *Engine) sampleTable(ctx context.Context, t catalog.Table, policy rules.Policy, mode Mode) (*Result, error) {
	res := &Result{Schema: t.Schema, Table: t.Name, Policy: policy.String()}

	projection := e.projectedColumns(t)
	query, args, err := e.buildQuery(ctx, t, policy, projection)
	if err != nil {
		return nil, err
	}

	if mode == ModeStaging {
		if err := e.staging.CreateTable(ctx, t); err != nil {
			return nil, fmt.Errorf("creating staging table for %s: %w", t.QualifiedName(), err)
		}
		if _, err := e.staging.Copy(ctx, t, query, args); err != nil {
			return nil, fmt.Errorf("copying into staging for %s: %w", t.QualifiedName(), err)
		}
		if err := e.staging.AddIndexes(ctx, t); err != nil {
			return nil, fmt.Errorf("mirroring indexes for %s: %w", t.QualifiedName(), err)
		}
		return res, nil // rows filled in by the caller's read-back pass
	}

	rows, err := e.runQuery(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.QualifiedName(), err)
	}
	res.Rows = rows
	return res, nil
}

// projectedColumns returns, for every column of t in ordinal order, either
// the quoted column name or the literal "NULL" when excluded.
func (e *Engine) projectedColumns(t catalog.Table) []string {
	out := make([]string, len(t.Columns))
	anyKept := false
	for i, c := range t.Columns {
		if columnExcluded(t.Name, c.Name, e.opts.ExcludeColumn) {
			out[i] = "NULL"
			continue
		}
		out[i] = quoteIdent(c.Name)
		anyKept = true
	}
	if !anyKept {
		return []string{"NULL"}
	}
	return out
}

func columnExcluded(table, column string, globs []string) bool {
	qualified := table + "." + column
	for _, g := range globs {
		re := globToRegex(g)
		if re.MatchString(qualified) || re.MatchString(column) {
			return true
		}
	}
	return false
}

func (e *Engine) buildQuery(ctx context.Context, t catalog.Table, policy rules.Policy, projection []string) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(t.Schema))
	sb.WriteString(".")
	sb.WriteString(quoteIdent(t.Name))

	if policy.Kind == rules.Conditional {
		sb.WriteString(" WHERE ")
		sb.WriteString(policy.Expression)
	}

	if e.opts.Ordered {
		cols := t.PrimaryKey
		dir := "DESC"
		if !e.opts.OrderedDesc {
			dir = "ASC"
		}
		sb.WriteString(" ORDER BY ")
		if len(cols) > 0 {
			qcols := make([]string, len(cols))
			for i, c := range cols {
				qcols[i] = quoteIdent(c)
			}
			sb.WriteString(strings.Join(qcols, ", "))
		} else {
			sb.WriteString("ctid")
		}
		sb.WriteString(" ")
		sb.WriteString(dir)
	} else if e.opts.Random {
		sb.WriteString(" ORDER BY random()")
	}

	switch policy.Kind {
	case rules.Numeric:
		sb.WriteString(" LIMIT " + strconv.Itoa(policy.N))
	case rules.Percentage:
		total, err := e.countRows(ctx, t)
		if err != nil {
			return "", nil, err
		}
		n := int(math.Floor(float64(total) * policy.Percent / 100))
		if n < 1 {
			n = 1
		}
		sb.WriteString(" LIMIT " + strconv.Itoa(n))
	case rules.Full, rules.Conditional:
		// no LIMIT
	}

	return sb.String(), nil, nil
}

func (e *Engine) countRows(ctx context.Context, t catalog.Table) (int64, error) {
	var n int64
	q := "SELECT COUNT(*) FROM " + quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
	err := e.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

func (e *Engine) runQuery(ctx context.Context, query string, args []any) ([]Row, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		scanned := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, v := range scanned {
			row[i] = FromDriverValue(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
