package sampling

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/errs"
	"github.com/pgsample/pgsample/internal/logger"
)

// closeForeignKeysDirect implements spec §4.4.2's fixpoint iteration: the
// original pg_sample tool ran a single pass, which under-resolves FK
// cycles; this loops until a pass adds zero rows, capped at
// len(tables)+1 rounds as a safety net against a bug producing an
// infinite chase.
func (e *Engine) closeForeignKeysDirect(ctx context.Context, results map[string]*Result) error {
	maxRounds := len(e.tables) + 1

	for round := 0; round < maxRounds; round++ {
		added := 0
		for _, qname := range e.graph.InsertionOrder() {
			a := e.tables[qname]
			resA := results[qname]
			for _, fk := range a.ForeignKeys {
				b, ok := e.tables[fk.RefQualified()]
				if !ok {
					continue // referenced table not under sample
				}
				resB := results[fk.RefQualified()]
				n, err := e.resolveOne(ctx, a, fk, b, resA, resB)
				if err != nil {
					return err
				}
				added += n
			}
		}
		if added == 0 {
			return nil
		}
	}
	return errs.Internal("fk closure", fmt.Errorf("exceeded %d rounds without reaching a fixpoint", maxRounds))
}

func (e *Engine) resolveOne(ctx context.Context, a catalog.Table, fk catalog.ForeignKey, b catalog.Table, resA, resB *Result) (int, error) {
	if !b.HasPK() {
		logger.FromContext(ctx).WarnContext(ctx, "skipping FK closure over PK-less table", "constraint", fk.ConstraintName, "table", b.QualifiedName())
		return 0, nil
	}

	localIdx := columnIndexes(a, fk.LocalColumns)
	refIdx := columnIndexes(b, fk.RefColumns)
	pkIdx := columnIndexes(b, b.PrimaryKey)

	present := make(map[string]bool, len(resB.Rows))
	for _, row := range resB.Rows {
		present[Key(project(row, pkIdx))] = true
	}

	var missing [][]Value
	seen := map[string]bool{}
	for _, row := range resA.Rows {
		tuple := project(row, localIdx)
		if anyNull(tuple) {
			continue
		}
		key := Key(tuple)
		if present[key] || seen[key] {
			continue
		}
		seen[key] = true
		missing = append(missing, tuple)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	fetched, err := e.fetchMissingRows(ctx, b, fk.RefColumns, missing)
	if err != nil {
		return 0, fmt.Errorf("fetching missing rows for %s: %w", fk.ConstraintName, err)
	}

	added := 0
	for _, row := range fetched {
		key := Key(project(row, refIdx))
		if present[key] {
			continue
		}
		present[key] = true
		resB.Rows = append(resB.Rows, row)
		added++
	}
	return added, nil
}

func columnIndexes(t catalog.Table, cols []string) []int {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		pos[c.Name] = i
	}
	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = pos[c]
	}
	return out
}

func project(row Row, idx []int) []Value {
	out := make([]Value, len(idx))
	for i, p := range idx {
		out[i] = row[p]
	}
	return out
}

func anyNull(vals []Value) bool {
	for _, v := range vals {
		if v.IsNull() {
			return true
		}
	}
	return false
}

// fetchMissingRows queries b's source table for every column of the rows
// whose refCols tuple is in missing, via a WHERE (cols) IN (...) clause,
// grounded on pg_sample/sampling.py's _fetch_missing_rows.
func (e *Engine) fetchMissingRows(ctx context.Context, b catalog.Table, refCols []string, missing [][]Value) ([]Row, error) {
	projection := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		projection[i] = quoteIdent(c.Name)
	}

	qcols := make([]string, len(refCols))
	for i, c := range refCols {
		qcols[i] = quoteIdent(c)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(b.Schema))
	sb.WriteString(".")
	sb.WriteString(quoteIdent(b.Name))
	sb.WriteString(" WHERE (")
	sb.WriteString(strings.Join(qcols, ", "))
	sb.WriteString(") IN (")

	var args []any
	argN := 1
	for ti, tuple := range missing {
		if ti > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for vi, v := range tuple {
			if vi > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$" + strconv.Itoa(argN))
			argN++
			args = append(args, valueToDriverArg(v))
		}
		sb.WriteString(")")
	}
	sb.WriteString(")")

	return e.runQuery(ctx, sb.String(), args)
}

func valueToDriverArg(v Value) any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindFloat64:
		return v.Float64
	case KindBytes, KindJSON:
		return v.Bytes
	case KindDecimal, KindText, KindInterval, KindTime:
		return v.Text
	default:
		return nil
	}
}

// closeForeignKeysStaging drives server-side INSERT...SELECT...WHERE NOT
// EXISTS closure between staging tables, fixpoint-iterated the same way
// as the direct-mode closure.
func (e *Engine) closeForeignKeysStaging(ctx context.Context) error {
	maxRounds := len(e.tables) + 1
	for round := 0; round < maxRounds; round++ {
		added := int64(0)
		for _, qname := range e.graph.InsertionOrder() {
			a := e.tables[qname]
			for _, fk := range a.ForeignKeys {
				b, ok := e.tables[fk.RefQualified()]
				if !ok {
					continue // referenced table not under sample
				}
				if !b.HasPK() {
					logger.FromContext(ctx).WarnContext(ctx, "skipping FK closure over PK-less table", "constraint", fk.ConstraintName, "table", b.QualifiedName())
					continue
				}
				n, err := e.staging.ResolveForeignKey(ctx, fk)
				if err != nil {
					return fmt.Errorf("staging closure for %s: %w", fk.ConstraintName, err)
				}
				added += n
			}
		}
		if added == 0 {
			return nil
		}
	}
	return errs.Internal("fk closure (staging)", fmt.Errorf("exceeded %d rounds without reaching a fixpoint", maxRounds))
}
