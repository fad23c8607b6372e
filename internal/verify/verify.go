// Package verify implements the post-sampling integrity check: every FK
// value in a sample must be present in the referenced table's sample,
// grounded on pg_sample/sampling.py's verify_referential_integrity.
package verify

import (
	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/sampling"
)

// Violation records one FK value present in the owning table's sample but
// absent from the referenced table's sample.
type Violation struct {
	Constraint    string
	Owner         string // qualified owning table
	LocalColumns  []string
	Referenced    string // qualified referenced table
	RefColumns    []string
	Count         int
	SampleTuples  [][]string // up to 10 offending tuples, stringified
}

// Verify checks every FK between sampled tables whose referenced side has
// a PK. Returns ok=true iff no violations were found.
func Verify(tables map[string]catalog.Table, results map[string]*sampling.Result) (bool, []Violation) {
	var violations []Violation

	for qname, t := range tables {
		resA := results[qname]
		if resA == nil {
			continue
		}
		for _, fk := range t.ForeignKeys {
			b, ok := tables[fk.RefQualified()]
			if !ok || !b.HasPK() {
				continue
			}
			resB := results[fk.RefQualified()]
			if resB == nil {
				continue
			}

			localIdx := indexesOf(t, fk.LocalColumns)
			pkIdx := indexesOf(b, b.PrimaryKey)

			present := map[string]bool{}
			for _, row := range resB.Rows {
				present[sampling.Key(project(row, pkIdx))] = true
			}

			missing := map[string][]string{}
			var order []string
			for _, row := range resA.Rows {
				tuple := project(row, localIdx)
				if anyNull(tuple) {
					continue
				}
				key := sampling.Key(tuple)
				if present[key] {
					continue
				}
				if _, seen := missing[key]; !seen {
					order = append(order, key)
				}
				missing[key] = append(missing[key], stringify(tuple))
			}
			if len(order) == 0 {
				continue
			}

			v := Violation{
				Constraint:   fk.ConstraintName,
				Owner:        t.QualifiedName(),
				LocalColumns: fk.LocalColumns,
				Referenced:   b.QualifiedName(),
				RefColumns:   fk.RefColumns,
			}
			for _, key := range order {
				v.Count += len(missing[key])
			}
			for i, key := range order {
				if i >= 10 {
					break
				}
				v.SampleTuples = append(v.SampleTuples, []string{missing[key][0]})
			}
			violations = append(violations, v)
		}
	}

	return len(violations) == 0, violations
}

func indexesOf(t catalog.Table, cols []string) []int {
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

func project(row sampling.Row, idx []int) []sampling.Value {
	out := make([]sampling.Value, len(idx))
	for i, p := range idx {
		out[i] = row[p]
	}
	return out
}

func anyNull(vals []sampling.Value) bool {
	for _, v := range vals {
		if v.IsNull() {
			return true
		}
	}
	return false
}

func stringify(vals []sampling.Value) string {
	s := ""
	for i, v := range vals {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s
}
