package sampling

import "strings"

// Row is one sampled row, values in the owning table's column order.
type Row []Value

// Key builds a dedup key from the values at positions, joining with a
// separator unlikely to collide with normal column text. Used both for a
// table's own PK-based presence set and for projecting FK tuples.
func Key(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, "\x1f")
}

// Result is the sampled rows for one table plus the policy that produced
// the initial sample (closure-added rows do not change Policy).
type Result struct {
	Schema string
	Table  string
	Rows   []Row
	Policy string // rules.Policy.String(), kept as text to avoid an import cycle
}

func (r *Result) Qualified() string { return r.Schema + "." + r.Table }
