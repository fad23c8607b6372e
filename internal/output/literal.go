package output

import (
	"fmt"
	"strings"

	"github.com/pgsample/pgsample/internal/sampling"
)

// Literal formats v as a SQL literal suitable for an INSERT statement,
// dispatching on Kind the way the Output Generator's design note requires
// (§3/§9 of SPEC_FULL.md) since a static dump script has no driver-level
// parameter placeholder to delegate this to.
func Literal(v sampling.Value) string {
	switch v.Kind {
	case sampling.KindNull:
		return "NULL"
	case sampling.KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case sampling.KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case sampling.KindFloat64:
		return fmt.Sprintf("%g", v.Float64)
	case sampling.KindDecimal:
		return v.Text
	case sampling.KindText:
		return quoteLiteral(v.Text)
	case sampling.KindBytes:
		return `'\x` + fmt.Sprintf("%x", v.Bytes) + `'`
	case sampling.KindTime:
		return quoteLiteral(v.Time)
	case sampling.KindInterval:
		return quoteLiteral(v.Text)
	case sampling.KindJSON:
		return quoteLiteral(string(v.Bytes))
	case sampling.KindArray:
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = Literal(e)
		}
		return "ARRAY[" + strings.Join(parts, ", ") + "]"
	default:
		return "NULL"
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
