package sampling

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

func globToRegex(glob string) *regexp.Regexp {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?i)^" + strings.Join(parts, ".*") + "$")
}

// quoteIdent is a minimal identifier quoter local to query building; the
// output generator's quoting (internal/output.QuoteIdent) is the
// authoritative, fuller implementation used for the emitted DDL/DML text.
func quoteIdent(ident string) string {
	needsQuote := false
	for i, r := range ident {
		if i == 0 && !isLetterOrUnderscore(r) {
			needsQuote = true
			break
		}
		if !isLetterOrUnderscore(r) && !isDigit(r) {
			needsQuote = true
			break
		}
		if r >= 'A' && r <= 'Z' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return ident
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func isLetterOrUnderscore(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// FromDriverValue converts a value scanned generically from database/sql
// into this package's Value sum type. Exported so internal/staging can
// build Rows from its own generic scans without duplicating the switch.
func FromDriverValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int64:
		return Int64(x)
	case float64:
		return Float64(x)
	case []byte:
		// Any value the driver delivers as raw bytes becomes KindBytes;
		// nothing re-tags it to another Kind afterwards.
		return Bytes(x)
	case string:
		return Text(x)
	case time.Time:
		return Time(x.Format(time.RFC3339Nano))
	default:
		b, _ := json.Marshal(x)
		return JSON(b)
	}
}
