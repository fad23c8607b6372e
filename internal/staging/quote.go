package staging

import "strings"

// quoteIdent is a conservative identifier quoter for staging DDL/DML this
// package builds itself; the output generator's fuller reserved-word-aware
// quoting (internal/output.QuoteIdent) is authoritative for emitted dump
// text.
func quoteIdent(ident string) string {
	for _, r := range ident {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
	return ident
}
