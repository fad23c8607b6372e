// Package rules implements the limit-rule language: glob patterns matched
// against table names, resolving to a sampling policy, grounded on
// pg_sample/sampling.py's parse_limit_rules and _find_limit_rule.
// CONDITIONAL expressions are validated with pganalyze/pg_query_go, the
// same PostgreSQL-grammar parser pgschema links against elsewhere in the
// pack, so a malformed rule fails at parse time.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// PolicyKind identifies which variant of Policy is populated.
type PolicyKind int

const (
	Numeric PolicyKind = iota
	Percentage
	Full
	Conditional
)

// Policy is the effective sampling policy for one table.
type Policy struct {
	Kind       PolicyKind
	N          int     // Numeric
	Percent    float64 // Percentage, in (0, 100]
	Expression string  // Conditional, a raw SQL boolean expression
}

func (p Policy) String() string {
	switch p.Kind {
	case Numeric:
		return fmt.Sprintf("NUMERIC(%d)", p.N)
	case Percentage:
		return fmt.Sprintf("PERCENTAGE(%g)", p.Percent)
	case Full:
		return "FULL"
	case Conditional:
		return fmt.Sprintf("CONDITIONAL(%s)", p.Expression)
	default:
		return "UNKNOWN"
	}
}

// DefaultPolicy is applied to any table matched by no rule.
var DefaultPolicy = Policy{Kind: Numeric, N: 100}

// Rule is one compiled pattern=value pair, in declaration order.
type Rule struct {
	Pattern string
	re      *regexp.Regexp
	Policy  Policy

	matchCount int // how many tables this rule has matched, for diagnostics
}

// Engine holds an ordered rule list; first match wins.
type Engine struct {
	rules []*Rule
}

// Parse compiles rule text of the form "pattern=value", comma-separated
// within one string and across multiple strings (one per repeated CLI
// flag occurrence), preserving declaration order across both dimensions.
func Parse(specs []string) (*Engine, error) {
	e := &Engine{}
	for _, spec := range specs {
		for _, part := range strings.Split(spec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			idx := strings.Index(part, "=")
			if idx < 0 {
				return nil, fmt.Errorf("invalid limit rule %q: expected pattern=value", part)
			}
			pattern := strings.TrimSpace(part[:idx])
			value := strings.TrimSpace(part[idx+1:])
			if pattern == "" {
				return nil, fmt.Errorf("invalid limit rule %q: empty pattern", part)
			}
			policy, err := parseValue(value)
			if err != nil {
				return nil, fmt.Errorf("invalid limit rule %q: %w", part, err)
			}
			e.rules = append(e.rules, &Rule{Pattern: pattern, re: compileGlob(pattern), Policy: policy})
		}
	}
	return e, nil
}

func parseValue(value string) (Policy, error) {
	switch {
	case value == "*":
		return Policy{Kind: Full}, nil
	case strings.HasSuffix(value, "%"):
		numStr := strings.TrimSuffix(value, "%")
		p, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid percentage %q: %w", value, err)
		}
		if p <= 0 || p > 100 {
			return Policy{}, fmt.Errorf("percentage %q out of range (0, 100]", value)
		}
		return Policy{Kind: Percentage, Percent: p}, nil
	default:
		if n, err := strconv.Atoi(value); err == nil {
			if n < 0 {
				return Policy{}, fmt.Errorf("negative numeric limit %q", value)
			}
			return Policy{Kind: Numeric, N: n}, nil
		}
		if err := validateConditional(value); err != nil {
			return Policy{}, fmt.Errorf("invalid conditional expression %q: %w", value, err)
		}
		return Policy{Kind: Conditional, Expression: value}, nil
	}
}

// validateConditional parses value as a SQL boolean expression the way it
// will actually be interpolated into a WHERE clause, so a typo surfaces at
// rule-parse time rather than at query-execution time against the target
// database.
func validateConditional(value string) error {
	_, err := pg_query.Parse(fmt.Sprintf("SELECT 1 WHERE %s", value))
	return err
}

func compileGlob(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?i)^" + strings.Join(parts, ".*") + "$")
}

// Match returns the effective policy for schema.table, trying the
// candidate forms "schema.table", "table", and "schema.*" in declaration
// order against every rule; the first rule whose pattern matches any
// candidate wins. Returns DefaultPolicy when no rule matches.
func (e *Engine) Match(schema, table string) Policy {
	candidates := []string{schema + "." + table, table, schema + ".*"}
	for _, r := range e.rules {
		for _, c := range candidates {
			if r.re.MatchString(c) {
				r.matchCount++
				return r.Policy
			}
		}
	}
	return DefaultPolicy
}

// UnmatchedRules returns the patterns of rules that matched zero tables
// across every Match call so far — a non-fatal diagnostic per spec §4.3.
func (e *Engine) UnmatchedRules() []string {
	var out []string
	for _, r := range e.rules {
		if r.matchCount == 0 {
			out = append(out, r.Pattern)
		}
	}
	return out
}
