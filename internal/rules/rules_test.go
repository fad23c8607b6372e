package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseValueKinds(t *testing.T) {
	e, err := Parse([]string{"orders=500,logs=*,audit_*=10%,users=active=true"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(e.rules) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(e.rules))
	}

	p := e.Match("public", "orders")
	if p.Kind != Numeric || p.N != 500 {
		t.Errorf("orders: got %v", p)
	}
	p = e.Match("public", "logs")
	if p.Kind != Full {
		t.Errorf("logs: got %v", p)
	}
	p = e.Match("public", "audit_events")
	if p.Kind != Percentage || p.Percent != 10 {
		t.Errorf("audit_events: got %v", p)
	}
	p = e.Match("public", "users")
	if p.Kind != Conditional || p.Expression != "active=true" {
		t.Errorf("users: got %v", p)
	}
}

func TestMatchDefaultsWhenNoRuleMatches(t *testing.T) {
	e, err := Parse([]string{"orders=500"})
	if err != nil {
		t.Fatal(err)
	}
	p := e.Match("public", "customers")
	if p != DefaultPolicy {
		t.Errorf("expected DefaultPolicy, got %v", p)
	}
}

func TestFirstMatchWins(t *testing.T) {
	e, err := Parse([]string{"order_*=10", "order_items=999"})
	if err != nil {
		t.Fatal(err)
	}
	p := e.Match("public", "order_items")
	if p.Kind != Numeric || p.N != 10 {
		t.Errorf("expected first rule (order_*=10) to win, got %v", p)
	}
}

func TestUnmatchedRulesDiagnostic(t *testing.T) {
	e, err := Parse([]string{"orders=500", "ghost_table=1"})
	if err != nil {
		t.Fatal(err)
	}
	e.Match("public", "orders")
	unmatched := e.UnmatchedRules()
	if len(unmatched) != 1 || unmatched[0] != "ghost_table" {
		t.Errorf("expected [ghost_table], got %v", unmatched)
	}
}

func TestSchemaWildcardMatch(t *testing.T) {
	e, err := Parse([]string{"audit.*=5"})
	if err != nil {
		t.Fatal(err)
	}
	p := e.Match("audit", "log_entries")
	if p.Kind != Numeric || p.N != 5 {
		t.Errorf("expected schema wildcard match, got %v", p)
	}
}

func TestConditionalExpressionMustParseAsSQL(t *testing.T) {
	_, err := Parse([]string{"orders=totally not sql("})
	if err == nil {
		t.Fatal("expected an error for a malformed conditional expression")
	}
}

func TestConditionalExpressionAccepted(t *testing.T) {
	e, err := Parse([]string{"orders=status = 'shipped' AND amount > 100"})
	if err != nil {
		t.Fatalf("expected a valid boolean expression to parse, got: %v", err)
	}
	got := e.Match("public", "orders")
	want := Policy{Kind: Conditional, Expression: "status = 'shipped' AND amount > 100"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Match() mismatch (-want +got):\n%s", diff)
	}
}
