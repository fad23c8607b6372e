package verify

import (
	"testing"

	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/sampling"
)

func TestVerifyDetectsMissingReference(t *testing.T) {
	customers := catalog.Table{
		Schema: "public", Name: "customers",
		Columns:    []catalog.Column{{Name: "id"}},
		PrimaryKey: []string{"id"},
	}
	orders := catalog.Table{
		Schema: "public", Name: "orders",
		Columns: []catalog.Column{{Name: "id"}, {Name: "customer_id"}},
		ForeignKeys: []catalog.ForeignKey{{
			ConstraintName: "orders_customer_id_fkey",
			OwnerSchema:    "public", OwnerTable: "orders",
			LocalColumns: []string{"customer_id"},
			RefSchema:    "public", RefTable: "customers",
			RefColumns: []string{"id"},
		}},
	}

	tables := map[string]catalog.Table{
		"public.customers": customers,
		"public.orders":    orders,
	}
	results := map[string]*sampling.Result{
		"public.customers": {Rows: []sampling.Row{{sampling.Int64(1)}}},
		"public.orders": {Rows: []sampling.Row{
			{sampling.Int64(10), sampling.Int64(1)},
			{sampling.Int64(11), sampling.Int64(99)}, // dangling reference
		}},
	}

	ok, violations := Verify(tables, results)
	if ok {
		t.Fatal("expected verification to fail")
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].Count != 1 {
		t.Errorf("expected count 1, got %d", violations[0].Count)
	}
}

func TestVerifyPassesWhenClosed(t *testing.T) {
	customers := catalog.Table{
		Schema: "public", Name: "customers",
		Columns:    []catalog.Column{{Name: "id"}},
		PrimaryKey: []string{"id"},
	}
	orders := catalog.Table{
		Schema: "public", Name: "orders",
		Columns: []catalog.Column{{Name: "id"}, {Name: "customer_id"}},
		ForeignKeys: []catalog.ForeignKey{{
			ConstraintName: "orders_customer_id_fkey",
			OwnerSchema:    "public", OwnerTable: "orders",
			LocalColumns: []string{"customer_id"},
			RefSchema:    "public", RefTable: "customers",
			RefColumns: []string{"id"},
		}},
	}
	tables := map[string]catalog.Table{"public.customers": customers, "public.orders": orders}
	results := map[string]*sampling.Result{
		"public.customers": {Rows: []sampling.Row{{sampling.Int64(1)}}},
		"public.orders":    {Rows: []sampling.Row{{sampling.Int64(10), sampling.Int64(1)}}},
	}

	ok, violations := Verify(tables, results)
	if !ok || len(violations) != 0 {
		t.Fatalf("expected clean verification, got ok=%v violations=%v", ok, violations)
	}
}
