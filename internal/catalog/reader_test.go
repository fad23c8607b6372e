package catalog

import "testing"

func TestTableExcluded(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		table  string
		globs  []string
		want   bool
	}{
		{"no globs", "public", "orders", nil, false},
		{"exact bare match", "public", "orders", []string{"orders"}, true},
		{"exact qualified match", "public", "orders", []string{"public.orders"}, true},
		{"wildcard suffix", "public", "order_items", []string{"order_*"}, true},
		{"wildcard schema", "audit", "log", []string{"audit.*"}, true},
		{"case insensitive", "public", "Orders", []string{"orders"}, true},
		{"no match", "public", "customers", []string{"order_*"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tableExcluded(tc.schema, tc.table, tc.globs); got != tc.want {
				t.Errorf("tableExcluded(%q, %q, %v) = %v, want %v", tc.schema, tc.table, tc.globs, got, tc.want)
			}
		})
	}
}

func TestSchemaAllowed(t *testing.T) {
	if schemaAllowed("pg_catalog", Filter{}) {
		t.Error("pg_catalog must be excluded by default")
	}
	if !schemaAllowed("public", Filter{}) {
		t.Error("public must be allowed by default")
	}
	if schemaAllowed("public", Filter{Include: []string{"tenant"}}) {
		t.Error("include set must win over default allow")
	}
	if !schemaAllowed("pg_catalog", Filter{Include: []string{"pg_catalog"}}) {
		t.Error("include set must win over default exclusion")
	}
	if schemaAllowed("reporting", Filter{ExcludeSchema: []string{"reporting"}}) {
		t.Error("explicit exclude schema must be honored")
	}
}
