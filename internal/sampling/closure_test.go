package sampling

import "testing"

func TestColumnIndexes(t *testing.T) {
	tbl := tableWithColumns("orders", "id", "customer_id", "total")
	idx := columnIndexes(tbl, []string{"customer_id", "id"})
	if idx[0] != 1 || idx[1] != 0 {
		t.Fatalf("columnIndexes = %v, want [1 0]", idx)
	}
}

func TestProjectAndKey(t *testing.T) {
	row := Row{Int64(1), Int64(2), Text("x")}
	proj := project(row, []int{2, 0})
	if len(proj) != 2 || proj[0].Text != "x" || proj[1].Int64 != 1 {
		t.Fatalf("unexpected projection: %v", proj)
	}
	if Key(proj) != Key([]Value{Text("x"), Int64(1)}) {
		t.Error("Key must be stable for identical tuples")
	}
}

func TestAnyNull(t *testing.T) {
	if anyNull([]Value{Int64(1), Text("a")}) {
		t.Error("no null present")
	}
	if !anyNull([]Value{Int64(1), Null()}) {
		t.Error("expected null detected")
	}
}
