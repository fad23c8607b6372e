package depgraph

import (
	"reflect"
	"testing"
)

func TestInsertionOrderAcyclic(t *testing.T) {
	// orders references customers; order_items references orders.
	g := New(
		[]string{"public.customers", "public.orders", "public.order_items"},
		[][2]string{
			{"public.orders", "public.customers"},
			{"public.order_items", "public.orders"},
		},
	)
	order := g.InsertionOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["public.customers"] >= pos["public.orders"] {
		t.Errorf("customers must precede orders, got order %v", order)
	}
	if pos["public.orders"] >= pos["public.order_items"] {
		t.Errorf("orders must precede order_items, got order %v", order)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %v", len(order), order)
	}
}

func TestInsertionOrderDeterministicWithCycle(t *testing.T) {
	// a <-> b cycle; c depends on nothing.
	edges := [][2]string{
		{"public.a", "public.b"},
		{"public.b", "public.a"},
	}
	nodes := []string{"public.a", "public.b", "public.c"}
	g1 := New(nodes, edges)
	g2 := New(nodes, edges)
	if !reflect.DeepEqual(g1.InsertionOrder(), g2.InsertionOrder()) {
		t.Fatal("InsertionOrder must be deterministic for identical input")
	}
	order := g1.InsertionOrder()
	if len(order) != 3 {
		t.Fatalf("expected all 3 nodes present once, got %v", order)
	}
}

func TestConstraintCreationOrderIsReverse(t *testing.T) {
	g := New([]string{"public.a", "public.b"}, [][2]string{{"public.b", "public.a"}})
	ins := g.InsertionOrder()
	cons := g.ConstraintCreationOrder()
	for i, n := range ins {
		if cons[len(ins)-1-i] != n {
			t.Fatalf("ConstraintCreationOrder is not the reverse of InsertionOrder: %v vs %v", ins, cons)
		}
	}
}

func TestCycleGroupsNormalized(t *testing.T) {
	g := New(
		[]string{"public.zebra", "public.apple"},
		[][2]string{{"public.zebra", "public.apple"}, {"public.apple", "public.zebra"}},
	)
	groups := g.CycleGroups()
	if len(groups) != 1 {
		t.Fatalf("expected one cycle group, got %d", len(groups))
	}
	if groups[0][0] != "public.apple" {
		t.Errorf("cycle group must start at lexicographically smallest member, got %v", groups[0])
	}
}

func TestDependenciesTransitive(t *testing.T) {
	g := New(
		[]string{"public.a", "public.b", "public.c"},
		[][2]string{{"public.a", "public.b"}, {"public.b", "public.c"}},
	)
	deps := g.Dependencies("public.a")
	if !reflect.DeepEqual(deps, []string{"public.b", "public.c"}) {
		t.Errorf("Dependencies(a) = %v, want [b c]", deps)
	}
	dependents := g.Dependents("public.c")
	if !reflect.DeepEqual(dependents, []string{"public.a", "public.b"}) {
		t.Errorf("Dependents(c) = %v, want [a b]", dependents)
	}
}
