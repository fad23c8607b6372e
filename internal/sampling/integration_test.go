//go:build integration

package sampling_test

import (
	"context"
	"testing"

	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/depgraph"
	"github.com/pgsample/pgsample/internal/rules"
	"github.com/pgsample/pgsample/internal/sampling"
	"github.com/pgsample/pgsample/internal/staging"
	"github.com/pgsample/pgsample/internal/verify"
	"github.com/pgsample/pgsample/testutil"
)

// buildEngine discovers the catalog of pg (restricted to schema) and
// wires an Engine the way cmd/sample does.
func buildEngine(t *testing.T, ctx context.Context, pg *testutil.TestPostgres, limits []string) (*sampling.Engine, map[string]catalog.Table) {
	t.Helper()

	reader := catalog.NewReader(pg.Conn)
	filter := catalog.Filter{Include: []string{"public"}}
	tables, err := reader.Discover(ctx, filter)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	var nodes []string
	var edges [][2]string
	byName := make(map[string]catalog.Table, len(tables))
	for _, tbl := range tables {
		nodes = append(nodes, tbl.QualifiedName())
		byName[tbl.QualifiedName()] = tbl
		for _, fk := range tbl.ForeignKeys {
			edges = append(edges, [2]string{fk.Qualified(), fk.RefQualified()})
		}
	}
	graph := depgraph.New(nodes, edges)

	ruleEngine, err := rules.Parse(limits)
	if err != nil {
		t.Fatalf("rules.Parse: %v", err)
	}

	mgr := staging.New(pg.Conn, "")
	engine := sampling.New(pg.Conn, graph, tables, ruleEngine, sampling.Options{Mode: sampling.ModeDirect}, mgr)
	return engine, byName
}

func TestScenarioAcyclicChainNumericLimit(t *testing.T) {
	ctx := context.Background()
	pg := testutil.SetupTestPostgres(ctx, t)
	defer pg.Terminate(t)

	pg.ApplyFixture(ctx, t, `
		CREATE TABLE u (id INT PRIMARY KEY);
		CREATE TABLE o (id INT PRIMARY KEY, u_id INT REFERENCES u(id));
		INSERT INTO u SELECT generate_series(1, 1000);
		INSERT INTO o SELECT i, ((i - 1) % 1000) + 1 FROM generate_series(1, 5000) AS i;
	`)

	engine, _ := buildEngine(t, ctx, pg, []string{"o=10"})
	results, err := engine.SampleAll(ctx)
	if err != nil {
		t.Fatalf("SampleAll: %v", err)
	}

	if got := len(results["public.o"].Rows); got != 10 {
		t.Errorf("|o| = %d, want 10", got)
	}
	if got := len(results["public.u"].Rows); got < 1 || got > 10 {
		t.Errorf("|u| = %d, want in [1,10]", got)
	}
}

func TestScenarioCycleConverges(t *testing.T) {
	ctx := context.Background()
	pg := testutil.SetupTestPostgres(ctx, t)
	defer pg.Terminate(t)

	pg.ApplyFixture(ctx, t, `
		CREATE TABLE a (id INT PRIMARY KEY, b_id INT);
		CREATE TABLE b (id INT PRIMARY KEY, a_id INT);
		ALTER TABLE a ADD CONSTRAINT fk_a_b FOREIGN KEY (b_id) REFERENCES b(id) DEFERRABLE INITIALLY DEFERRED;
		ALTER TABLE b ADD CONSTRAINT fk_b_a FOREIGN KEY (a_id) REFERENCES a(id) DEFERRABLE INITIALLY DEFERRED;
		INSERT INTO a VALUES (1, 1);
		INSERT INTO b VALUES (1, 1);
	`)

	engine, tables := buildEngine(t, ctx, pg, []string{"a=1", "b=1"})
	results, err := engine.SampleAll(ctx)
	if err != nil {
		t.Fatalf("SampleAll: %v", err)
	}

	if len(results["public.a"].Rows) == 0 || len(results["public.b"].Rows) == 0 {
		t.Fatal("expected both a and b to contain at least one row")
	}

	ok, violations := verify.Verify(tables, results)
	if !ok {
		t.Fatalf("unexpected violations: %+v", violations)
	}
}

func TestScenarioFKToPKLessTable(t *testing.T) {
	ctx := context.Background()
	pg := testutil.SetupTestPostgres(ctx, t)
	defer pg.Terminate(t)

	pg.ApplyFixture(ctx, t, `
		CREATE TABLE y (val INT);
		CREATE TABLE x (val INT REFERENCES y(val));
		INSERT INTO y VALUES (1), (2), (3);
		INSERT INTO x SELECT (i % 3) + 1 FROM generate_series(1, 5) AS i;
	`)

	engine, tables := buildEngine(t, ctx, pg, []string{"x=5"})
	results, err := engine.SampleAll(ctx)
	if err != nil {
		t.Fatalf("SampleAll: %v", err)
	}

	if got := len(results["public.x"].Rows); got != 5 {
		t.Errorf("|x| = %d, want 5", got)
	}

	ok, violations := verify.Verify(tables, results)
	if !ok {
		t.Fatalf("--verify must not fail on an FK to a PK-less table, got: %+v", violations)
	}
}

func TestScenarioColumnExclusion(t *testing.T) {
	ctx := context.Background()
	pg := testutil.SetupTestPostgres(ctx, t)
	defer pg.Terminate(t)

	pg.ApplyFixture(ctx, t, `
		CREATE TABLE t (id INT PRIMARY KEY, secret TEXT);
		INSERT INTO t VALUES (1, 'a'), (2, 'b'), (3, 'c');
	`)

	reader := catalog.NewReader(pg.Conn)
	tables, err := reader.Discover(ctx, catalog.Filter{Include: []string{"public"}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	graph := depgraph.New([]string{"public.t"}, nil)
	ruleEngine, _ := rules.Parse([]string{"t=100"})
	mgr := staging.New(pg.Conn, "")

	opts := sampling.Options{Mode: sampling.ModeDirect, ExcludeColumn: []string{"t.secret"}}
	engine := sampling.New(pg.Conn, graph, tables, ruleEngine, opts, mgr)

	results, err := engine.SampleAll(ctx)
	if err != nil {
		t.Fatalf("SampleAll: %v", err)
	}

	res := results["public.t"]
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
	for _, row := range res.Rows {
		if !row[1].IsNull() {
			t.Errorf("expected secret column to be NULL, got %v", row[1])
		}
		if row[0].IsNull() {
			t.Errorf("expected id column to retain its value")
		}
	}
}
