// Package sample implements pgsample's only subcommand: discover a
// database's catalog, sample every table under the configured limit
// rules, close the result over foreign keys, optionally verify and
// self-test it, and write it out as a loadable SQL dump.
package sample

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgsample/pgsample/internal/audit"
	"github.com/pgsample/pgsample/internal/catalog"
	"github.com/pgsample/pgsample/internal/config"
	"github.com/pgsample/pgsample/internal/dbconn"
	"github.com/pgsample/pgsample/internal/depgraph"
	"github.com/pgsample/pgsample/internal/errs"
	"github.com/pgsample/pgsample/internal/logger"
	"github.com/pgsample/pgsample/internal/output"
	"github.com/pgsample/pgsample/internal/rules"
	"github.com/pgsample/pgsample/internal/sampling"
	"github.com/pgsample/pgsample/internal/selftest"
	"github.com/pgsample/pgsample/internal/staging"
	"github.com/pgsample/pgsample/internal/verify"
)

var flags struct {
	configPath string
	debug      bool

	host          string
	port          int
	dbname        string
	username      string
	password      string
	connectionURI string
	sslMode       string
	sslCert       string
	sslKey        string
	sslRootCert   string

	schemas        []string
	excludeSchema  []string
	excludeTable   []string
	excludeColumn  []string

	limits      []string
	ordered     bool
	orderedDesc bool
	random      bool

	useStaging    bool
	noStaging     bool
	force         bool
	keep          bool
	dataOnly      bool
	dryRun        bool
	doVerify      bool
	doSelfTest    bool
	targetVersion string

	file     string
	compress bool
	auditOut string
}

var Cmd = &cobra.Command{
	Use:   "sample",
	Short: "Dump a referentially-consistent sample of a PostgreSQL database",
	RunE:  run,
}

func init() {
	f := Cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "path to a JSON/YAML config file")
	f.BoolVar(&flags.debug, "debug", false, "enable debug logging")

	f.StringVar(&flags.host, "host", "", "database host")
	f.IntVar(&flags.port, "port", 0, "database port")
	f.StringVar(&flags.dbname, "dbname", "", "database name")
	f.StringVar(&flags.username, "username", "", "database user")
	f.StringVar(&flags.password, "password", "", "database password")
	f.StringVar(&flags.connectionURI, "connection-uri", "", "full connection URI (wins over discrete fields)")
	f.StringVar(&flags.sslMode, "ssl-mode", "", "SSL mode")
	f.StringVar(&flags.sslCert, "ssl-cert", "", "client SSL certificate path")
	f.StringVar(&flags.sslKey, "ssl-key", "", "client SSL key path")
	f.StringVar(&flags.sslRootCert, "ssl-root-cert", "", "SSL root certificate path")

	f.StringArrayVar(&flags.schemas, "schema", nil, "schema to include (repeatable, glob)")
	f.StringArrayVar(&flags.excludeSchema, "exclude-schema", nil, "schema to exclude (repeatable, glob)")
	f.StringArrayVar(&flags.excludeTable, "exclude-table", nil, "table to exclude (repeatable, glob)")
	f.StringArrayVar(&flags.excludeColumn, "exclude-column", nil, "column to null out (repeatable, glob)")

	f.StringArrayVar(&flags.limits, "limit", nil, "PATTERN=VALUE sampling rule (repeatable)")
	f.BoolVar(&flags.ordered, "ordered", false, "order sampled rows by primary key")
	f.BoolVar(&flags.orderedDesc, "ordered-desc", false, "order sampled rows by primary key, descending")
	f.BoolVar(&flags.random, "random", false, "order sampled rows randomly")

	f.BoolVar(&flags.useStaging, "use-staging", false, "force server-side staging mode")
	f.BoolVar(&flags.noStaging, "no-staging", false, "force in-memory direct mode")
	f.BoolVar(&flags.force, "force", false, "accepted but not read: a pre-existing staging schema is left in place and sampling falls back to direct mode")
	f.BoolVar(&flags.keep, "keep", false, "preserve the staging schema after the run")
	f.BoolVar(&flags.dataOnly, "data-only", false, "emit data statements only, no schema DDL")
	f.BoolVar(&flags.dryRun, "dry-run", false, "discover, sample, and verify, but write nothing")
	f.BoolVar(&flags.doVerify, "verify", false, "fail if the sample violates a foreign key")
	f.BoolVar(&flags.doSelfTest, "self-test", false, "replay the dump through a throwaway instance after writing")
	f.StringVar(&flags.targetVersion, "target-version", "", "PostgreSQL version the dump targets")

	f.StringVar(&flags.file, "file", "", "output file path (default: stdout)")
	f.BoolVar(&flags.compress, "compress", false, "gzip-compress the output")
	f.BoolVar(&flags.compress, "gzip", false, "alias for --compress")
	f.StringVar(&flags.auditOut, "audit-file", "", "write a JSON run summary to this path")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	level := slog.LevelInfo
	if flags.debug {
		level = slog.LevelDebug
	}
	ctx = logger.WithContext(ctx, logger.New(level, nil))
	log := logger.FromContext(ctx)

	v, err := config.Load(flags.configPath, cmd)
	if err != nil {
		return err
	}

	conn := dbconn.Config{
		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		Database:        v.GetString("dbname"),
		User:            v.GetString("username"),
		Password:        v.GetString("password"),
		SSLMode:         v.GetString("ssl-mode"),
		SSLCert:         v.GetString("ssl-cert"),
		SSLKey:          v.GetString("ssl-key"),
		SSLRootCert:     v.GetString("ssl-root-cert"),
		ApplicationName: "pgsample",
		ConnectionURI:   v.GetString("connection-uri"),
	}
	conn.ApplyEnvDefaults()
	if err := conn.Validate(); err != nil {
		return err
	}

	db, err := dbconn.Open(ctx, conn)
	if err != nil {
		return err
	}
	defer db.Close()

	log.InfoContext(ctx, "connected", "target", conn.Scrubbed())

	filter := catalog.Filter{
		Include:       v.GetStringSlice("schema"),
		ExcludeSchema: v.GetStringSlice("exclude-schema"),
		ExcludeTable:  v.GetStringSlice("exclude-table"),
	}

	reader := catalog.NewReader(db)
	tables, err := reader.Discover(ctx, filter)
	if err != nil {
		return err
	}
	objects, err := reader.DiscoverObjects(ctx, filter)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "discovered catalog", "tables", len(tables))

	var nodes []string
	var edges [][2]string
	for _, t := range tables {
		nodes = append(nodes, t.QualifiedName())
		for _, fk := range t.ForeignKeys {
			edges = append(edges, [2]string{fk.Qualified(), fk.RefQualified()})
		}
	}
	graph := depgraph.New(nodes, edges)
	if graph.HasCycles() {
		log.WarnContext(ctx, "dependency cycles detected, breaking lexicographically", "groups", graph.CycleGroups())
	}

	ruleEngine, err := rules.Parse(v.GetStringSlice("limit"))
	if err != nil {
		return err
	}

	mode := sampling.ModeAuto
	if v.GetBool("use-staging") {
		mode = sampling.ModeStaging
	}
	if v.GetBool("no-staging") {
		mode = sampling.ModeDirect
	}

	var backend sampling.StagingBackend
	mgr := staging.New(db, "")
	backend = mgr

	opts := sampling.Options{
		Mode:          mode,
		ExcludeColumn: v.GetStringSlice("exclude-column"),
		Ordered:       v.GetBool("ordered") || v.GetBool("ordered-desc"),
		OrderedDesc:   v.GetBool("ordered-desc"),
		Random:        v.GetBool("random"),
	}

	engine := sampling.New(db, graph, tables, ruleEngine, opts, backend)
	results, err := engine.SampleAll(ctx)
	if err != nil {
		if dropErr := mgr.Drop(ctx); dropErr != nil {
			log.WarnContext(ctx, "staging cleanup failed", "error", dropErr)
		}
		return err
	}

	if !v.GetBool("keep") {
		if err := mgr.Drop(ctx); err != nil {
			log.WarnContext(ctx, "staging cleanup failed", "error", err)
		}
	}

	for _, unmatched := range ruleEngine.UnmatchedRules() {
		log.WarnContext(ctx, "limit rule never matched a table", "pattern", unmatched)
	}

	tablesByName := make(map[string]catalog.Table, len(tables))
	for _, t := range tables {
		tablesByName[t.QualifiedName()] = t
	}

	if v.GetBool("verify") {
		ok, violations := verify.Verify(tablesByName, results)
		if !ok {
			for _, viol := range violations {
				log.ErrorContext(ctx, "foreign key violation in sample",
					"constraint", viol.Constraint, "owner", viol.Owner, "count", viol.Count)
			}
			return errs.Integrity("verifying sample", fmt.Errorf("%d constraint(s) violated", len(violations)))
		}
	}

	if v.GetBool("dry-run") {
		log.InfoContext(ctx, "dry run complete, nothing written")
		return nil
	}

	gen := output.New(tablesByName, objects, graph, results, output.Options{
		DataOnly:      v.GetBool("data-only"),
		TargetVersion: v.GetString("target-version"),
		Compress:      v.GetBool("compress") || v.GetBool("gzip"),
	})

	header := output.Header{
		GeneratedAt:   time.Now().UTC(),
		SourceDSN:     conn.Scrubbed(),
		RuleSummary:   v.GetStringSlice("limit"),
		Ordered:       opts.Ordered,
		OrderedDesc:   opts.OrderedDesc,
		Random:        opts.Random,
		ExcludeSchema: filter.ExcludeSchema,
		ExcludeTable:  filter.ExcludeTable,
	}

	outPath := v.GetString("file")
	if outPath == "" {
		if err := gen.WriteStdout(os.Stdout, header); err != nil {
			return err
		}
	} else {
		if err := gen.WriteFile(outPath, header); err != nil {
			return err
		}
	}

	if auditPath := v.GetString("audit-file"); auditPath != "" {
		var counts []audit.TableCount
		for _, res := range results {
			counts = append(counts, audit.TableCount{Schema: res.Schema, Table: res.Table, Rows: len(res.Rows)})
		}
		report := audit.New(conn.Database, counts)
		if err := audit.Write(auditPath, report); err != nil {
			return err
		}
	}

	if v.GetBool("self-test") && outPath != "" {
		expected := make(map[string]int, len(results))
		for qualified, res := range results {
			expected[qualified] = len(res.Rows)
		}
		harness := selftest.NewEmbeddedHarness(expected)
		report, err := harness.Run(ctx, outPath)
		if err != nil {
			return errs.Internal("self-test", err)
		}
		if !report.OK {
			for _, tr := range report.Tables {
				if tr.Mismatch {
					log.ErrorContext(ctx, "self-test row count mismatch",
						"table", tr.Schema+"."+tr.Table, "expected", tr.Expected, "loaded", tr.Loaded, "error", tr.LoadError)
				}
			}
			return errs.Internal("self-test", fmt.Errorf("dump failed to reload cleanly"))
		}
		log.InfoContext(ctx, "self-test passed", "tables", len(report.Tables))
	}

	return nil
}
