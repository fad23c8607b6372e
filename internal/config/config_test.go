package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadJSONConfigAppliesAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"database": "mydb", "gzip": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v.GetString("dbname") != "mydb" {
		t.Errorf("expected dbname aliased from database, got %q", v.GetString("dbname"))
	}
	if !v.GetBool("compress") {
		t.Error("expected compress aliased from gzip")
	}
}

func TestCLIFlagOverridesAliasedConfigKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"database": "filedb"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{Use: "test"}
	var dbname string
	cmd.Flags().StringVar(&dbname, "dbname", "", "database name")
	if err := cmd.Flags().Set("dbname", "clidb"); err != nil {
		t.Fatal(err)
	}

	v, err := Load(path, cmd)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := v.GetString("dbname"); got != "clidb" {
		t.Errorf("expected CLI flag to win over aliased config key, got %q", got)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("dbname: fromyaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v.GetString("dbname") != "fromyaml" {
		t.Errorf("expected dbname=fromyaml, got %q", v.GetString("dbname"))
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/config.json", nil)
	if err == nil {
		t.Error("expected error for missing config file")
	}
}
