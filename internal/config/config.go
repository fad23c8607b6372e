// Package config loads a JSON/YAML configuration file and merges it with
// CLI flags, grounded on dbsample/config.py's load_config_file,
// merge_config_with_cli, and normalize_config_keys, backed by
// spf13/viper the way steveyegge/beads and untoldecay/BeadsLog bind a
// config file to Cobra flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgsample/pgsample/internal/errs"
)

// keyAliases mirrors normalize_config_keys: config-file keys that should
// be read under their CLI-flag name instead.
var keyAliases = map[string]string{
	"database":    "dbname",
	"output":      "file",
	"output_file": "file",
	"gzip":        "compress",
	"compression": "compress",
}

// Load reads path (format chosen by extension, falling back to
// content-sniffing when the extension is absent or unrecognized) and
// binds it under v, then binds every flag of fs so that Get/GetString/...
// on v reflect CLI-flag values winning over file values.
func Load(path string, fs *cobra.Command) (*viper.Viper, error) {
	v := viper.New()

	if path != "" {
		if err := readConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	applyAliases(v)

	if fs != nil {
		if err := v.BindPFlags(fs.Flags()); err != nil {
			return nil, errs.Configuration("binding flags", err)
		}
	}

	return v, nil
}

// readConfigFile loads path into v, choosing the format by extension and
// falling back to json-then-yaml content-sniffing when the extension is
// absent or unrecognized, matching load_config_file's auto-detect branch.
func readConfigFile(v *viper.Viper, path string) error {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	v.SetConfigFile(path)

	switch ext {
	case "json":
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return errs.Configuration("loading config file", fmt.Errorf("%s: %w", path, err))
		}
		return nil
	case "yaml", "yml":
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return errs.Configuration("loading config file", fmt.Errorf("%s: %w", path, err))
		}
		return nil
	}

	v.SetConfigType("json")
	if err := v.ReadInConfig(); err == nil {
		return nil
	}
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errs.Configuration("loading config file",
			fmt.Errorf("%s: unrecognized format (use .json or .yaml): %w", path, err))
	}
	return nil
}

// applyAliases re-homes any aliased key under its canonical CLI-flag
// name, leaving the canonical key untouched if already present. The
// re-homed value is merged into viper's config layer (not v.Set, which
// outranks bound CLI flags) so a later BindPFlags still lets a flag
// override it, matching merge_config_with_cli's file-then-CLI order.
func applyAliases(v *viper.Viper) {
	all := v.AllSettings()
	for from, to := range keyAliases {
		if val, ok := all[from]; ok {
			if _, already := all[to]; !already {
				_ = v.MergeConfigMap(map[string]interface{}{to: val})
			}
		}
	}
}
