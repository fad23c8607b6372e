package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgsample/pgsample/cmd/sample"
	"github.com/pgsample/pgsample/internal/errs"
	"github.com/pgsample/pgsample/internal/version"
)

var RootCmd = &cobra.Command{
	Use:   "pgsample",
	Short: "Referentially-consistent sampling of PostgreSQL databases",
	Long: fmt.Sprintf(`pgsample dumps a referentially-consistent sample of a PostgreSQL
database: a subset of rows per table that satisfies every foreign key
in the sample, suitable for loading into a smaller database.

Version: %s %s

Use "pgsample [command] --help" for more information about a command.`,
		version.Version(), version.Platform()),
}

func init() {
	RootCmd.AddCommand(sample.Cmd)
	RootCmd.AddCommand(VersionCmd)
}

// Execute runs the root command and maps any returned error to the
// process exit code spec.md §7 assigns to its errs.Kind.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.ExitCode(err))
	}
}
