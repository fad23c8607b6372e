package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgsample/pgsample/internal/version"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display the version number of pgsample",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pgsample v%s@%s %s %s\n",
			version.Version(), version.GetGitCommit(), version.Platform(), version.GetBuildDate())
	},
}
