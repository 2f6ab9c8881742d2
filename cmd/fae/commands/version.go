package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/saorsa-labs/fae/cmd/fae/internal/build"
	"github.com/saorsa-labs/fae/pkg/host"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(build.String())
		if verbose {
			fmt.Printf("  go:       %s\n", runtime.Version())
			fmt.Printf("  contract: v%d\n", host.ContractVersion)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
