package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goshamap/internal/storage/nodestore"
	"github.com/LeJamon/goshamap/internal/storage/nodestore/compression"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version information for shamapd, the Go version and the compiled-in storage backends.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "shamapd version %s\n", rootCmd.Version)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "Backends: %v\n", nodestore.AvailableBackends())
		fmt.Fprintf(out, "Compressors: %v\n", compression.Available())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
