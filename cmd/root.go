// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "linglite",
	Short:   "LingLite - language exchange backend",
	Long:    `A single-binary backend for a language exchange community: profiles, friendships, chat and realtime call signaling over SQLite.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("linglite version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
