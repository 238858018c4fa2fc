// Package cli holds the cobra commands of the server binary.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/config"
)

// Build metadata, set with -ldflags.
var (
	Version   = "dev"
	CommitSHA = "none"
)

// NewRootCmd returns the command tree.
func NewRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "table-reservation",
		Short:         "Restaurant table reservation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s)", Version, CommitSHA),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return config.LoadDotEnv()
			}
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env when present)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newRecurringCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
