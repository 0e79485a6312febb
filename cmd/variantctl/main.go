package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	opts := &storeOpts{}

	cmd := &cobra.Command{
		Use:           "variantctl",
		Short:         "Inspect and retry message variants",
		Long:          "variantctl drives the message variant store directly: retry messages, list variant sets and conversation branches, and manage the schema.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "store driver: postgres or pebble (default from STORE_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.pebblePath, "pebble-path", "", "pebble data directory (default from PEBBLE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Postgres connection string (default from DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.branchingConfig, "branching-config", "", "branching limits YAML (default from BRANCHING_CONFIG)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAppendCmd(opts))
	cmd.AddCommand(newRetryCmd(opts))
	cmd.AddCommand(newVariantsCmd(opts))
	cmd.AddCommand(newBranchCmd(opts))
	cmd.AddCommand(newBranchesCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "variantctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
