// Package cli is the monosync command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions carries the global flags down to every command.
type rootOptions struct {
	dbPath   string
	logLevel string
	envFile  string
	output   string
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "monosync",
		Short: "Keep a local copy of your Monobank statement in sync",
		Long: `monosync mirrors the transactions of every account behind a personal
Monobank API token into a local SQLite database.

The bank allows one request per minute per token, so a full sync of a year
takes a while: monosync plans 31-day periods, pages through them account by
account and keeps the rate limit across restarts.`,
		Example: `  # Connect a token and run the first sync
  monosync connect "uXyz..."

  # Continue an interrupted sync or refresh recent data
  monosync sync

  # Show the latest transactions
  monosync transactions --limit 50

  # Serve the local dashboard bridge
  monosync serve --addr 127.0.0.1:8787`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       "1.0.0",
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to the SQLite database (default $MONOSYNC_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default $LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")

	cmd.AddCommand(
		newSyncCmd(opts),
		newConnectCmd(opts),
		newDisconnectCmd(opts),
		newStatusCmd(opts),
		newTransactionsCmd(opts),
		newDemoCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newClearCmd(opts),
		newCategorizeCmd(opts),
		newServeCmd(opts),
		newSecretsCmd(opts),
	)
	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// Main is the binary entry point.
func Main() {
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
