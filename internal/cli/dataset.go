package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/storage"

	"github.com/spf13/cobra"
)

func newTransactionsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List cached transactions, newest first",
		Args:    cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			txs, err := a.datasetSvc.Transactions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), txs)
			}
			return printTransactions(cmd.OutOrStdout(), txs)
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of transactions to show (0 for all)")
	return cmd
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Replace the local dataset with generated demo data",
		Args:  cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			d, err := a.datasetSvc.LoadSampleData(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s of demo data\n", domain.FormatTransactionCount(len(d.Transactions)))
			return nil
		}),
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import transactions and categories from an export file",
		Long: `Replace the cached transactions and categories with the content of an
export file. A connected token is kept and the next sync adds the newest
transactions on top of the imported ones.`,
		Args: cobra.ExactArgs(1),
		RunE: runWithApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			data, err := storage.DecodeExport(f)
			if err != nil {
				return err
			}
			d, err := a.datasetSvc.Import(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s and %d categories\n",
				domain.FormatTransactionCount(len(d.Transactions)), len(d.Categories))
			return nil
		}),
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write transactions and categories to an export file",
		Long: `Write the cached transactions and categories to a JSON export file.
Without an argument the file is named after today's date; "-" writes to
stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			data, err := a.datasetSvc.Export(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			path := storage.ExportFileName(now)
			if len(args) == 1 {
				path = args[0]
			}

			var w io.Writer = cmd.OutOrStdout()
			if path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := storage.EncodeExport(w, data, now); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			if path != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", domain.FormatTransactionCount(len(data.Transactions)), path)
			}
			return nil
		}),
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the local dataset, token included",
		Args:  cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			if !yes {
				return &domain.ErrValidation{Field: "yes", Message: "clearing deletes every cached transaction, pass --yes to confirm"}
			}
			if err := a.datasetSvc.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Local dataset deleted")
			return nil
		}),
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newCategorizeCmd(opts *rootOptions) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "categorize <category> <transaction-id>...",
		Short: "Assign a category to transactions",
		Long: `Assign a category to one or more transactions. An empty category ("")
removes it. Categories survive later syncs of the same transactions.`,
		Example: `  monosync categorize groceries ZuHWzqkKGVo= 3xhPS3Hsml0=
  monosync categorize groceries ZuHWzqkKGVo= --label "Groceries"
  monosync categorize "" ZuHWzqkKGVo=`,
		Args: cobra.MinimumNArgs(2),
		RunE: runWithApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			changed, err := a.datasetSvc.AssignCategory(cmd.Context(), args[1:], args[0], label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", domain.FormatTransactionCount(changed))
			return nil
		}),
	}

	cmd.Flags().StringVar(&label, "label", "", "Display name of the category")
	return cmd
}
