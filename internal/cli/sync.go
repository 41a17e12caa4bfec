package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/service"

	"github.com/spf13/cobra"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var (
		force  bool
		source string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch new and missing transactions from the bank",
		Long: `Run a sync of every connected account.

A sync runs when it was never completed, when the previous run was
interrupted, or when --force is given. Interrupting a sync with Ctrl+C keeps
what is already stored; the next sync resumes from the oldest cached
transaction of each account.`,
		Args: cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			unsubscribe := a.syncSvc.Events().SubscribeStatus(statusPrinter(cmd.ErrOrStderr(), time.Now))
			defer unsubscribe()

			outcome, err := a.syncSvc.Sync(ctx, service.SyncOptions{Force: force, Source: domain.AccountSource(source)})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(cmd.OutOrStdout(), "Sync interrupted, run `monosync sync` to resume")
					return nil
				}
				return err
			}
			return printResult(cmd, opts, outcome)
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Sync even if the last sync succeeded")
	cmd.Flags().StringVar(&source, "source", string(domain.AccountSourceSettings), "Source recorded for newly seen accounts (onboarding, settings)")
	return cmd
}

func newConnectCmd(opts *rootOptions) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "connect [token]",
		Short: "Connect a personal Monobank API token and run the first sync",
		Long: `Validate a token by fetching the client info, store it and force a sync.

Without an argument the token is read from $MONOBANK_TOKEN, or from AWS
Secrets Manager when $USE_SECRETS_MANAGER is true.`,
		Example: `  monosync connect "uXyz..."
  MONOBANK_TOKEN=uXyz... monosync connect
  USE_SECRETS_MANAGER=true monosync connect`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWithApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			token, err := resolveToken(ctx, a, args)
			if err != nil {
				return err
			}

			unsubscribe := a.syncSvc.Events().SubscribeStatus(statusPrinter(cmd.ErrOrStderr(), time.Now))
			defer unsubscribe()

			outcome, err := a.syncSvc.ConnectToken(ctx, service.ConnectRequest{
				Token:  token,
				Source: domain.AccountSource(source),
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(cmd.OutOrStdout(), "Token connected, sync interrupted; run `monosync sync` to resume")
					return nil
				}
				return err
			}
			return printResult(cmd, opts, outcome)
		}),
	}

	cmd.Flags().StringVar(&source, "source", string(domain.AccountSourceSettings), "Source recorded for the connected accounts (onboarding, settings)")
	return cmd
}

func resolveToken(ctx context.Context, a *app, args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if a.cfg.MonobankToken != "" {
		return a.cfg.MonobankToken, nil
	}
	if a.cfg.UseSecretsManager {
		tokens, err := a.tokenStore(ctx)
		if err != nil {
			return "", err
		}
		token, err := tokens.RetrieveToken(ctx, a.cfg.TokenSecretName)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve token: %w", err)
		}
		return token, nil
	}
	return "", &domain.ErrValidation{Field: "token", Message: "pass a token, set MONOBANK_TOKEN or enable USE_SECRETS_MANAGER"}
}

func newDisconnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the bank token and keep the cached transactions",
		Args:  cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			outcome, err := a.syncSvc.ConnectToken(cmd.Context(), service.ConnectRequest{})
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), outcome)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token disconnected, %d cached transaction(s) kept\n", outcome.Total)
			return nil
		}),
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var showAccounts bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of the local dataset",
		Args:  cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			view, err := a.syncSvc.State(cmd.Context())
			if err != nil {
				return err
			}
			metrics := a.syncSvc.Metrics()

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return writeJSON(out, map[string]any{"sync": view, "metrics": metrics})
			}

			s := view.State
			fmt.Fprintf(out, "Status:           %s\n", s.Status)
			fmt.Fprintf(out, "Connected:        %t\n", view.Connected)
			fmt.Fprintf(out, "Data:             %s, %s\n", view.Origin, domain.FormatTransactionCount(view.Transactions))
			fmt.Fprintf(out, "Window:           %d days\n", s.WindowDays)
			fmt.Fprintf(out, "Needs sync:       %t\n", s.NeedsInitialSync)
			fmt.Fprintf(out, "Last success:     %s\n", formatMillis(s.LastSuccessfulSyncAt))
			fmt.Fprintf(out, "Last started:     %s\n", formatMillis(s.LastSyncStartedAt))
			fmt.Fprintf(out, "Next request at:  %s\n", formatMillis(s.NextAllowedRequestAt))
			if s.LastError != "" {
				fmt.Fprintf(out, "Last error:       %s\n", s.LastError)
			}
			fmt.Fprintf(out, "Requests:         %d (%d rate limited, %d failed)\n",
				metrics.RemoteRequests, metrics.RateLimitedRequests, metrics.FailedRequests)

			if !showAccounts {
				return nil
			}
			accounts, err := a.datasetSvc.Accounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return printAccounts(out, accounts)
		}),
	}

	cmd.Flags().BoolVar(&showAccounts, "accounts", false, "Also list the connected accounts")
	return cmd
}

func printResult(cmd *cobra.Command, opts *rootOptions, outcome *domain.SyncOutcome) error {
	if opts.output == "json" {
		return writeJSON(cmd.OutOrStdout(), outcome)
	}
	printOutcome(cmd.OutOrStdout(), outcome)
	return nil
}
