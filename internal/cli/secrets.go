package cli

import (
	"fmt"
	"strings"

	"github.com/boddenberg/monosync/internal/domain"

	"github.com/spf13/cobra"
)

func newSecretsCmd(opts *rootOptions) *cobra.Command {
	var secretName string

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Keep the bank token in AWS Secrets Manager",
		Long: `Store or delete the bank token in AWS Secrets Manager, so that
"monosync connect" can read it on another machine with USE_SECRETS_MANAGER=true.

AWS credentials are resolved the standard way (environment, shared config,
SSO).`,
	}
	cmd.PersistentFlags().StringVar(&secretName, "secret-name", "", "Name of the secret (default $TOKEN_SECRET_NAME)")

	name := func(a *app) string {
		if secretName != "" {
			return secretName
		}
		return a.cfg.TokenSecretName
	}

	store := &cobra.Command{
		Use:   "store [token]",
		Short: "Store a token, by default the connected one",
		Args:  cobra.MaximumNArgs(1),
		RunE: runWithApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()

			token := ""
			if len(args) == 1 {
				token = strings.TrimSpace(args[0])
			}
			if token == "" {
				d, _, err := a.repo.Read(ctx)
				if err != nil {
					return err
				}
				if !d.HasToken() {
					return domain.ErrNoToken
				}
				token = d.Token
			}

			tokens, err := a.tokenStore(ctx)
			if err != nil {
				return err
			}
			if err := tokens.StoreToken(ctx, name(a), token); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored in secret %q\n", name(a))
			return nil
		}),
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored token",
		Args:  cobra.NoArgs,
		RunE: runWithApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			tokens, err := a.tokenStore(ctx)
			if err != nil {
				return err
			}
			if err := tokens.DeleteToken(ctx, name(a)); err != nil {
				return fmt.Errorf("failed to delete token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret %q deleted\n", name(a))
			return nil
		}),
	}

	cmd.AddCommand(store, del)
	return cmd
}
