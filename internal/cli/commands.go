// internal/cli/commands.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"encore-ledger/internal/config"
	"encore-ledger/internal/identity"
	"encore-ledger/internal/reconcile"
	"encore-ledger/internal/split"
	"encore-ledger/pkg/db"
)

// errImbalanced makes reconcile exit non-zero so schedulers can alert on it.
var errImbalanced = &ExitError{Code: ExitImbalanced, Message: "ledger is not balanced"}

func migrateCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			conn, err := db.NewDB(cfg.DB)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer conn.Close()

			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			env.logger(cmd.ErrOrStderr()).Info("Schema migrated", "driver", cfg.DB.Driver)
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func reconcileCmd(env *environment) *cobra.Command {
	var (
		perTransaction bool
		format         string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check that credits equal debits across the ledger",
		Long: `Sums credits and debits per currency and lists transactions whose
entries do not net to zero. Exits non-zero when the ledger is not balanced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("unknown format %q (want %s or %s)", format, formatText, formatJSON)
			}

			application, err := env.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			report, err := application.Validator.ValidateLedgerBalance(cmd.Context(), reconcile.Options{PerTransaction: perTransaction})
			if err != nil {
				return err
			}
			if err := RenderReport(cmd.OutOrStdout(), report, format); err != nil {
				return err
			}
			if !report.IsBalanced {
				return errImbalanced
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&perTransaction, "per-transaction", false, "List every imbalanced transaction")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format (text, json)")
	return cmd
}

func balanceCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show the balance of one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := env.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			balance, err := application.Validator.GetUserBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			RenderBalance(cmd.OutOrStdout(), args[0], application.Deriver.DeriveWalletID(args[0]), balance)
			return nil
		},
	}
}

func repairCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Run one journal repair pass",
		Long:  `Writes missing journal entries and links them to committed ledger entries.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := env.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			stats, err := application.Repairer.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d relinked=%d failed=%d\n", stats.Scanned, stats.Relinked, stats.Failed)
			if stats.Failed > 0 {
				return &ExitError{Code: ExitImbalanced, Message: fmt.Sprintf("%d transactions could not be repaired", stats.Failed)}
			}
			return nil
		},
	}
}

func walletIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet-id <user>",
		Short: "Print the wallet id derived for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			deriver, err := identity.NewDeriver(cfg.WalletIDSecret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deriver.DeriveWalletID(args[0]))
			return nil
		},
	}
}

func splitsCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splits",
		Short: "Manage split contracts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <contract.yaml>",
		Short: "Create a split contract from a YAML template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			tmpl, err := split.LoadTemplate(f)
			if err != nil {
				return err
			}

			application, err := env.openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			contract, err := application.Splits.Create(cmd.Context(), tmpl.CreateParams)
			if err != nil {
				return err
			}
			if tmpl.Activate {
				id := contract.ID
				if contract, err = application.Splits.Activate(cmd.Context(), id); err != nil {
					return fmt.Errorf("contract %s was created but not activated: %w", id, err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(contract)
		},
	})
	return cmd
}
