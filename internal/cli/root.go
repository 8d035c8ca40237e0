// internal/cli/root.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	app "encore-ledger/internal"
	"encore-ledger/internal/config"
	"encore-ledger/internal/util"
)

// NewRootCommand assembles the ledgerctl command tree.
func NewRootCommand(version string) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tooling for the encore ledger",
		Long: `ledgerctl runs maintenance tasks against the ledger database.

It reads the same environment (and .env file) as the API server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr while running")

	env := &environment{verbose: &verbose}
	rootCmd.AddCommand(
		migrateCmd(env),
		reconcileCmd(env),
		balanceCmd(env),
		repairCmd(env),
		walletIDCmd(),
		splitsCmd(env),
	)
	return rootCmd
}

// Execute runs the command tree with os.Args.
func Execute(ctx context.Context, version string) error {
	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// Exit codes of ledgerctl.
const (
	ExitSuccess      = 0
	ExitImbalanced   = 1 // reconcile found an imbalance or repair left failures
	ExitCommandError = 2 // configuration, connection or usage errors
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode maps an Execute error onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// environment builds what each command needs from the process environment.
type environment struct {
	verbose *bool
}

func (e *environment) logger(stderr io.Writer) *slog.Logger {
	if e.verbose != nil && *e.verbose {
		return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return util.DiscardLogger()
}

// openApp builds the application without migrating. Callers must Shutdown it.
func (e *environment) openApp(ctx context.Context, cmd *cobra.Command) (*app.Application, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	application := app.NewApplication()
	application.Logger = e.logger(cmd.ErrOrStderr())
	if err := application.Build(ctx, cfg, false); err != nil {
		_ = application.Shutdown(ctx)
		return nil, err
	}
	return application, nil
}
