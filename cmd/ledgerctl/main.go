// cmd/ledgerctl/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"encore-ledger/internal/cli"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, Version); err != nil {
		stop()
		os.Exit(cli.ExitCode(err))
	}
}
