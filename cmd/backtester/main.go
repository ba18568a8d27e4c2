// Command backtester replays option trade signals against historical prices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"options-backtester/internal/cli"
	"options-backtester/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger()
	root := cli.NewRootCmd(logger)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
