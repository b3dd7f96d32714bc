// Command sqlpilot answers questions about SQLite databases with an LLM agent.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/sqlpilot/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
