package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/YdPater/i2c-tools/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCmd(cli.Deps{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
