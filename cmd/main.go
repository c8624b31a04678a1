package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"starcrawl/cli"
	"starcrawl/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := cli.New()
	err := app.Run(ctx, os.Args)
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
