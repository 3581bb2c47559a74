// Package main is the scanfuse command.
package main

import (
	"context"
	"os"
	"os/signal"

	"go.viam.com/scanfusion/cli"
	"go.viam.com/scanfusion/logging"
)

func main() {
	logger := logging.NewLogger("scanfuse")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewApp(os.Stdout, logger).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
