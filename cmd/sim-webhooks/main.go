// Package main provides the Sim webhook service: inbound trigger endpoints and outbound
// execution notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"github.com/wastorga/sim/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:                  "sim-webhooks",
		Usage:                 "Receive webhook triggers and deliver execution notifications",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			TokenCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.WithModule("sim-webhooks").Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
