package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "lumenboard",
		Usage: "Stellar testnet wallet dashboard CLI",
		Description: `A command-line tool for interacting with the lumenboard service.

Use this CLI to manage the wallet session, check balances, request testnet
funds, send payments, and watch live ledger events.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Wallet session commands
			{
				Name:  "wallet",
				Usage: "Wallet session commands",
				Subcommands: []*cli.Command{
					walletStatusCommand(),
					walletConnectCommand(),
					walletDisconnectCommand(),
				},
			},
			// Account commands (HTTP API)
			{
				Name:  "account",
				Usage: "Account balance and funding commands",
				Subcommands: []*cli.Command{
					balanceCommand(),
					fundCommand(),
				},
			},
			// Payment commands
			{
				Name:  "payment",
				Usage: "Payment submission and matching commands",
				Subcommands: []*cli.Command{
					sendCommand(),
					awaitCommand(),
				},
			},
			// NATS event streaming commands
			{
				Name:  "events",
				Usage: "NATS event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Dashboard server URL",
				EnvVars: []string{"LUMENBOARD_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
