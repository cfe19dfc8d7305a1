package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/lumenboard/client"
)

// cliLogger only surfaces errors; normal output goes to stdout.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newDashboardClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, cliLogger())
}

func printWalletState(state *client.WalletState, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Wallet\n")
	fmt.Printf("  Installed: %t\n", state.Installed)
	fmt.Printf("  Connected: %t\n", state.Connected)
	if state.Address != "" {
		fmt.Printf("  Address:   %s\n", state.Address)
	}
	if state.Network != "" {
		fmt.Printf("  Network:   %s\n", state.Network)
	}
	if state.Error != "" {
		fmt.Printf("  Error:     %s\n", state.Error)
	}
	return nil
}

func walletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current wallet session state",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			state, err := newDashboardClient(c).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch wallet status: %w", err)
			}
			return printWalletState(state, c.Bool("json"))
		},
	}
}

func walletConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Request wallet access and start a session",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			state, err := newDashboardClient(c).Connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect wallet: %w", err)
			}
			if !c.Bool("json") {
				fmt.Printf("✓ Wallet connected\n")
			}
			return printWalletState(state, c.Bool("json"))
		},
	}
}

func walletDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Clear the local wallet session",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			state, err := newDashboardClient(c).Disconnect(ctx)
			if err != nil {
				return fmt.Errorf("failed to disconnect wallet: %w", err)
			}
			if !c.Bool("json") {
				fmt.Printf("✓ Wallet disconnected\n")
			}
			return printWalletState(state, c.Bool("json"))
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Fetch the native XLM balance for an account",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}
			address := c.Args().Get(0)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			balance, err := newDashboardClient(c).Balance(ctx, address)
			if err != nil {
				return fmt.Errorf("failed to fetch balance: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(balance, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal balance: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if !balance.Funded {
				fmt.Printf("Account %s does not exist on the testnet yet.\n", address)
				fmt.Printf("Fund it with: lumenboard account fund %s\n", address)
				return nil
			}

			fmt.Printf("%s XLM\n", balance.Balance)
			return nil
		},
	}
}

func fundCommand() *cli.Command {
	return &cli.Command{
		Name:      "fund",
		Usage:     "Request testnet funds from the friendbot faucet",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}
			address := c.Args().Get(0)

			// Friendbot can be slow
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			cl := newDashboardClient(c)
			if err := cl.Fund(ctx, address); err != nil {
				return fmt.Errorf("failed to fund account: %w", err)
			}

			if !c.Bool("json") {
				fmt.Printf("✓ Account funded\n")
			}

			balance, err := cl.Balance(ctx, address)
			if err != nil {
				// funding succeeded; balance fetch is best effort
				return nil
			}
			if c.Bool("json") {
				data, _ := json.MarshalIndent(balance, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("  Balance: %s XLM\n", balance.Balance)
			}
			return nil
		},
	}
}
