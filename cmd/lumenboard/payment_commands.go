package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/lumenboard/client"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send an XLM payment through the connected wallet",
		ArgsUsage: "DESTINATION AMOUNT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "memo",
				Aliases: []string{"m"},
				Usage:   "Text memo attached to the payment (up to 28 characters)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("destination address and amount are required")
			}
			to := c.Args().Get(0)
			amount := c.Args().Get(1)
			memo := c.String("memo")

			// Signing may wait on user approval in the wallet
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			receipt, err := newDashboardClient(c).SendPayment(ctx, to, amount, memo)
			if err != nil {
				return fmt.Errorf("failed to send payment: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(receipt, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal receipt: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if receipt.CreatedAccount {
				fmt.Printf("✓ Account created with %s XLM\n", amount)
			} else {
				fmt.Printf("✓ Payment sent\n")
			}
			fmt.Printf("  Hash:     %s\n", receipt.Hash)
			fmt.Printf("  Ledger:   %d\n", receipt.Ledger)
			fmt.Printf("  Explorer: %s\n", receipt.ExplorerURL)
			return nil
		},
	}
}

func awaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a payment matching criteria arrives",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "hash",
				Usage: "Filter by exact transaction hash",
			},
			&cli.StringFlag{
				Name:  "amount-equal",
				Usage: "Filter by exact XLM amount (e.g. 10.0000000)",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for a payment",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("account address is required")
			}

			address := c.Args().Get(0)
			hash := c.String("hash")
			amountEqual := c.String("amount-equal")
			jqFilters := c.StringSlice("must-jq")
			timeout := c.Duration("timeout")
			jsonOutput := c.Bool("json")

			// Require at least one filter
			if hash == "" && amountEqual == "" && len(jqFilters) == 0 {
				return fmt.Errorf("must specify at least one filter: --hash, --amount-equal, or --must-jq")
			}

			// Compile jq filters
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			// Build matcher function based on flags
			matcher := func(event *client.PaymentEvent) bool {
				if hash != "" && event.Hash != hash {
					return false
				}
				if amountEqual != "" && event.Amount != amountEqual {
					return false
				}
				if len(compiledJQFilters) > 0 && !matchJQFilters(compiledJQFilters, event) {
					return false
				}
				return true
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for payment on account %s...\n", address)
				if hash != "" {
					fmt.Fprintf(os.Stderr, "  Hash: %s\n", hash)
				}
				if amountEqual != "" {
					fmt.Fprintf(os.Stderr, "  Amount: %s XLM\n", amountEqual)
				}
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", timeout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			event, err := newDashboardClient(c).AwaitPayment(ctx, address, matcher)
			if err != nil {
				return fmt.Errorf("failed to await payment: %w", err)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(event, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal payment: %w", err)
				}
				fmt.Println(string(data))
			} else {
				printPaymentEvent(event)
			}

			return nil
		},
	}
}

// matchJQFilters runs every compiled filter against the event encoded as a
// generic JSON value. All filters must produce a truthy result.
func matchJQFilters(filters []*gojq.Code, event *client.PaymentEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	var eventJSON interface{}
	if err := json.Unmarshal(data, &eventJSON); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(eventJSON)
		v, ok := iter.Next()
		if !ok {
			// No result means filter failed
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

func printPaymentEvent(event *client.PaymentEvent) {
	fmt.Printf("✓ Payment received\n")
	fmt.Printf("  Hash:    %s\n", event.Hash)
	fmt.Printf("  Ledger:  %d\n", event.Ledger)
	fmt.Printf("  From:    %s\n", event.FromAddress)
	fmt.Printf("  To:      %s\n", event.ToAddress)
	fmt.Printf("  Amount:  %s XLM\n", event.Amount)
	if event.Memo != "" {
		fmt.Printf("  Memo:    %s\n", event.Memo)
	}
	if event.CreatedAccount {
		fmt.Printf("  Created: destination account was created by this payment\n")
	}
	fmt.Printf("  Published: %s\n", event.PublishedAt.Format(time.RFC3339))
}
