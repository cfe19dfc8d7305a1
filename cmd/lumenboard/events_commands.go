package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/lumenboard/service/events"
)

// subscribeCommand subscribes to payment events for an account.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to payment events for an account",
		ArgsUsage: "[address]",
		Description: `Subscribe to real-time payment events published to NATS JetStream.

This command connects to NATS and streams payment events for the specified
account address. Events are published to the subject: payments.{address}
Omit the address to stream payments for all accounts.

Example:
  lumenboard events subscribe GDQP2KPQGKIHYJGXNUIYOMHARUARCA7DJT5FO2FFOOKY3B2WSQHG4W37 --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "balances",
				Usage: "Subscribe to balance snapshots instead of payments",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "lumenboard-cli",
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().Get(0)
			natsURL := c.String("nats-url")
			balances := c.Bool("balances")
			durable := c.Bool("durable")
			consumerName := c.String("consumer-name")
			jsonOutput := c.Bool("json")

			prefix := events.PaymentSubjectPrefix
			if balances {
				prefix = events.BalanceSubjectPrefix
			}
			subject := prefix + ".*"
			if address != "" {
				subject = fmt.Sprintf("%s.%s", prefix, address)
			}

			return streamEvents(subject, natsURL, durable, consumerName, balances, jsonOutput)
		},
	}
}

// streamEvents connects to NATS and streams ledger events until interrupted.
func streamEvents(subject, natsURL string, durable bool, consumerName string, balances, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), events.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			count++
			if jsonOutput {
				fmt.Println(string(msg.Data()))
				msg.Ack()
				continue
			}

			if balances {
				var event events.BalanceEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
					msg.Ack()
					continue
				}
				fmt.Printf("💰 Balance snapshot (#%d)\n", count)
				fmt.Printf("   Address: %s\n", event.Address)
				fmt.Printf("   Balance: %s XLM\n", event.Balance)
				fmt.Printf("   Fetched: %s\n\n", event.FetchedAt.Format(time.RFC3339))
			} else {
				var event events.PaymentEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
					msg.Ack()
					continue
				}
				fmt.Printf("✅ Payment received (#%d)\n", count)
				fmt.Printf("   Hash: %s\n", event.Hash)
				fmt.Printf("   From: %s\n", event.FromAddress)
				fmt.Printf("   To: %s\n", event.ToAddress)
				fmt.Printf("   Amount: %s XLM\n", event.Amount)
				if event.Memo != "" {
					fmt.Printf("   Memo: %s\n", event.Memo)
				}
				fmt.Printf("   Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\nReceived %d event(s)\n", count)
			}
			return nil
		}
	}
}
