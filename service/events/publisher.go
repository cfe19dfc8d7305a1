package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/lumenboard/service/metrics"
)

// Publisher defines the interface for publishing ledger events to NATS.
// It is the explicit event channel between the payment/balance flows and
// anything that wants to react to them (SSE streams, CLI waiters).
type Publisher interface {
	// PublishPayment publishes a payment event to "payments.{from_address}".
	PublishPayment(ctx context.Context, event *PaymentEvent) error

	// PublishBalance publishes a balance event to "balances.{address}".
	PublishBalance(ctx context.Context, event *BalanceEvent) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for ledger events.
	StreamName = "LEDGER_EVENTS"

	// PaymentSubjectPrefix and BalanceSubjectPrefix are the subject roots.
	PaymentSubjectPrefix = "payments"
	BalanceSubjectPrefix = "balances"

	// StreamRetention is how long messages are retained.
	StreamRetention = 24 * time.Hour
)

// StreamSubjects covers everything this stream carries.
var StreamSubjects = []string{PaymentSubjectPrefix + ".*", BalanceSubjectPrefix + ".*"}

// JetStreamPublisher publishes ledger events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lumenboard-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		logger:  logger,
		metrics: m,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Payment and balance events from the wallet dashboard",
		Subjects:    StreamSubjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishPayment publishes a payment event.
func (p *JetStreamPublisher) PublishPayment(ctx context.Context, event *PaymentEvent) error {
	subject := fmt.Sprintf("%s.%s", PaymentSubjectPrefix, event.FromAddress)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}

	p.logger.Debug("published payment event",
		"subject", subject,
		"hash", event.Hash,
		"to", event.ToAddress,
	)
	return nil
}

// PublishBalance publishes a balance event.
func (p *JetStreamPublisher) PublishBalance(ctx context.Context, event *BalanceEvent) error {
	subject := fmt.Sprintf("%s.%s", BalanceSubjectPrefix, event.Address)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}

	p.logger.Debug("published balance event",
		"subject", subject,
		"balance", event.Balance,
	)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, status, duration)
	}

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
