package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/lumenboard/service/events"
	"github.com/brojonat/lumenboard/service/metrics"
)

// SSEPublisher manages Server-Sent Events connections for ledger event streaming.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("lumenboard-sse-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamPayments handles SSE streaming for payment events.
// If the address path parameter is empty, streams payments for all addresses.
func handleStreamPayments(publisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return streamHandler(publisher, m, logger, streamConfig{
		name:          "payments",
		subjectPrefix: events.PaymentSubjectPrefix,
		eventName:     "payment",
	})
}

// handleStreamBalances handles SSE streaming for balance snapshots. A client
// subscribing to an address it has already refreshed gets the latest cached
// snapshot immediately, then live updates.
func handleStreamBalances(publisher *SSEPublisher, cache *balanceCache, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return streamHandler(publisher, m, logger, streamConfig{
		name:          "balances",
		subjectPrefix: events.BalanceSubjectPrefix,
		eventName:     "balance",
		initial: func(address string) []byte {
			return cachedBalanceEvent(cache, address)
		},
	})
}

// cachedBalanceEvent encodes the cached snapshot for an address as a balance
// event payload, or returns nil when nothing is cached.
func cachedBalanceEvent(cache *balanceCache, address string) []byte {
	if address == "" {
		return nil
	}
	snap, ok := cache.load(address)
	if !ok {
		return nil
	}
	data, err := json.Marshal(events.BalanceEvent{
		Address:   address,
		Balance:   snap.Balance,
		FetchedAt: snap.FetchedAt,
	})
	if err != nil {
		return nil
	}
	return data
}

type streamConfig struct {
	name          string
	subjectPrefix string
	eventName     string

	// initial, when set, supplies a payload sent right after the connected
	// event for address-scoped subscriptions.
	initial func(address string) []byte
}

// streamHandler streams JetStream messages for one subject filter to an SSE
// client. Each connection gets its own ephemeral consumer that only sees
// messages published after it connects.
func streamHandler(publisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger, sc streamConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		var subject string
		var addressDesc string
		if address == "" {
			subject = sc.subjectPrefix + ".*"
			addressDesc = "all addresses"
		} else {
			subject = fmt.Sprintf("%s.%s", sc.subjectPrefix, address)
			addressDesc = address
		}

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		logger.DebugContext(r.Context(), "SSE client connected",
			"stream", sc.name,
			"address", addressDesc,
			"remote_addr", r.RemoteAddr,
		)

		if m != nil {
			m.RecordSSEConnectionChange(sc.name, 1)
			defer m.RecordSSEConnectionChange(sc.name, -1)
		}

		// Create ephemeral consumer for this connection
		cons, err := publisher.js.CreateOrUpdateConsumer(r.Context(), events.StreamName, jetstream.ConsumerConfig{
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			DeliverPolicy: jetstream.DeliverNewPolicy, // Only deliver new messages after consumer creation
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to create consumer",
				"stream", sc.name,
				"address", addressDesc,
				"error", err,
			)
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
			return
		}

		msgChan := make(chan jetstream.Msg, 10)
		doneChan := make(chan struct{})

		go func() {
			defer close(doneChan)
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				select {
				case msgChan <- msg:
				case <-r.Context().Done():
					return
				}
			})
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to start consuming messages",
					"error", err,
				)
				return
			}
			// Wait for context to be done, then stop consuming
			<-r.Context().Done()
			cc.Stop()
		}()

		// Send initial connection event
		fmt.Fprintf(w, "event: connected\ndata: {\"address\":%q}\n\n", addressDesc)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		if sc.initial != nil {
			if data := sc.initial(address); data != nil {
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sc.eventName, string(data))
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}
				if m != nil {
					m.RecordSSEEventSent(sc.name, sc.eventName)
				}
			}
		}

		// Keepalive comments every 10 seconds prevent proxy timeouts
		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}

			case msg := <-msgChan:
				// Re-encode so clients never see a malformed payload
				var payload json.RawMessage
				if err := json.Unmarshal(msg.Data(), &payload); err != nil {
					logger.WarnContext(r.Context(), "failed to unmarshal event",
						"stream", sc.name,
						"error", err,
					)
					msg.Ack()
					continue
				}

				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sc.eventName, string(payload))
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}

				msg.Ack()

				if m != nil {
					m.RecordSSEEventSent(sc.name, sc.eventName)
				}

				logger.DebugContext(r.Context(), "sent event",
					"stream", sc.name,
					"address", addressDesc,
				)

			case <-r.Context().Done():
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"stream", sc.name,
					"address", addressDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-doneChan:
				return
			}
		}
	})
}
