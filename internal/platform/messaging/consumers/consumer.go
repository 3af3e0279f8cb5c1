package consumers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/steelstore-ledger/internal/config"
)

// EventHandler processes one ledger event message. A nil return commits
// the offset; an error leaves it uncommitted so the event is redelivered
// (or dead-lettered by the handler itself).
type EventHandler func(ctx context.Context, key []byte, value []byte) error

// fetchRetryDelay throttles the fetch loop when the broker is unreachable
const fetchRetryDelay = time.Second

// LedgerEventConsumer tails the store application's ledger event topic.
// Events are keyed by customer ID, so one customer's invoices and
// payments stay on one partition and arrive in order. Offsets are
// committed only after the handler returns, so an event is appended to
// the ledger, dead-lettered, or redelivered, but never dropped.
type LedgerEventConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewLedgerEventConsumer creates a consumer over the configured ledger
// event topic. The group ID pins offset tracking to the reconciler, so
// restarts resume where the last instance stopped.
func NewLedgerEventConsumer(logger *slog.Logger, cfg *config.KafkaConfig) *LedgerEventConsumer {
	return &LedgerEventConsumer{
		logger: logger.With(
			"topic", cfg.LedgerEventTopic,
			"group_id", cfg.ConsumerGroup,
		),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.LedgerEventTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Run fetches and processes ledger events until the context is canceled
// or the reader is closed. It blocks; callers run it on its own
// goroutine.
func (c *LedgerEventConsumer) Run(ctx context.Context, handler EventHandler) error {
	c.logger.Info("Consuming ledger events")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Ledger event consumer stopped")
				return nil
			}
			c.logger.Error("Failed to fetch ledger event", "error", err)
			time.Sleep(fetchRetryDelay)
			continue
		}

		eventLog := c.logger.With(
			"partition", msg.Partition,
			"offset", msg.Offset,
			"customer_key", string(msg.Key),
		)

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			// Offset stays uncommitted so the event comes back around
			eventLog.Error("Failed to process ledger event", "error", err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			eventLog.Error("Failed to commit offset after processing", "error", err)
			continue
		}

		eventLog.Debug("Ledger event processed")
	}
}

// Close shuts the underlying reader down, which also unblocks Run
func (c *LedgerEventConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
