// Package worker contains the background side of the reconciler: the
// Kafka handler that appends ledger entries as store events arrive, and
// the periodic sweep that audits every customer ledger.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/domain/shared"
	"github.com/steelstore-ledger/internal/platform/messaging/producers"
	"github.com/steelstore-ledger/internal/reconcile"
)

// LedgerEventHandler appends ledger entries for invoice and payment events
// coming from the store application. Appends are idempotent on the event's
// reference: replaying a message never duplicates an entry.
type LedgerEventHandler struct {
	txRunner  reconcile.TxRunner
	entries   ledger.Repository
	customers customer.Repository
	locks     *reconcile.KeyedMutex
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

// NewLedgerEventHandler creates a new handler
func NewLedgerEventHandler(
	logger *slog.Logger,
	txRunner reconcile.TxRunner,
	entries ledger.Repository,
	customers customer.Repository,
	locks *reconcile.KeyedMutex,
	producer producers.DeadLetterPublisher,
) *LedgerEventHandler {
	return &LedgerEventHandler{
		txRunner:  txRunner,
		entries:   entries,
		customers: customers,
		locks:     locks,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes Kafka messages
func (h *LedgerEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.LedgerEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return h.rejectMessage(ctx, key, value, fmt.Sprintf("Failed to unmarshal ledger event: %s", err), err)
	}

	if err := event.Validate(); err != nil {
		return h.rejectMessage(ctx, key, value, fmt.Sprintf("Invalid ledger event: %s", err), err)
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}

	logger.Info("Received ledger event",
		"event_id", event.EventID.String(),
		"type", string(event.Type),
		"customer_id", event.CustomerID.String(),
		"amount", event.Amount.String(),
	)

	if err := h.appendEntry(ctx, logger, &event); err != nil {
		logger.Error("Failed to append ledger entry for event",
			"event_id", event.EventID.String(),
			"customer_id", event.CustomerID.String(),
			"error", err,
		)
		return fmt.Errorf("appending entry for event %s failed: %w", event.EventID.String(), err)
	}

	return nil // Success, commit offset
}

// rejectMessage routes an unprocessable message to the DLQ when one is
// configured. A successful DLQ publish commits the offset; otherwise the
// original error is returned so Kafka redelivers.
func (h *LedgerEventHandler) rejectMessage(ctx context.Context, key, value []byte, reason string, cause error) error {
	h.logger.Error(reason, "message_key", string(key))

	if h.producer != nil {
		if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, reason); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", dlqErr,
				"original_error", cause,
				"message_key", string(key),
			)
		} else {
			h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
			return nil
		}
	}
	return fmt.Errorf("unprocessable ledger event: %w", cause)
}

func entryShapeFor(eventType shared.LedgerEventType) (ledger.EntryType, ledger.TransactionType) {
	if eventType == shared.LedgerEventInvoiceCreated {
		return ledger.EntryTypeDebit, ledger.TransactionTypeInvoice
	}
	return ledger.EntryTypeCredit, ledger.TransactionTypePayment
}

func (h *LedgerEventHandler) appendEntry(ctx context.Context, logger *slog.Logger, event *shared.LedgerEvent) error {
	entryType, txType := entryShapeFor(event.Type)

	unlock := h.locks.Lock(event.CustomerID)
	defer unlock()

	// Idempotency: an entry already tracing back to this reference means
	// the message is a replay.
	existing, err := h.entries.ListByReference(ctx, event.CustomerID, txType, event.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to check for existing entry: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("Ledger entry already exists for reference, skipping",
			"event_id", event.EventID.String(),
			"reference_id", event.ReferenceID.String(),
		)
		return nil
	}

	return h.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		entryRepo := h.entries.WithTx(tx)
		customerRepo := h.customers.WithTx(tx)

		cust, err := customerRepo.LockForUpdate(ctx, event.CustomerID)
		if err != nil {
			return err
		}

		entry, err := ledger.NewEntry(event.CustomerID, entryType, txType, event.Amount, event.ReferenceID, event.ReferenceNumber, event.OccurredAt)
		if err != nil {
			return err
		}
		entry.Notes = event.Notes
		entry.BalanceBefore = cust.CachedBalance
		entry.BalanceAfter = cust.CachedBalance.Add(entry.SignedAmount())

		if err := entryRepo.Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append entry: %w", err)
		}

		if err := customerRepo.UpdateCachedBalance(ctx, event.CustomerID, entry.BalanceAfter); err != nil {
			return fmt.Errorf("failed to update cached balance: %w", err)
		}

		logger.Info("Appended ledger entry",
			"entry_id", entry.ID.String(),
			"customer_id", event.CustomerID.String(),
			"balance_after", entry.BalanceAfter.String(),
		)
		return nil
	})
}
