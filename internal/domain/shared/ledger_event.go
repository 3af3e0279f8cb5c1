package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEventType = errors.New("invalid ledger event type")
)

// LedgerEventType defines the business events that append ledger entries
type LedgerEventType string

const (
	LedgerEventInvoiceCreated  LedgerEventType = "invoice_created"
	LedgerEventPaymentRecorded LedgerEventType = "payment_recorded"
)

// LedgerEvent defines a Kafka message emitted by the store application
// whenever an invoice is created or a payment is recorded. The reconciler
// worker consumes these and appends the matching ledger entry.
type LedgerEvent struct {
	EventID         uuid.UUID       `json:"event_id"`
	Type            LedgerEventType `json:"type"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	ReferenceID     uuid.UUID       `json:"reference_id"`
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	Notes           string          `json:"notes,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
}

// Validate checks the event fields the worker relies on
func (e *LedgerEvent) Validate() error {
	if e.Type != LedgerEventInvoiceCreated && e.Type != LedgerEventPaymentRecorded {
		return ErrInvalidEventType
	}
	if e.CustomerID == uuid.Nil {
		return errors.New("ledger event missing customer ID")
	}
	if e.ReferenceID == uuid.Nil {
		return errors.New("ledger event missing reference ID")
	}
	if !e.Amount.IsPositive() {
		return errors.New("ledger event amount must be positive")
	}
	return nil
}
