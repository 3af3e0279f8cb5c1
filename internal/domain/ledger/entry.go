package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType defines the direction of a ledger entry
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"  // increases the amount the customer owes
	EntryTypeCredit EntryType = "credit" // decreases the amount the customer owes
)

// TransactionType defines the business event behind a ledger entry
type TransactionType string

const (
	TransactionTypeInvoice    TransactionType = "invoice"
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// Entry represents one balance-affecting event in a customer's ledger.
// Entries are immutable once created; repairs replace entries rather than
// mutating them.
type Entry struct {
	ID              uuid.UUID       `json:"id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	EntryType       EntryType       `json:"entry_type"`
	TransactionType TransactionType `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceID     uuid.UUID       `json:"reference_id,omitempty"`     // originating invoice/payment; uuid.Nil for adjustments
	ReferenceNumber string          `json:"reference_number,omitempty"` // human-readable invoice/payment number
	BalanceBefore   decimal.Decimal `json:"balance_before"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	OccurredAt      time.Time       `json:"occurred_at"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewEntry creates a validated ledger entry. Balance snapshots are filled
// in by the writer once the insertion position is known.
func NewEntry(customerID uuid.UUID, entryType EntryType, txType TransactionType, amount decimal.Decimal, referenceID uuid.UUID, referenceNumber string, occurredAt time.Time) (*Entry, error) {
	e := &Entry{
		ID:              uuid.New(),
		CustomerID:      customerID,
		EntryType:       entryType,
		TransactionType: txType,
		Amount:          amount,
		ReferenceID:     referenceID,
		ReferenceNumber: referenceNumber,
		OccurredAt:      occurredAt,
		CreatedAt:       time.Now(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the entry invariants that must hold before persistence.
// A zero or negative amount is always a defect, never a valid state.
func (e *Entry) Validate() error {
	if e.CustomerID == uuid.Nil {
		return ErrInvalidEntry{Field: "customer_id", Reason: "customer ID is required"}
	}
	if e.EntryType != EntryTypeDebit && e.EntryType != EntryTypeCredit {
		return ErrInvalidEntry{Field: "entry_type", Reason: "must be debit or credit"}
	}
	switch e.TransactionType {
	case TransactionTypeInvoice, TransactionTypePayment, TransactionTypeAdjustment:
	default:
		return ErrInvalidEntry{Field: "transaction_type", Reason: "must be invoice, payment or adjustment"}
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidEntry{Field: "amount", Reason: "must be greater than zero"}
	}
	return nil
}

// SignedAmount returns the entry's contribution to the running balance:
// positive for debits, negative for credits.
func (e *Entry) SignedAmount() decimal.Decimal {
	if e.EntryType == EntryTypeDebit {
		return e.Amount
	}
	return e.Amount.Neg()
}
