package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository manages ledger entry persistence. The store is append-mostly:
// Remove and UpdateBalances exist only for the repair applier.
type Repository interface {
	// Append inserts a new entry. The entry must pass Validate; invalid
	// entries are rejected with ErrInvalidEntry before touching the store.
	Append(ctx context.Context, entry *Entry) error

	// ListByCustomerID returns all entries for a customer ordered by
	// (occurred_at, created_at, id) ascending. Re-querying the same data
	// yields the same order.
	ListByCustomerID(ctx context.Context, customerID uuid.UUID) ([]*Entry, error)

	// ListByReference returns entries matching a source record, used for
	// duplicate detection and idempotent event handling.
	ListByReference(ctx context.Context, customerID uuid.UUID, txType TransactionType, referenceID uuid.UUID) ([]*Entry, error)

	// Remove hard-deletes an entry. Used only by the repair applier.
	Remove(ctx context.Context, id uuid.UUID) error

	// UpdateBalances rewrites the balance snapshots of an existing entry
	// after the chronological chain has been recomputed around it.
	UpdateBalances(ctx context.Context, id uuid.UUID, before, after decimal.Decimal) error

	WithTx(tx pgx.Tx) Repository
}

// ErrInvalidEntry indicates an entry that violates a ledger invariant
type ErrInvalidEntry struct {
	Field  string
	Reason string
}

func (e ErrInvalidEntry) Error() string {
	return "invalid ledger entry: " + e.Field + " " + e.Reason
}

// Is implements the errors.Is interface for ErrInvalidEntry
func (e ErrInvalidEntry) Is(target error) bool {
	t, ok := target.(ErrInvalidEntry)
	if !ok {
		return false
	}
	// An empty target field matches any ErrInvalidEntry
	if t.Field == "" {
		return true
	}
	return e.Field == t.Field
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.EntryID == uuid.Nil {
		return true
	}
	return e.EntryID == t.EntryID
}
