package customer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines customer persistence operations
type Repository interface {
	Create(ctx context.Context, cust *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// ListIDs returns every customer ID, used by the batch reconciliation sweep
	ListIDs(ctx context.Context) ([]uuid.UUID, error)

	// UpdateCachedBalance overwrites the denormalized balance
	UpdateCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error

	// LockForUpdate acquires a row lock for ledger writes within a transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Customer, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrCustomerNotFound indicates a missing customer
type ErrCustomerNotFound struct {
	CustomerID uuid.UUID
}

func (e ErrCustomerNotFound) Error() string {
	return "customer not found: " + e.CustomerID.String()
}

// Is implements the errors.Is interface for ErrCustomerNotFound
func (e ErrCustomerNotFound) Is(target error) bool {
	t, ok := target.(ErrCustomerNotFound)
	if !ok {
		return false
	}
	if t.CustomerID == uuid.Nil {
		return true
	}
	return e.CustomerID == t.CustomerID
}
