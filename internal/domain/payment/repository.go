package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides read access to payments for reconciliation
type Repository interface {
	ListByCustomerID(ctx context.Context, customerID uuid.UUID) ([]*Payment, error)
}
