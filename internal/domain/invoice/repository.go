package invoice

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides read access to invoices for reconciliation
type Repository interface {
	ListByCustomerID(ctx context.Context, customerID uuid.UUID) ([]*Invoice, error)
}
