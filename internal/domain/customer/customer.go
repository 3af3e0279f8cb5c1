package customer

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyName = errors.New("customer name cannot be empty")
)

// Customer represents a store customer with a denormalized running balance.
// CachedBalance is maintained by the ledger writer and the repair applier;
// the reconciler detects when it diverges from the entry stream.
type Customer struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	CachedBalance decimal.Decimal `json:"cached_balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewCustomer creates a new customer with a zero opening balance
func NewCustomer(name string) (*Customer, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	now := time.Now()
	return &Customer{
		ID:            uuid.New(),
		Name:          name,
		CachedBalance: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
