package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the source-of-truth record a credit ledger entry must trace
// back to.
type Payment struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	PaymentNumber      string          `json:"payment_number"`
	Amount             decimal.Decimal `json:"amount"`
	Date               time.Time       `json:"date"`
	ReferenceInvoiceID uuid.UUID       `json:"reference_invoice_id,omitempty"`
}
