package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/domain/payment"
	"github.com/steelstore-ledger/internal/platform/persistence"
)

// PaymentRepository implements the payment.Repository interface for
// PostgreSQL. Read-only, like the invoice repository.
type PaymentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(logger *slog.Logger, db *persistence.PostgresDB) payment.Repository {
	return &PaymentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// ListByCustomerID retrieves all payments for a customer
func (r *PaymentRepository) ListByCustomerID(ctx context.Context, customerID uuid.UUID) ([]*payment.Payment, error) {
	query := `
		SELECT id, customer_id, payment_number, amount, date, reference_invoice_id
		FROM payments
		WHERE customer_id = $1
		ORDER BY date ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query, customerID)
	if err != nil {
		r.logger.Error("Failed to list payments", "customerID", customerID.String(), "error", err)
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(
			&p.ID,
			&p.CustomerID,
			&p.PaymentNumber,
			&p.Amount,
			&p.Date,
			&p.ReferenceInvoiceID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payments: %w", err)
	}

	return payments, nil
}
