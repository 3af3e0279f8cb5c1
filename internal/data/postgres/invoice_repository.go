package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/domain/invoice"
	"github.com/steelstore-ledger/internal/platform/persistence"
)

// InvoiceRepository implements the invoice.Repository interface for
// PostgreSQL. Reconciliation only reads invoices; writes belong to the
// store application.
type InvoiceRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewInvoiceRepository creates a new PostgreSQL invoice repository
func NewInvoiceRepository(logger *slog.Logger, db *persistence.PostgresDB) invoice.Repository {
	return &InvoiceRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// ListByCustomerID retrieves all invoices for a customer
func (r *InvoiceRepository) ListByCustomerID(ctx context.Context, customerID uuid.UUID) ([]*invoice.Invoice, error) {
	query := `
		SELECT id, customer_id, invoice_number, grand_total, created_at
		FROM invoices
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query, customerID)
	if err != nil {
		r.logger.Error("Failed to list invoices", "customerID", customerID.String(), "error", err)
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*invoice.Invoice
	for rows.Next() {
		var inv invoice.Invoice
		if err := rows.Scan(
			&inv.ID,
			&inv.CustomerID,
			&inv.InvoiceNumber,
			&inv.GrandTotal,
			&inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invoices: %w", err)
	}

	return invoices, nil
}
