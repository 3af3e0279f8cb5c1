package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/reconcile"
)

// ReconciliationService defines the interface for audit and repair operations
type ReconciliationService interface {
	// Audit runs a full reconciliation pass over one customer's ledger
	// Returns ErrCustomerNotFound if the customer doesn't exist
	Audit(ctx context.Context, customerID uuid.UUID) (*reconcile.DiscrepancyReport, error)

	// Repair audits the customer, builds a repair plan and applies it in
	// the requested mode. A dry run only previews the plan's operations.
	Repair(ctx context.Context, customerID uuid.UUID, mode reconcile.Mode) (*reconcile.ApplyResult, error)

	// GetLedger retrieves the customer and its full ordered entry stream
	GetLedger(ctx context.Context, customerID uuid.UUID) (*customer.Customer, []*ledger.Entry, error)

	// GetRepairHistory retrieves paginated repair records for a customer
	// Returns records, total count, and any error
	GetRepairHistory(ctx context.Context, customerID uuid.UUID, page, perPage int) ([]*reconcile.RepairRecord, int64, error)
}

// HistoryStore provides read access to recorded repairs; satisfied by the
// Mongo history repository.
type HistoryStore interface {
	ListByCustomerID(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*reconcile.RepairRecord, error)
	CountByCustomerID(ctx context.Context, customerID uuid.UUID) (int64, error)
}
