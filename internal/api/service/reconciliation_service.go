package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/reconcile"
)

// ReconciliationServiceImpl implements the ReconciliationService interface
type ReconciliationServiceImpl struct {
	reconciler *reconcile.Reconciler
	applier    *reconcile.Applier
	customers  customer.Repository
	entries    ledger.Repository
	history    HistoryStore // may be nil when no history store is configured
	logger     *slog.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(
	logger *slog.Logger,
	reconciler *reconcile.Reconciler,
	applier *reconcile.Applier,
	customers customer.Repository,
	entries ledger.Repository,
	history HistoryStore,
) ReconciliationService {
	return &ReconciliationServiceImpl{
		reconciler: reconciler,
		applier:    applier,
		customers:  customers,
		entries:    entries,
		history:    history,
		logger:     logger,
	}
}

// Audit runs a reconciliation pass and returns the discrepancy report
func (s *ReconciliationServiceImpl) Audit(ctx context.Context, customerID uuid.UUID) (*reconcile.DiscrepancyReport, error) {
	return s.reconciler.Audit(ctx, customerID)
}

// Repair audits the customer, plans the repair and applies it. The
// applier takes the audit under the customer's lock, so the plan driving
// the repair can never be stale.
func (s *ReconciliationServiceImpl) Repair(ctx context.Context, customerID uuid.UUID, mode reconcile.Mode) (*reconcile.ApplyResult, error) {
	return s.applier.Repair(ctx, customerID, mode)
}

// GetLedger retrieves the customer and its ordered entry stream
func (s *ReconciliationServiceImpl) GetLedger(ctx context.Context, customerID uuid.UUID) (*customer.Customer, []*ledger.Entry, error) {
	cust, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.entries.ListByCustomerID(ctx, customerID)
	if err != nil {
		return nil, nil, err
	}

	return cust, entries, nil
}

// GetRepairHistory retrieves paginated repair records for a customer
func (s *ReconciliationServiceImpl) GetRepairHistory(ctx context.Context, customerID uuid.UUID, page, perPage int) ([]*reconcile.RepairRecord, int64, error) {
	// Verify the customer exists so unknown IDs are a 404, not an empty list
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, 0, err
	}

	if s.history == nil {
		return nil, 0, nil
	}

	offset := (page - 1) * perPage
	records, err := s.history.ListByCustomerID(ctx, customerID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.history.CountByCustomerID(ctx, customerID)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
